package toolkit

import (
	"fmt"
	"reflect"
)

// bindStruct is the one seam where the Invoker reflects on argument shapes
// (spec.md §9 "a typed handler function; the Invoker sits between them and
// is the only place that reflects on argument shapes"). It binds canonical
// keys in args onto the exported fields of dest (a pointer to a struct)
// using the `arg:"name"` tag, or the lower-cased field name when absent.
// Keys with no matching field are simply left unused by the handler — the
// repair pipeline has already dropped anything genuinely unknown.
func bindStruct(args map[string]any, dest any) error {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("toolkit: bindStruct requires a pointer to struct")
	}
	elem := v.Elem()
	t := elem.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		key := field.Tag.Get("arg")
		if key == "" {
			key = lowerFirst(field.Name)
		}
		raw, ok := args[key]
		if !ok {
			continue
		}
		if err := assign(elem.Field(i), raw); err != nil {
			return fmt.Errorf("toolkit: bind %s: %w", key, err)
		}
	}
	return nil
}

func assign(field reflect.Value, raw any) error {
	if raw == nil {
		return nil
	}
	rv := reflect.ValueOf(raw)
	if rv.Type().AssignableTo(field.Type()) {
		field.Set(rv)
		return nil
	}
	if rv.Type().ConvertibleTo(field.Type()) {
		field.Set(rv.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", raw, field.Type())
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}
