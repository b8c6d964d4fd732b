package toolkit

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Spec describes one registered tool: its parameter schema, required
// parameter names, and its typed handler (spec.md §4.3 "Registry").
type Spec struct {
	Name        string
	Description string
	// ParamSchema is a JSON Schema document (draft 2020-12) describing the
	// tool's parameter object, published to the LLM as the tool catalog.
	ParamSchema []byte
	// Properties lists every canonical parameter name this tool declares,
	// used by argument repair to decide whether an incoming key is already
	// canonical (and so exempt from alias substitution) versus alternate.
	Properties []string
	Required   []string
	// Defaults fills any canonical required parameter still missing after
	// argument repair (spec.md §4.3 step 3).
	Defaults map[string]any
	// Mutating tools acquire an exclusive lock on any resolved path
	// argument before the handler runs (spec.md §4.3 step 6).
	Mutating bool
	Handler  Handler

	compiled *jsonschema.Schema
}

// compileSchema parses and compiles ParamSchema once, grounded on the
// registry service's validatePayloadJSONAgainstSchema compile step.
func (s *Spec) compileSchema() error {
	if len(s.ParamSchema) == 0 {
		return nil
	}
	var doc any
	if err := json.Unmarshal(s.ParamSchema, &doc); err != nil {
		return fmt.Errorf("toolkit: unmarshal schema for %s: %w", s.Name, err)
	}
	c := jsonschema.NewCompiler()
	resource := s.Name + ".schema.json"
	if err := c.AddResource(resource, doc); err != nil {
		return fmt.Errorf("toolkit: add schema resource for %s: %w", s.Name, err)
	}
	compiled, err := c.Compile(resource)
	if err != nil {
		return fmt.Errorf("toolkit: compile schema for %s: %w", s.Name, err)
	}
	s.compiled = compiled
	return nil
}

// validate checks args against the compiled schema, if one was declared.
func (s *Spec) validate(args map[string]any) error {
	if s.compiled == nil {
		return nil
	}
	return s.compiled.Validate(args)
}

func stringSchema(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func mustJSON(v map[string]any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
