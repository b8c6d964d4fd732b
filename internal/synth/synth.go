// Package synth implements ContentSynthesizer (spec.md §4.2): deterministic
// default content for well-known file types, used both to fill a missing
// write_file content argument and to drive direct-synthesis recovery
// (spec.md §4.8). Templates are rendered with text/template, the same
// approach AgenticGoKit's scaffold generator uses for project files.
package synth

import (
	"bytes"
	"path/filepath"
	"strings"
	"text/template"
)

// Hint carries optional context the caller already knows about the file
// (e.g. the declared symbol name an agent intended to write).
type Hint struct {
	ProjectName string
	Symbol      string
}

// Synthesizer produces deterministic byte content for a path.
type Synthesizer struct {
	floor int
}

// New builds a Synthesizer whose structured-format floor is floorBytes
// (spec.md §4.2, default 512).
func New(floorBytes int) *Synthesizer {
	if floorBytes <= 0 {
		floorBytes = 512
	}
	return &Synthesizer{floor: floorBytes}
}

// Synthesize returns deterministic bytes for path. Identical (path, hint)
// always yields byte-identical output (spec.md §8 "Content synthesis
// idempotence").
func (s *Synthesizer) Synthesize(path string, hint *Hint) []byte {
	if hint == nil {
		hint = &Hint{}
	}
	base := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(path))
	project := hint.ProjectName
	if project == "" {
		project = "project"
	}
	symbol := hint.Symbol
	if symbol == "" {
		symbol = symbolFromFilename(base)
	}

	var out []byte
	floorApplies := true
	switch {
	case base == ".env.example":
		out = s.renderConfig(base, project)
		floorApplies = false
	case isConfigName(base):
		out = s.renderConfig(base, project)
	case ext == ".json":
		out = s.render(tmplJSON, map[string]string{"Project": project, "Path": path})
	case ext == ".yaml" || ext == ".yml":
		out = s.render(tmplYAML, map[string]string{"Project": project, "Path": path})
	case ext == ".toml":
		out = s.render(tmplTOML, map[string]string{"Project": project, "Path": path})
	case ext == ".md":
		out = s.render(tmplMarkdown, map[string]string{"Title": titleFromFilename(base)})
	case ext == ".rst":
		out = s.render(tmplRST, map[string]string{"Title": titleFromFilename(base)})
	case isSourceExt(ext):
		out = s.renderSource(ext, symbol)
	default:
		out = s.renderUnknown(base)
		floorApplies = false
	}

	if floorApplies && len(out) < s.floor {
		out = append(out, padding(s.floor-len(out), ext)...)
	}
	return out
}

func (s *Synthesizer) render(tmpl string, data map[string]string) []byte {
	t := template.Must(template.New("x").Parse(tmpl))
	var buf bytes.Buffer
	_ = t.Execute(&buf, data)
	return buf.Bytes()
}

func (s *Synthesizer) renderConfig(base, project string) []byte {
	switch {
	case base == "Dockerfile":
		return s.render(tmplDockerfile, map[string]string{"Project": project})
	case strings.HasPrefix(base, "docker-compose"):
		return s.render(tmplDockerCompose, map[string]string{"Project": project})
	case base == ".env.example":
		return s.render(tmplEnvExample, map[string]string{"Project": project})
	case base == "Makefile":
		return s.render(tmplMakefile, map[string]string{"Project": project})
	default:
		return s.renderUnknown(base)
	}
}

func (s *Synthesizer) renderSource(ext, symbol string) []byte {
	tmpl, ok := sourceTemplates[ext]
	if !ok {
		return s.renderUnknown("file" + ext)
	}
	return s.render(tmpl, map[string]string{"Symbol": symbol})
}

func (s *Synthesizer) renderUnknown(base string) []byte {
	comment, ok := commentSyntax(filepath.Ext(base))
	if !ok {
		return nil
	}
	return []byte(comment + " " + base + ": generated placeholder\n")
}

// padding returns whole lines totalling at least n bytes: comment lines in
// the syntax of ext where it has one, blank lines otherwise, so the padded
// document stays valid.
func padding(n int, ext string) []byte {
	if n <= 0 {
		return nil
	}
	line := "\n"
	if comment, ok := commentSyntax(ext); ok {
		line = comment + " padding to satisfy the minimum synthesized-content size\n"
	}
	var buf bytes.Buffer
	for buf.Len() < n {
		buf.WriteString(line)
	}
	return buf.Bytes()
}

func isConfigName(base string) bool {
	switch {
	case base == "Dockerfile", base == "Makefile", base == ".env.example":
		return true
	case strings.HasPrefix(base, "docker-compose"):
		return true
	}
	return false
}

func isSourceExt(ext string) bool {
	_, ok := sourceTemplates[ext]
	return ok
}

func symbolFromFilename(base string) string {
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.ReplaceAll(name, "-", "_")
	if name == "" {
		return "Generated"
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func titleFromFilename(base string) string {
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	words := strings.Fields(name)
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	if len(words) == 0 {
		return "Untitled"
	}
	return strings.Join(words, " ")
}

func commentSyntax(ext string) (string, bool) {
	switch ext {
	case ".go", ".rs", ".java", ".ts", ".tsx", ".js", ".c", ".cpp", ".h":
		return "//", true
	case ".py", ".sh", ".rb", ".toml", ".yaml", ".yml":
		return "#", true
	case ".sql":
		return "--", true
	default:
		return "", false
	}
}
