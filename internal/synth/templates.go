package synth

// Structured-format templates: a minimal, valid document plus a commented
// header identifying it as synthesized content (spec.md §4.2).

const tmplJSON = `{
  "_generated": "synthesized placeholder for {{.Path}}",
  "name": "{{.Project}}"
}
`

const tmplYAML = `# synthesized placeholder for {{.Path}}
name: {{.Project}}
`

const tmplTOML = `# synthesized placeholder for {{.Path}}
name = "{{.Project}}"
`

const tmplMarkdown = `# {{.Title}}

## Overview

## Contents
`

const tmplRST = `{{.Title}}
=================================

Overview
--------

Contents
--------
`

const tmplDockerfile = `# synthesized placeholder Dockerfile for {{.Project}}
FROM alpine:latest
WORKDIR /app
CMD ["true"]
`

const tmplDockerCompose = `# synthesized placeholder compose file for {{.Project}}
services:
  {{.Project}}:
    image: alpine:latest
`

const tmplEnvExample = `# synthesized placeholder env file for {{.Project}}
APP_ENV=development
`

const tmplMakefile = `# synthesized placeholder Makefile for {{.Project}}
.PHONY: build test

build:
	@true

test:
	@true
`

// sourceTemplates maps a lowercase extension to the skeleton template used
// for that language: one declared symbol matching the hint and, in every
// language but Go, a trivial assertion exercising it. No template carries
// import lines.
var sourceTemplates = map[string]string{
	".go": `// Code generated as a synthesized placeholder; {{.Symbol}} exists so
// dependents compile until a real implementation lands.
package placeholder

// {{.Symbol}} is a stand-in satisfying callers that expect this symbol to exist.
func {{.Symbol}}() bool {
	return true
}
`,
	".py": `"""Synthesized placeholder module."""


def {{.Symbol}}():
    return True


if __name__ == "__main__":
    assert {{.Symbol}}()
`,
	".ts": `// Synthesized placeholder module.
export function {{.Symbol}}(): boolean {
  return true;
}

if (!{{.Symbol}}()) {
  throw new Error("{{.Symbol}} placeholder failed its trivial assertion");
}
`,
	".rs": `// Synthesized placeholder module.
pub fn {{.Symbol}}() -> bool {
    true
}

fn main() {
    assert!({{.Symbol}}());
}
`,
	".java": `// Synthesized placeholder module.
public class {{.Symbol}} {
    public static boolean run() {
        return true;
    }

    public static void main(String[] args) {
        assert run();
    }
}
`,
	".js": `// Synthesized placeholder module.
function {{.Symbol}}() {
  return true;
}

if (!{{.Symbol}}()) {
  throw new Error("{{.Symbol}} placeholder failed its trivial assertion");
}

module.exports = { {{.Symbol}} };
`,
}
