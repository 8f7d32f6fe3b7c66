package topology

import (
	"fmt"
	"strings"
)

// Runtime selects the implementation of the processing function
type Runtime string

const (
	// RuntimeGo runs cmd/eventprocessor on the OS-only runtime
	RuntimeGo Runtime = "go"
	// RuntimePython runs the inline python handler
	RuntimePython Runtime = "python"
	// RuntimeNodeJS runs the inline javascript handler
	RuntimeNodeJS Runtime = "nodejs"
)

const pythonSource = `def main(event, context):
    print(event)
    return {'statusCode': 200, 'body': 'Hello, World'}
`

const nodeSource = `exports.handler = async function (event) {
  console.log(JSON.stringify(event));
  return { statusCode: 200, body: 'Hello, World' };
};
`

// ParseRuntime converts a configuration value into a Runtime
func ParseRuntime(s string) (Runtime, error) {
	r := Runtime(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("unknown function runtime %q (must be go, python or nodejs)", s)
	}
	return r, nil
}

// IsValid checks if the runtime value is valid
func (r Runtime) IsValid() bool {
	switch r {
	case RuntimeGo, RuntimePython, RuntimeNodeJS:
		return true
	default:
		return false
	}
}

// String returns the string representation of the runtime
func (r Runtime) String() string {
	return string(r)
}

// Identifier is the Lambda runtime identifier
func (r Runtime) Identifier() string {
	switch r {
	case RuntimePython:
		return "python3.12"
	case RuntimeNodeJS:
		return "nodejs20.x"
	default:
		return "provided.al2023"
	}
}

// Handler is the Lambda entry point
func (r Runtime) Handler() string {
	switch r {
	case RuntimePython:
		return "index.main"
	case RuntimeNodeJS:
		return "index.handler"
	default:
		return "bootstrap"
	}
}

// SourceFile is the file name of the inline source, empty for Go
func (r Runtime) SourceFile() string {
	switch r {
	case RuntimePython:
		return "index.py"
	case RuntimeNodeJS:
		return "index.js"
	default:
		return ""
	}
}

// InlineSource is the handler source shipped inline, empty for Go
func (r Runtime) InlineSource() string {
	switch r {
	case RuntimePython:
		return pythonSource
	case RuntimeNodeJS:
		return nodeSource
	default:
		return ""
	}
}

// Inline reports whether the function code is declared inline
func (r Runtime) Inline() bool {
	return r.InlineSource() != ""
}
