package preprocess

import (
	"fmt"
	"strings"
)

// Wrapper tokens emitted by WrapBody. The body text appears verbatim
// between them.
const (
	WrapOpen  = "(() => {\n"
	WrapClose = "\n})();\n"
)

// ImportError reports a static import statement found after the import
// region, i.e. below the first real statement of the file. Line is 1-based
// over the full source text.
type ImportError struct {
	Line    int
	Message string
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// isImportRegionLine reports whether a line could still belong to the
// import region at the top of a file: blank lines, comments, import
// statement openers, and the continuation lines of a multi-line import.
//
// Continuations are recognized purely by shape: an indented line, or a
// line starting with `}` (closing a brace-delimited import list). No brace
// depth or import grammar is tracked; the predicate is deliberately
// conservative and keeps ambiguous lines in the import region.
func isImportRegionLine(line string) bool {
	if line == "" {
		return true
	}
	switch line[0] {
	case ' ', '\t', '\v', '\f', '\r':
		return true
	case '}':
		return true
	}
	return strings.HasPrefix(line, "//") ||
		strings.HasPrefix(line, "/*") ||
		strings.HasPrefix(line, "import ")
}

// SplitImportRegion splits src lines into the leading import region and
// the body that follows. The boundary is the first line for which
// isImportRegionLine is false; if every line qualifies, the body is empty.
// Concatenating the two returned slices reproduces the input lines exactly.
func SplitImportRegion(src string) (importLines, bodyLines []string) {
	lines := strings.Split(src, "\n")
	boundary := len(lines)
	for i, line := range lines {
		if !isImportRegionLine(line) {
			boundary = i
			break
		}
	}
	return lines[:boundary], lines[boundary:]
}

// CheckBodyImports scans the body region for static import statements.
// Imports are only valid in the leading import region; one found past the
// boundary means either a non-top-level import (unsupported downstream) or
// a misclassified prologue, and both must abort the transform rather than
// silently miscompile. boundary is the 0-based index of the first body
// line within the full source; the returned *ImportError reports the
// offending line 1-based.
func CheckBodyImports(bodyLines []string, boundary int) error {
	for i, line := range bodyLines {
		if strings.HasPrefix(line, "import ") {
			return &ImportError{
				Line:    boundary + i + 1,
				Message: "import statements must appear before the first statement of the file",
			}
		}
	}
	return nil
}

// WrapBody wraps body in an immediately-invoked arrow function so that
// bare early `return` statements parse as top-level code. The body is
// preserved byte-for-byte between WrapOpen and WrapClose. Wrapping an
// already-wrapped body produces a harmless double wrap; no guard is
// attempted.
func WrapBody(body string) string {
	return WrapOpen + body + WrapClose
}
