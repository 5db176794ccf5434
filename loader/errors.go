package loader

import (
	"fmt"
	"strings"
)

// IOError is returned when the shader source cannot be read or is not UTF-8 text.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// IncludeError is returned when an include directive cannot be resolved.
type IncludeError struct {
	Requested  string
	Requesting string
	// Path is the resolved file path, empty if resolution failed before that.
	Path string
	Err  error
}

func (e *IncludeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("cannot include %s from %s: %v", e.Requested, e.Requesting, e.Err)
	}
	return fmt.Sprintf("cannot include %s from %s using path %s: %v", e.Requested, e.Requesting, e.Path, e.Err)
}

func (e *IncludeError) Unwrap() error {
	return e.Err
}

// CompileError carries the compiler diagnostics for a source that failed to compile.
type CompileError struct {
	Path string
	Log  string
	// Sources maps the source string numbers used in #line directives to files.
	Sources []string
}

func (e *CompileError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "failed to compile %s", e.Path)
	if log := strings.TrimSpace(e.Log); log != "" {
		sb.WriteString(":\n")
		sb.WriteString(log)
	}
	if len(e.Sources) > 1 {
		sb.WriteString("\nsource strings:")
		for i, source := range e.Sources {
			fmt.Fprintf(&sb, "\n  %d: %s", i, source)
		}
	}
	return sb.String()
}
