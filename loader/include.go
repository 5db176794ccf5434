package loader

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

// IncludeKind tells how an include target is resolved.
type IncludeKind int

const (
	// Relative includes ("file") resolve against the directory of the requesting file.
	Relative IncludeKind = iota
	// Standard includes (<file>) are used as-is.
	Standard
)

// MaxIncludeDepth bounds nested includes, which also stops include cycles.
const MaxIncludeDepth = 32

var includeDirective = regexp.MustCompile(`^\s*#\s*include\s*(?:"([^"]+)"|<([^>]+)>)\s*(?://.*)?$`)

// ResolveInclude returns the path of the file an include directive refers to.
func ResolveInclude(requested string, kind IncludeKind, requesting string) (string, error) {
	switch kind {
	case Standard:
		return requested, nil
	case Relative:
		if requesting == "" {
			return "", &IncludeError{
				Requested:  requested,
				Requesting: requesting,
				Err:        errors.New("requesting file has no parent directory"),
			}
		}
		return filepath.Join(filepath.Dir(requesting), requested), nil
	default:
		return "", errors.Newf("unknown include kind %d", kind)
	}
}

func readSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errors.New("source is not valid UTF-8")
	}
	return string(data), nil
}

type expander struct {
	sources []string
	conds   *conditionals
	once    map[string]bool
}

// expandIncludes replaces every include directive in src, which was read from path,
// with the contents of the included file. #line directives keep compiler diagnostics
// pointing at the right file and line; their source string numbers index the returned
// list of files.
//
// Includes inside #if groups that cannot be active under defines are left for the
// compiler to skip. A group whose condition depends on macros only the compiler
// knows is expanded when its includes can be read and left as-is otherwise.
func expandIncludes(path, src string, defines map[string]string) (string, []string, error) {
	e := &expander{
		sources: []string{path},
		conds:   newConditionals(defines),
		once:    make(map[string]bool),
	}

	var out strings.Builder
	err := e.expand(&out, path, src, 0, 0)
	if err != nil {
		return "", nil, err
	}
	return out.String(), e.sources, nil
}

func (e *expander) expand(out *strings.Builder, path, src string, index, depth int) error {
	scanner := bufio.NewScanner(strings.NewReader(src))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var groups []group
	active := func() cond {
		if len(groups) == 0 {
			return yes
		}
		top := groups[len(groups)-1]
		return top.outer.and(top.state)
	}

	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()

		name, args, ok := parseDirective(text)
		if !ok || name != "include" {
			if ok {
				groups = e.conditional(groups, active(), name, args, path)
			}
			out.WriteString(text)
			out.WriteByte('\n')
			continue
		}

		state := active()
		match := includeDirective.FindStringSubmatch(text)
		if state == no || match == nil {
			out.WriteString(text)
			out.WriteByte('\n')
			continue
		}

		requested, kind := match[1], Relative
		if requested == "" {
			requested, kind = match[2], Standard
		}

		target, err := ResolveInclude(requested, kind, path)
		if err != nil {
			return err
		}
		if e.once[filepath.Clean(target)] {
			out.WriteByte('\n')
			continue
		}

		if depth+1 > MaxIncludeDepth {
			return &IncludeError{
				Requested:  requested,
				Requesting: path,
				Path:       target,
				Err:        errors.Newf("includes nested deeper than %d levels", MaxIncludeDepth),
			}
		}

		content, err := readSource(target)
		if err != nil {
			if state == maybe {
				out.WriteString(text)
				out.WriteByte('\n')
				continue
			}
			return &IncludeError{Requested: requested, Requesting: path, Path: target, Err: err}
		}

		childIndex := len(e.sources)
		e.sources = append(e.sources, target)

		fmt.Fprintf(out, "#line 1 %d\n", childIndex)
		err = e.expand(out, target, content, childIndex, depth+1)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "#line %d %d\n", line+1, index)
	}

	return scanner.Err()
}

// conditional applies a non-include directive to the group stack. Unbalanced
// #else, #elif and #endif lines are left for the compiler to report.
func (e *expander) conditional(groups []group, state cond, name, args, path string) []group {
	switch name {
	case "if", "ifdef", "ifndef":
		var c cond
		switch name {
		case "if":
			c = e.conds.eval(args)
		case "ifdef":
			c = e.conds.defined(args)
		default:
			c = e.conds.defined(args)
			if c != maybe {
				c = condOf(c == no)
			}
		}
		return append(groups, group{outer: state, taken: c, state: c})
	case "elif", "else":
		if len(groups) == 0 {
			return groups
		}
		top := &groups[len(groups)-1]
		c := yes
		if name == "elif" {
			c = e.conds.eval(args)
		}
		switch top.taken {
		case yes:
			top.state = no
		case no:
			top.state = c
		default:
			top.state = maybe.and(c)
		}
		top.taken = top.taken.or(c)
	case "endif":
		if len(groups) > 0 {
			return groups[:len(groups)-1]
		}
	case "define", "undef":
		e.conds.define(state, name, args)
	case "pragma":
		if args == "once" && state == yes {
			e.once[filepath.Clean(path)] = true
		}
	}
	return groups
}
