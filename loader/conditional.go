package loader

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// cond is the outcome of a preprocessor condition. Conditions that depend on
// macros the compiler defines itself, or on macros defined under such a
// condition, are maybe.
type cond int

const (
	no cond = iota
	yes
	maybe
)

func condOf(b bool) cond {
	if b {
		return yes
	}
	return no
}

func (c cond) and(o cond) cond {
	switch {
	case c == no || o == no:
		return no
	case c == maybe || o == maybe:
		return maybe
	default:
		return yes
	}
}

func (c cond) or(o cond) cond {
	switch {
	case c == yes || o == yes:
		return yes
	case c == maybe || o == maybe:
		return maybe
	default:
		return no
	}
}

var directive = regexp.MustCompile(`^\s*#\s*([A-Za-z_]\w*)\s*(.*)$`)

// parseDirective splits a preprocessor line into its name and argument text with
// trailing comments removed.
func parseDirective(line string) (string, string, bool) {
	match := directive.FindStringSubmatch(line)
	if match == nil {
		return "", "", false
	}
	rest := match[2]
	if i := strings.Index(rest, "//"); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.Index(rest, "/*"); i >= 0 {
		rest = rest[:i]
	}
	return match[1], strings.TrimSpace(rest), true
}

// group is one #if ... #endif block.
type group struct {
	outer cond
	taken cond
	state cond
}

// conditionals tracks #if nesting and #define state across the files of one
// expansion.
type conditionals struct {
	defines   map[string]string
	functions map[string]bool
	uncertain map[string]bool
}

func newConditionals(defines map[string]string) *conditionals {
	c := &conditionals{
		defines:   make(map[string]string, len(defines)),
		functions: make(map[string]bool),
		uncertain: make(map[string]bool),
	}
	for name, value := range defines {
		c.defines[name] = value
	}
	return c
}

// builtin reports names glslc may define on its own.
func builtin(name string) bool {
	return strings.HasPrefix(name, "GL_") || strings.HasPrefix(name, "__") || name == "VULKAN"
}

func (c *conditionals) defined(name string) cond {
	if c.uncertain[name] {
		return maybe
	}
	if _, ok := c.defines[name]; ok {
		return yes
	}
	if builtin(name) {
		return maybe
	}
	return no
}

// define records #define and #undef lines met in a region whose state is active.
func (c *conditionals) define(active cond, name, args string) {
	if active == no {
		return
	}
	macro := args
	if name == "define" {
		end := strings.IndexFunc(args, func(r rune) bool { return r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if end < 0 {
			end = len(args)
		}
		macro = args[:end]
		if macro == "" {
			return
		}
		if active == maybe {
			c.uncertain[macro] = true
			return
		}
		delete(c.uncertain, macro)
		c.defines[macro] = strings.TrimSpace(args[end:])
		c.functions[macro] = strings.HasPrefix(args[end:], "(")
		return
	}

	if active == maybe {
		c.uncertain[macro] = true
		return
	}
	delete(c.uncertain, macro)
	delete(c.defines, macro)
	delete(c.functions, macro)
}

// eval evaluates the expression of an #if or #elif line.
func (c *conditionals) eval(expr string) cond {
	p := &exprParser{c: c, tokens: tokenize(expr)}
	v := p.parse(0)
	if p.failed || p.pos != len(p.tokens) {
		return maybe
	}
	if !v.known {
		return maybe
	}
	return condOf(v.n != 0)
}

var exprToken = regexp.MustCompile(`\s*(0[xX][0-9a-fA-F]+|\d+|[A-Za-z_]\w*|&&|\|\||==|!=|<=|>=|<<|>>|[-+*/%()!~<>&|^])`)

func tokenize(expr string) []string {
	var tokens []string
	for len(strings.TrimSpace(expr)) > 0 {
		loc := exprToken.FindStringSubmatchIndex(expr)
		if loc == nil || loc[0] != 0 {
			return append(tokens, "?")
		}
		tokens = append(tokens, expr[loc[2]:loc[3]])
		expr = expr[loc[1]:]
	}
	return tokens
}

type value struct {
	n     int64
	known bool
}

func known(n int64) value {
	return value{n: n, known: true}
}

var unknown = value{}

func truth(b bool) value {
	if b {
		return known(1)
	}
	return known(0)
}

var precedence = map[string]int{
	"||": 1,
	"&&": 2,
	"|":  3,
	"^":  4,
	"&":  5,
	"==": 6, "!=": 6,
	"<": 7, ">": 7, "<=": 7, ">=": 7,
	"<<": 8, ">>": 8,
	"+": 9, "-": 9,
	"*": 10, "/": 10, "%": 10,
}

// exprParser is a precedence climbing parser over preprocessor integer expressions.
type exprParser struct {
	c      *conditionals
	tokens []string
	pos    int
	failed bool
	depth  int
}

func (p *exprParser) peek() string {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return ""
}

func (p *exprParser) next() string {
	t := p.peek()
	if t != "" {
		p.pos++
	}
	return t
}

func (p *exprParser) parse(minPrec int) value {
	lhs := p.unary()
	for {
		op := p.peek()
		prec, ok := precedence[op]
		if !ok || prec <= minPrec {
			return lhs
		}
		p.next()
		rhs := p.parse(prec)
		lhs = binary(op, lhs, rhs)
	}
}

func binary(op string, a, b value) value {
	switch op {
	case "&&":
		if (a.known && a.n == 0) || (b.known && b.n == 0) {
			return known(0)
		}
		if a.known && b.known {
			return known(1)
		}
		return unknown
	case "||":
		if (a.known && a.n != 0) || (b.known && b.n != 0) {
			return known(1)
		}
		if a.known && b.known {
			return known(0)
		}
		return unknown
	}

	if !a.known || !b.known {
		return unknown
	}
	switch op {
	case "|":
		return known(a.n | b.n)
	case "^":
		return known(a.n ^ b.n)
	case "&":
		return known(a.n & b.n)
	case "==":
		return truth(a.n == b.n)
	case "!=":
		return truth(a.n != b.n)
	case "<":
		return truth(a.n < b.n)
	case ">":
		return truth(a.n > b.n)
	case "<=":
		return truth(a.n <= b.n)
	case ">=":
		return truth(a.n >= b.n)
	case "<<":
		return known(a.n << uint64(b.n&63))
	case ">>":
		return known(a.n >> uint64(b.n&63))
	case "+":
		return known(a.n + b.n)
	case "-":
		return known(a.n - b.n)
	case "*":
		return known(a.n * b.n)
	case "/", "%":
		if b.n == 0 {
			return unknown
		}
		if op == "/" {
			return known(a.n / b.n)
		}
		return known(a.n % b.n)
	}
	return unknown
}

func (p *exprParser) unary() value {
	t := p.next()
	switch {
	case t == "":
		p.failed = true
		return unknown
	case t == "!":
		v := p.unary()
		if !v.known {
			return unknown
		}
		return truth(v.n == 0)
	case t == "-" || t == "+" || t == "~":
		v := p.unary()
		if !v.known {
			return unknown
		}
		switch t {
		case "-":
			return known(-v.n)
		case "~":
			return known(^v.n)
		}
		return v
	case t == "(":
		v := p.parse(0)
		if p.next() != ")" {
			p.failed = true
		}
		return v
	case t == "defined":
		return p.definedOperand()
	case t[0] >= '0' && t[0] <= '9':
		n, err := strconv.ParseInt(t, 0, 64)
		if err != nil {
			p.failed = true
			return unknown
		}
		return known(n)
	case t[0] == '_' || unicode.IsLetter(rune(t[0])):
		return p.identifier(t)
	}
	p.failed = true
	return unknown
}

func (p *exprParser) definedOperand() value {
	paren := p.peek() == "("
	if paren {
		p.next()
	}
	name := p.next()
	if name == "" || !(name[0] == '_' || unicode.IsLetter(rune(name[0]))) {
		p.failed = true
		return unknown
	}
	if paren && p.next() != ")" {
		p.failed = true
		return unknown
	}
	switch p.c.defined(name) {
	case yes:
		return known(1)
	case no:
		return known(0)
	}
	return unknown
}

// identifier evaluates a macro name. Undefined names are 0.
func (p *exprParser) identifier(name string) value {
	switch p.c.defined(name) {
	case no:
		return known(0)
	case maybe:
		return unknown
	}
	if p.depth >= 8 || p.c.functions[name] {
		return unknown
	}
	body := p.c.defines[name]
	if body == "" {
		return unknown
	}
	sub := &exprParser{c: p.c, tokens: tokenize(body), depth: p.depth + 1}
	v := sub.parse(0)
	if sub.failed || sub.pos != len(sub.tokens) {
		return unknown
	}
	return v
}
