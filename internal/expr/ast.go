package expr

import (
	"fmt"
	"strconv"
)

// Node is a parsed expression.
type Node interface {
	String() string
}

// Literal is a constant: float64, string, bool or nil.
type Literal struct {
	Value any
}

func (l *Literal) String() string {
	switch v := l.Value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	default:
		return fmt.Sprint(v)
	}
}

// Field references a (possibly dotted) sample field: F("a.b").
type Field struct {
	Path string
}

func (f *Field) String() string { return fmt.Sprintf("F(%q)", f.Path) }

// Unary is a prefix operator: "not" or "neg".
type Unary struct {
	Op      string
	Operand Node
}

func (u *Unary) String() string { return fmt.Sprintf("(%s %s)", u.Op, u.Operand) }

// Binary is an infix operator. Op is normalized: "and", "or", "==", "+", ...
type Binary struct {
	Op          string
	Left, Right Node
}

func (b *Binary) String() string { return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right) }

// Call is a method applied to a receiver: F("tags").contains("cat").
type Call struct {
	Receiver Node
	Method   string
	Args     []Node
}

func (c *Call) String() string {
	s := fmt.Sprintf("%s.%s(", c.Receiver, c.Method)
	for i, a := range c.Args {
		if i > 0 {
			s += ", "
		}
		s += a.String()
	}
	return s + ")"
}

// methodArity lists the supported methods and their argument counts.
var methodArity = map[string]int{
	"exists":   0,
	"length":   0,
	"contains": 1,
}
