package expr

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Record is anything a field reference can be resolved against.
type Record interface {
	Get(path string) (any, bool)
}

// MapRecord resolves dotted paths through nested maps.
type MapRecord map[string]any

func (m MapRecord) Get(path string) (any, bool) {
	var cur any = map[string]any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// ErrDivisionByZero is returned by "/" and "%" with a zero divisor.
var ErrDivisionByZero = errors.New("division by zero")

// Eval evaluates a parsed expression against a record. Missing fields
// evaluate to nil; nil propagates through arithmetic.
func Eval(n Node, rec Record) (any, error) {
	switch n := n.(type) {
	case *Literal:
		return n.Value, nil
	case *Field:
		if rec == nil {
			return nil, nil
		}
		v, ok := rec.Get(n.Path)
		if !ok {
			return nil, nil
		}
		return normalize(v), nil
	case *Unary:
		v, err := Eval(n.Operand, rec)
		if err != nil {
			return nil, err
		}
		if n.Op == "not" {
			return !Truthy(v), nil
		}
		if v == nil {
			return nil, nil
		}
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("cannot negate %T", v)
		}
		return -f, nil
	case *Binary:
		return evalBinary(n, rec)
	case *Call:
		return evalCall(n, rec)
	}
	return nil, fmt.Errorf("unsupported expression node %T", n)
}

func evalBinary(n *Binary, rec Record) (any, error) {
	left, err := Eval(n.Left, rec)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "and":
		if !Truthy(left) {
			return false, nil
		}
		right, err := Eval(n.Right, rec)
		if err != nil {
			return nil, err
		}
		return Truthy(right), nil
	case "or":
		if Truthy(left) {
			return true, nil
		}
		right, err := Eval(n.Right, rec)
		if err != nil {
			return nil, err
		}
		return Truthy(right), nil
	}

	right, err := Eval(n.Right, rec)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "==":
		return Equal(left, right), nil
	case "!=":
		return !Equal(left, right), nil
	case "<", "<=", ">", ">=":
		c, ok := Compare(left, right)
		if !ok {
			return false, nil
		}
		switch n.Op {
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	}
	return arith(n.Op, left, right)
}

func arith(op string, left, right any) (any, error) {
	if left == nil || right == nil {
		return nil, nil
	}
	if op == "+" {
		if ls, ok := left.(string); ok {
			if rs, ok := right.(string); ok {
				return ls + rs, nil
			}
		}
	}
	l, lok := left.(float64)
	r, rok := right.(float64)
	if !lok || !rok {
		return nil, fmt.Errorf("operator %s needs numbers, got %T and %T", op, left, right)
	}
	switch op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return nil, ErrDivisionByZero
		}
		return l / r, nil
	case "%":
		if r == 0 {
			return nil, ErrDivisionByZero
		}
		return math.Mod(l, r), nil
	}
	return nil, fmt.Errorf("unknown operator %s", op)
}

func evalCall(c *Call, rec Record) (any, error) {
	recv, err := Eval(c.Receiver, rec)
	if err != nil {
		return nil, err
	}
	switch c.Method {
	case "exists":
		return recv != nil, nil
	case "length":
		switch v := recv.(type) {
		case nil:
			return nil, nil
		case string:
			return float64(len([]rune(v))), nil
		case []any:
			return float64(len(v)), nil
		case map[string]any:
			return float64(len(v)), nil
		}
		return nil, fmt.Errorf("length() is not defined for %T", recv)
	case "contains":
		arg, err := Eval(c.Args[0], rec)
		if err != nil {
			return nil, err
		}
		switch v := recv.(type) {
		case nil:
			return false, nil
		case string:
			s, ok := arg.(string)
			return ok && strings.Contains(v, s), nil
		case []any:
			for _, item := range v {
				if Equal(item, arg) {
					return true, nil
				}
			}
			return false, nil
		}
		return nil, fmt.Errorf("contains() is not defined for %T", recv)
	}
	return nil, fmt.Errorf("unknown method %q", c.Method)
}

// Truthy reports the boolean value of v: nil, false, 0, "" and empty
// collections are false.
func Truthy(v any) bool {
	switch t := normalize(v).(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

// Equal compares two values after numeric normalization.
func Equal(a, b any) bool {
	a, b = normalize(a), normalize(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders numbers, strings and bools. ok is false when the values
// are not mutually ordered.
func Compare(a, b any) (int, bool) {
	a, b = normalize(a), normalize(b)
	switch l := a.(type) {
	case float64:
		if r, ok := b.(float64); ok {
			switch {
			case l < r:
				return -1, true
			case l > r:
				return 1, true
			}
			return 0, true
		}
	case string:
		if r, ok := b.(string); ok {
			return strings.Compare(l, r), true
		}
	case bool:
		if r, ok := b.(bool); ok {
			switch {
			case l == r:
				return 0, true
			case !l:
				return -1, true
			}
			return 1, true
		}
	}
	return 0, false
}

// normalize maps every numeric type to float64 and []string to []any so
// comparisons see one representation.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case []string:
		out := make([]any, len(n))
		for i, s := range n {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, item := range n {
			out[i] = normalize(item)
		}
		return out
	}
	return v
}

// Expr is a compiled, reusable filter expression.
type Expr struct {
	src  string
	root Node
}

// Compile parses src once for repeated evaluation.
func Compile(src string) (*Expr, error) {
	root, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return &Expr{src: src, root: root}, nil
}

// MustCompile is Compile for expressions known to be valid.
func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Expr) String() string { return e.src }

// Eval evaluates the expression against rec.
func (e *Expr) Eval(rec Record) (any, error) { return Eval(e.root, rec) }

// Match reports whether the expression holds for rec. Evaluation errors
// count as no match.
func (e *Expr) Match(rec Record) bool {
	v, err := Eval(e.root, rec)
	return err == nil && Truthy(v)
}
