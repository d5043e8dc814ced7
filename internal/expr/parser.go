package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse turns an expression string into an AST.
func Parse(src string) (Node, error) {
	if strings.TrimSpace(src) == "" {
		return nil, &SyntaxError{Pos: 0, Msg: "expression cannot be empty"}
	}
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	if len(toks) > maxTokens {
		return nil, &SyntaxError{Pos: toks[maxTokens].pos, Msg: "expression too long"}
	}
	p := &parser{toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("unexpected %s", t)}
	}
	return n, nil
}

// Limits on untrusted input. Evaluation recurses over the tree, so both
// nesting and total size are bounded.
const (
	maxDepth  = 256
	maxTokens = 10000
)

type parser struct {
	toks  []token
	pos   int
	depth int
}

// enter guards one level of recursion; pair it with leave.
func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return &SyntaxError{Pos: p.peek().pos, Msg: "expression nested too deeply"}
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// acceptOp consumes the current token if it is one of the given operators
// or keywords and returns its normalized form.
func (p *parser) acceptOp(forms map[string]string) (string, bool) {
	t := p.peek()
	if t.kind != tokOp && t.kind != tokIdent {
		return "", false
	}
	norm, ok := forms[t.text]
	if !ok {
		return "", false
	}
	p.next()
	return norm, true
}

var (
	orForms  = map[string]string{"|": "or", "||": "or", "or": "or"}
	andForms = map[string]string{"&": "and", "&&": "and", "and": "and"}
	notForms = map[string]string{"~": "not", "!": "not", "not": "not"}
	cmpForms = map[string]string{"==": "==", "!=": "!=", "<": "<", "<=": "<=", ">": ">", ">=": ">="}
	sumForms = map[string]string{"+": "+", "-": "-"}
	mulForms = map[string]string{"*": "*", "/": "/", "%": "%"}
)

func (p *parser) parseOr() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp(orForms)
		if !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp(andForms)
		if !ok {
			return left, nil
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseNot() (Node, error) {
	if _, ok := p.acceptOp(notForms); ok {
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "not", Operand: operand}, nil
	}
	return p.parseCmp()
}

func (p *parser) parseCmp() (Node, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	op, ok := p.acceptOp(cmpForms)
	if !ok {
		return left, nil
	}
	right, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind == tokOp {
		if _, chained := cmpForms[t.text]; chained {
			return nil, &SyntaxError{Pos: t.pos, Msg: "chained comparisons need parentheses"}
		}
	}
	return &Binary{Op: op, Left: left, Right: right}, nil
}

func (p *parser) parseSum() (Node, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp(sumForms)
		if !ok {
			return left, nil
		}
		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseProduct() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp(mulForms)
		if !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (Node, error) {
	if t := p.peek(); t.kind == tokOp && t.text == "-" {
		p.next()
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if lit, ok := operand.(*Literal); ok {
			if f, ok := lit.Value.(float64); ok {
				return &Literal{Value: -f}, nil
			}
		}
		return &Unary{Op: "neg", Operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Node, error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokDot {
		p.next()
		name := p.next()
		if name.kind != tokIdent {
			return nil, &SyntaxError{Pos: name.pos, Msg: fmt.Sprintf("expected method name, got %s", name)}
		}
		arity, ok := methodArity[name.text]
		if !ok {
			return nil, &SyntaxError{Pos: name.pos, Msg: fmt.Sprintf("unknown method %q", name.text)}
		}
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		if len(args) != arity {
			return nil, &SyntaxError{Pos: name.pos, Msg: fmt.Sprintf("%s() takes %d argument(s), got %d", name.text, arity, len(args))}
		}
		n = &Call{Receiver: n, Method: name.text, Args: args}
	}
	return n, nil
}

func (p *parser) parseArgs() ([]Node, error) {
	if t := p.next(); t.kind != tokLParen {
		return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("expected \"(\", got %s", t)}
	}
	var args []Node
	if p.peek().kind == tokRParen {
		p.next()
		return args, nil
	}
	for {
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		t := p.next()
		switch t.kind {
		case tokComma:
			continue
		case tokRParen:
			return args, nil
		default:
			return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("expected \",\" or \")\", got %s", t)}
		}
	}
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("bad number %q", t.text)}
		}
		return &Literal{Value: f}, nil
	case tokString:
		return &Literal{Value: t.text}, nil
	case tokLParen:
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, &SyntaxError{Pos: closing.pos, Msg: fmt.Sprintf("expected \")\", got %s", closing)}
		}
		return n, nil
	case tokIdent:
		switch t.text {
		case "true", "True":
			return &Literal{Value: true}, nil
		case "false", "False":
			return &Literal{Value: false}, nil
		case "null", "None":
			return &Literal{Value: nil}, nil
		case "F", "ViewField":
			return p.parseField(t)
		}
		return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("unknown name %q", t.text)}
	}
	return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("unexpected %s", t)}
}

func (p *parser) parseField(name token) (Node, error) {
	args, err := p.parseArgs()
	if err != nil {
		return nil, err
	}
	if len(args) != 1 {
		return nil, &SyntaxError{Pos: name.pos, Msg: fmt.Sprintf("%s() takes exactly one field name", name.text)}
	}
	lit, ok := args[0].(*Literal)
	if !ok {
		return nil, &SyntaxError{Pos: name.pos, Msg: "field name must be a string literal"}
	}
	path, ok := lit.Value.(string)
	if !ok || path == "" {
		return nil, &SyntaxError{Pos: name.pos, Msg: "field name must be a non-empty string"}
	}
	return &Field{Path: path}, nil
}
