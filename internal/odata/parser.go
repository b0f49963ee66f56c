package odata

import (
	"strings"

	"github.com/roach88/geoquery/internal/query"
)

// Binary operators by precedence level, lowest first. Operators on one
// level are left associative.
var precedence = [][]BinaryKind{
	{Or},
	{And},
	{Equal, NotEqual},
	{GreaterThan, GreaterThanOrEqual, LessThan, LessThanOrEqual, Has},
	{Add, Subtract},
	{Multiply, Divide, Modulo},
}

// ParseFilter parses a $filter expression.
func ParseFilter(text string) (Expression, error) {
	if strings.TrimSpace(text) == "" {
		return nil, query.NewParseError("empty filter expression")
	}
	toks, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	expr, err := p.binary(0)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.unexpected(t)
	}
	return expr, nil
}

type parser struct {
	toks []token
	pos  int

	// lambda variables in scope, innermost last
	scope []string
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) error {
	if t := p.next(); t.kind != kind {
		return query.NewParseError("expected %s at position %d, found %s", what, t.pos, describe(t))
	}
	return nil
}

func (p *parser) unexpected(t token) error {
	return query.NewParseError("unexpected %s at position %d", describe(t), t.pos)
}

func describe(t token) string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return "'" + t.text + "'"
}

// operatorAt returns the operator of the given level the next token names.
func (p *parser) operatorAt(level int) (BinaryKind, bool) {
	t := p.peek()
	if t.kind != tokIdent {
		return "", false
	}
	for _, op := range precedence[level] {
		if t.text == string(op) {
			return op, true
		}
	}
	return "", false
}

func (p *parser) binary(level int) (Expression, error) {
	if level == len(precedence) {
		return p.unary()
	}
	left, err := p.binary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.operatorAt(level)
		if !ok {
			return left, nil
		}
		p.next()
		right, err := p.binary(level + 1)
		if err != nil {
			return nil, err
		}
		left = BinaryOperator{Operator: op, Left: left, Right: right}
	}
}

func (p *parser) unary() (Expression, error) {
	t := p.peek()
	switch {
	case t.kind == tokIdent && t.text == string(Not):
		p.next()
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return UnaryOperator{Operator: Not, Operand: operand}, nil
	case t.kind == tokMinus:
		p.next()
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		if c, ok := operand.(Constant); ok && isNumeric(c.TypeName) && !strings.HasPrefix(c.Text, "-") {
			c.Text = "-" + c.Text
			return c, nil
		}
		return UnaryOperator{Operator: Negate, Operand: operand}, nil
	}
	return p.primary()
}

func (p *parser) primary() (Expression, error) {
	t := p.next()
	switch t.kind {
	case tokLParen:
		expr, err := p.binary(0)
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return expr, nil
	case tokLiteral:
		return Constant{Text: t.text, TypeName: t.typeName}, nil
	case tokEnum:
		return Enum{Type: t.typeName, Value: t.text}, nil
	case tokAlias:
		return AliasReference{Name: t.text}, nil
	case tokIdent:
		return p.identifier(t)
	default:
		return nil, p.unexpected(t)
	}
}

func (p *parser) identifier(t token) (Expression, error) {
	switch t.text {
	case "true", "false":
		return Constant{Text: t.text, TypeName: EdmBoolean}, nil
	case "null":
		return Constant{Text: t.text}, nil
	}
	if p.peek().kind == tokLParen {
		return p.call(t.text)
	}
	if strings.Contains(t.text, ".") && !strings.Contains(t.text, "/") {
		return TypeLiteral{Name: t.text}, nil
	}
	head, rest, _ := strings.Cut(t.text, "/")
	for i := len(p.scope) - 1; i >= 0; i-- {
		if p.scope[i] == head {
			return LambdaReference{Variable: head, Path: rest}, nil
		}
	}
	return MemberAccess{Path: t.text}, nil
}

// call parses the argument list of a function or of an any/all lambda
// applied to a collection path.
func (p *parser) call(name string) (Expression, error) {
	p.next()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		fn := name[i+1:]
		if fn != "any" && fn != "all" {
			return nil, query.NewParseError("unknown collection function %q", fn)
		}
		collection, err := p.identifier(token{kind: tokIdent, text: name[:i]})
		if err != nil {
			return nil, err
		}
		return p.lambda(fn, collection)
	}

	var args []Expression
	if p.peek().kind == tokRParen {
		p.next()
		return MethodCall{Name: name, Arguments: args}, nil
	}
	for {
		arg, err := p.binary(0)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		t := p.next()
		if t.kind == tokRParen {
			return MethodCall{Name: name, Arguments: args}, nil
		}
		if t.kind != tokComma {
			return nil, query.NewParseError("expected ',' or ')' at position %d, found %s", t.pos, describe(t))
		}
	}
}

func (p *parser) lambda(fn string, collection Expression) (Expression, error) {
	if p.peek().kind == tokRParen {
		p.next()
		return MethodCall{Name: fn, Arguments: []Expression{collection}}, nil
	}
	v := p.next()
	if v.kind != tokIdent || strings.ContainsAny(v.text, "./") {
		return nil, query.NewParseError("expected lambda variable at position %d, found %s", v.pos, describe(v))
	}
	if err := p.expect(tokColon, "':'"); err != nil {
		return nil, err
	}
	p.scope = append(p.scope, v.text)
	body, err := p.binary(0)
	p.scope = p.scope[:len(p.scope)-1]
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	return MethodCall{Name: fn, Arguments: []Expression{collection, body}}, nil
}
