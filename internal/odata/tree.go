package odata

// Expression is a node of a parsed $filter expression.
type Expression interface {
	// Kind names the node type in error messages.
	Kind() string
	expression()
}

// BinaryKind is the operator of a BinaryOperator.
type BinaryKind string

const (
	Or                 BinaryKind = "or"
	And                BinaryKind = "and"
	Equal              BinaryKind = "eq"
	NotEqual           BinaryKind = "ne"
	GreaterThan        BinaryKind = "gt"
	GreaterThanOrEqual BinaryKind = "ge"
	LessThan           BinaryKind = "lt"
	LessThanOrEqual    BinaryKind = "le"
	Has                BinaryKind = "has"
	Add                BinaryKind = "add"
	Subtract           BinaryKind = "sub"
	Multiply           BinaryKind = "mul"
	Divide             BinaryKind = "div"
	Modulo             BinaryKind = "mod"
)

// UnaryKind is the operator of a UnaryOperator.
type UnaryKind string

const (
	Not    UnaryKind = "not"
	Negate UnaryKind = "-"
)

// BinaryOperator applies an infix operator.
type BinaryOperator struct {
	Operator BinaryKind
	Left     Expression
	Right    Expression
}

// UnaryOperator applies a prefix operator.
type UnaryOperator struct {
	Operator UnaryKind
	Operand  Expression
}

// Constant is a literal. TypeName is the Edm primitive type the literal was
// written as; it is empty for an untyped null.
type Constant struct {
	Text     string
	TypeName string
}

// MemberAccess references a property, possibly through navigation segments
// separated by '/'.
type MemberAccess struct {
	Path string
}

// AliasReference references a parameter alias such as @p1.
type AliasReference struct {
	Name string
}

// LambdaReference references the range variable of an any/all lambda.
type LambdaReference struct {
	Variable string
	Path     string
}

// Enum is a qualified enumeration literal such as NS.Color'Red'.
type Enum struct {
	Type  string
	Value string
}

// MethodCall is a function call such as contains(Name,'x') or the any/all
// lambda operators.
type MethodCall struct {
	Name      string
	Arguments []Expression
}

// TypeLiteral is a qualified type name, as in isof(Edm.String).
type TypeLiteral struct {
	Name string
}

func (BinaryOperator) Kind() string  { return "binary operator" }
func (UnaryOperator) Kind() string   { return "unary operator" }
func (Constant) Kind() string        { return "constant" }
func (MemberAccess) Kind() string    { return "member access" }
func (AliasReference) Kind() string  { return "alias reference" }
func (LambdaReference) Kind() string { return "lambda reference" }
func (Enum) Kind() string            { return "enumeration" }
func (MethodCall) Kind() string      { return "method call" }
func (TypeLiteral) Kind() string     { return "type literal" }

func (BinaryOperator) expression()  {}
func (UnaryOperator) expression()   {}
func (Constant) expression()        {}
func (MemberAccess) expression()    {}
func (AliasReference) expression()  {}
func (LambdaReference) expression() {}
func (Enum) expression()            {}
func (MethodCall) expression()      {}
func (TypeLiteral) expression()     {}
