package odata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geoquery/internal/query"
)

func TestLex_Literals(t *testing.T) {
	testCases := []struct {
		input    string
		text     string
		typeName string
	}{
		{"42", "42", EdmInt32},
		{"-42", "-42", EdmInt32},
		{"2147483647", "2147483647", EdmInt32},
		{"2147483648", "2147483648", EdmInt64},
		{"-2147483648", "-2147483648", EdmInt32},
		{"12L", "12L", EdmInt64},
		{"12.5", "12.5", EdmDecimal},
		{"12.5m", "12.5m", EdmDecimal},
		{"1e3", "1e3", EdmDouble},
		{"2.5d", "2.5d", EdmDouble},
		{"2.5f", "2.5f", EdmSingle},
		{"'O''Brien'", "O'Brien", EdmString},
		{"''", "", EdmString},
		{"2024-03-01", "2024-03-01", EdmDate},
		{"2024-03-01T10:30:00Z", "2024-03-01T10:30:00Z", EdmDateTimeOffset},
		{"2024-03-01T10:30:00.5+02:00", "2024-03-01T10:30:00.5+02:00", EdmDateTimeOffset},
		{"10:30:00", "10:30:00", EdmTimeOfDay},
		{"01234567-89ab-cdef-0123-456789abcdef", "01234567-89ab-cdef-0123-456789abcdef", EdmGuid},
		{"datetime'2024-03-01T10:30:00'", "2024-03-01T10:30:00", EdmDateTime},
		{"guid'01234567-89ab-cdef-0123-456789abcdef'", "01234567-89ab-cdef-0123-456789abcdef", EdmGuid},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			toks, err := lex(tc.input)
			require.NoError(t, err)
			require.Len(t, toks, 2)
			assert.Equal(t, tokLiteral, toks[0].kind)
			assert.Equal(t, tc.text, toks[0].text)
			assert.Equal(t, tc.typeName, toks[0].typeName)
			assert.Equal(t, tokEOF, toks[1].kind)
		})
	}
}

func TestLex_Tokens(t *testing.T) {
	toks, err := lex("Tags/any(t: t eq @p1) and -Age gt NS.Color'Red'")
	require.NoError(t, err)

	var kinds []tokenKind
	var texts []string
	for _, tok := range toks {
		kinds = append(kinds, tok.kind)
		texts = append(texts, tok.text)
	}
	assert.Equal(t, []tokenKind{
		tokIdent, tokLParen, tokIdent, tokColon, tokIdent, tokIdent, tokAlias, tokRParen,
		tokIdent, tokMinus, tokIdent, tokIdent, tokEnum, tokEOF,
	}, kinds)
	assert.Equal(t, []string{
		"Tags/any", "(", "t", ":", "t", "eq", "p1", ")",
		"and", "-", "Age", "gt", "Red", "",
	}, texts)
	assert.Equal(t, "NS.Color", toks[12].typeName)
}

func TestLex_Errors(t *testing.T) {
	for _, input := range []string{"Name eq 'open", "Age gt #", "foo'bar'", "@"} {
		t.Run(input, func(t *testing.T) {
			_, err := lex(input)
			require.Error(t, err)
			assert.True(t, query.IsParseError(err), "got %v", err)
		})
	}
}

func member(path string) MemberAccess { return MemberAccess{Path: path} }

func int32Const(text string) Constant { return Constant{Text: text, TypeName: EdmInt32} }

func TestParseFilter_Associativity(t *testing.T) {
	expr, err := ParseFilter("Age gt 18 and Name eq 'Bob'")
	require.NoError(t, err)
	assert.Equal(t, BinaryOperator{
		Operator: And,
		Left:     BinaryOperator{Operator: GreaterThan, Left: member("Age"), Right: int32Const("18")},
		Right:    BinaryOperator{Operator: Equal, Left: member("Name"), Right: Constant{Text: "Bob", TypeName: EdmString}},
	}, expr)
}

func TestParseFilter_Precedence(t *testing.T) {
	a := BinaryOperator{Operator: Equal, Left: member("A"), Right: int32Const("1")}
	b := BinaryOperator{Operator: Equal, Left: member("B"), Right: int32Const("2")}
	c := BinaryOperator{Operator: Equal, Left: member("C"), Right: int32Const("3")}

	testCases := []struct {
		name  string
		input string
		want  Expression
	}{
		{
			name:  "and binds tighter than or",
			input: "A eq 1 or B eq 2 and C eq 3",
			want:  BinaryOperator{Operator: Or, Left: a, Right: BinaryOperator{Operator: And, Left: b, Right: c}},
		},
		{
			name:  "parentheses override",
			input: "(A eq 1 or B eq 2) and C eq 3",
			want:  BinaryOperator{Operator: And, Left: BinaryOperator{Operator: Or, Left: a, Right: b}, Right: c},
		},
		{
			name:  "and is left associative",
			input: "A eq 1 and B eq 2 and C eq 3",
			want:  BinaryOperator{Operator: And, Left: BinaryOperator{Operator: And, Left: a, Right: b}, Right: c},
		},
		{
			name:  "mul binds tighter than add",
			input: "A add B mul 2 gt 10",
			want: BinaryOperator{
				Operator: GreaterThan,
				Left: BinaryOperator{
					Operator: Add,
					Left:     member("A"),
					Right:    BinaryOperator{Operator: Multiply, Left: member("B"), Right: int32Const("2")},
				},
				Right: int32Const("10"),
			},
		},
		{
			name:  "sub is left associative",
			input: "A sub B sub C eq 0",
			want: BinaryOperator{
				Operator: Equal,
				Left: BinaryOperator{
					Operator: Subtract,
					Left:     BinaryOperator{Operator: Subtract, Left: member("A"), Right: member("B")},
					Right:    member("C"),
				},
				Right: int32Const("0"),
			},
		},
		{
			name:  "not applies to the parenthesized condition",
			input: "not (A eq 1)",
			want:  UnaryOperator{Operator: Not, Operand: a},
		},
		{
			name:  "not without a space",
			input: "not(A eq 1)",
			want:  UnaryOperator{Operator: Not, Operand: a},
		},
		{
			name:  "negated member",
			input: "-A lt 0",
			want:  BinaryOperator{Operator: LessThan, Left: UnaryOperator{Operator: Negate, Operand: member("A")}, Right: int32Const("0")},
		},
		{
			name:  "minus before spaced number folds",
			input: "A eq - 5",
			want:  BinaryOperator{Operator: Equal, Left: member("A"), Right: int32Const("-5")},
		},
		{
			name:  "null and booleans",
			input: "A eq null or B eq true",
			want: BinaryOperator{
				Operator: Or,
				Left:     BinaryOperator{Operator: Equal, Left: member("A"), Right: Constant{Text: "null"}},
				Right:    BinaryOperator{Operator: Equal, Left: member("B"), Right: Constant{Text: "true", TypeName: EdmBoolean}},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseFilter(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseFilter_Unsupported(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  Expression
	}{
		{
			name:  "method call",
			input: "contains(Name, 'ob')",
			want:  MethodCall{Name: "contains", Arguments: []Expression{member("Name"), Constant{Text: "ob", TypeName: EdmString}}},
		},
		{
			name:  "method without arguments",
			input: "now()",
			want:  MethodCall{Name: "now"},
		},
		{
			name:  "lambda",
			input: "Tags/any(t: t/Name eq 'x')",
			want: MethodCall{Name: "any", Arguments: []Expression{
				member("Tags"),
				BinaryOperator{Operator: Equal, Left: LambdaReference{Variable: "t", Path: "Name"}, Right: Constant{Text: "x", TypeName: EdmString}},
			}},
		},
		{
			name:  "alias",
			input: "@p1",
			want:  AliasReference{Name: "p1"},
		},
		{
			name:  "enum",
			input: "NS.Color'Red'",
			want:  Enum{Type: "NS.Color", Value: "Red"},
		},
		{
			name:  "type literal",
			input: "isof(Edm.String)",
			want:  MethodCall{Name: "isof", Arguments: []Expression{TypeLiteral{Name: "Edm.String"}}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseFilter(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseFilter_Errors(t *testing.T) {
	for _, input := range []string{
		"",
		"   ",
		"Age gt",
		"(Age gt 1",
		"Age gt 1)",
		"Age 1",
		"contains(Name 'x')",
		"Tags/count(t: t eq 1)",
		"Tags/any(t t eq 1)",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseFilter(input)
			require.Error(t, err)
			assert.True(t, query.IsParseError(err), "got %v", err)
		})
	}
}
