// Package odata translates OData system query options into queries.
//
// A $filter expression is parsed into an Expression tree that mirrors the
// OData grammar, then Translate maps it onto query nodes through a static
// operator table:
//
//	or and                  query.Or query.And
//	eq ne gt ge lt le       query.Comparison
//	add sub mul div mod     query.Arithmetic
//	not                     query.Not
//	-x                      query.Multiply(x, -1)
//
// Literals are converted according to their Edm primitive type and an
// untyped null becomes a nil value. Alias references, lambda references,
// enumerations, method calls, type literals and the has operator have no
// translation and fail with UNSUPPORTED_EXPRESSION.
//
// Operator precedence, lowest first, with each level left associative:
//
//	or
//	and
//	eq ne
//	gt ge lt le has
//	add sub
//	mul div mod
//	not -
package odata
