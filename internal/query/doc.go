// Package query provides the backend-neutral expression tree used to filter
// records, along with the default SQL renderer and the in-memory evaluator.
//
// ARCHITECTURE:
//
// A Query carries a Condition tree built from a closed set of node types:
//
//	Column  Value  Collection                    leaves
//	Arithmetic                                   + - * / %
//	Comparison                                   = <> < <= > >= LIKE ILIKE
//	Logical  Membership  NullCheck  Raw          AND/OR, IN, IS NULL, SQL text
//	Negation  Group                              NOT (...), (...)
//	EnvelopeIntersects  WithinDistance           spatial predicates
//
// Node and Condition are sealed interfaces using the marker method pattern.
// Each backend is one function that switches over the concrete types:
//
//	Bind             attach field metadata from a record.Definition
//	SQLWriter        default SQL with `?` placeholders
//	AppendParameters bind parameters in placeholder order
//	Format           readable text with literals inlined
//	Test / Evaluate  in-memory predicate
//
// Dialects that need different rendering for a few nodes implement Extension
// and fall back to the default renderer for the rest.
//
// IMMUTABILITY:
//
// Nodes are values. Constructors copy their slices and Bind returns a new
// tree, so subtrees may be shared freely between queries.
//
// PARAMETER ORDER:
//
// SQLWriter and AppendParameters walk the tree depth-first, left to right.
// For any tree, the number of `?` written equals the number of parameters
// appended. A Collection bound to a field writes the field's placeholder
// text once per element.
package query
