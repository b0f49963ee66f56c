package odata

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/roach88/geoquery/internal/query"
	"github.com/roach88/geoquery/internal/record"
)

// System query options understood by ParseQuery.
const (
	OptionFilter  = "$filter"
	OptionOrderBy = "$orderby"
	OptionTop     = "$top"
	OptionSkip    = "$skip"
	OptionSelect  = "$select"
)

// ParseOrderBy parses a $orderby value such as "Name desc, Age".
func ParseOrderBy(text string) ([]query.Order, error) {
	var orders []query.Order
	for _, term := range strings.Split(text, ",") {
		parts := strings.Fields(term)
		switch {
		case len(parts) == 0:
			return nil, query.NewParseError("empty $orderby term in %q", text)
		case len(parts) > 2:
			return nil, query.NewParseError("invalid $orderby term %q", strings.TrimSpace(term))
		}
		o := query.Order{Field: parts[0], Ascending: true}
		if len(parts) == 2 {
			switch strings.ToLower(parts[1]) {
			case "asc":
			case "desc":
				o.Ascending = false
			default:
				return nil, query.NewParseError("invalid $orderby direction %q", parts[1])
			}
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// ParseQuery builds a query over path from OData system query options.
// Options other than $filter, $orderby, $top, $skip and $select are
// ignored. Field names are resolved against def when it is not nil.
func ParseQuery(path string, opts url.Values, def *record.Definition) (*query.Query, error) {
	q := query.New(path)

	if text := opts.Get(OptionFilter); text != "" {
		expr, err := ParseFilter(text)
		if err != nil {
			return nil, err
		}
		where, err := TranslateCondition(expr, def)
		if err != nil {
			return nil, err
		}
		q.And(where)
	}

	if text := opts.Get(OptionOrderBy); text != "" {
		orders, err := ParseOrderBy(text)
		if err != nil {
			return nil, err
		}
		q.OrderBy = orders
	}

	if text := opts.Get(OptionSelect); text != "" && strings.TrimSpace(text) != "*" {
		for _, name := range strings.Split(text, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				return nil, query.NewParseError("empty $select item in %q", text)
			}
			q.Fields = append(q.Fields, name)
		}
	}

	skip, err := count(opts, OptionSkip, 0)
	if err != nil {
		return nil, err
	}
	top, err := count(opts, OptionTop, query.Unbounded)
	if err != nil {
		return nil, err
	}
	q.Page(skip, top)

	if def != nil {
		return q.Bind(def)
	}
	return q, nil
}

func count(opts url.Values, name string, def int) (int, error) {
	text := opts.Get(name)
	if text == "" {
		return def, nil
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 0 {
		return 0, query.NewParseError("%s must be a non-negative integer, got %q", name, text)
	}
	return n, nil
}
