package catalog

import (
	"encoding/json"
	"strings"
	"unicode"

	"civicat/internal/docstore"
	dErrors "civicat/pkg/domain-errors"
)

// ListParams are the pagination, ordering and filter inputs of a list
// operation, as they arrive from the query string.
type ListParams struct {
	Page     int
	PageSize int
	OrderBy  string
	Filters  string
}

var validOps = map[string]bool{
	"=": true, "==": true, "!=": true,
	"<": true, "<=": true, ">": true, ">=": true,
}

// ParseFilters parses a filter expression: `field op value` predicates
// joined by `|`. The value is decoded as JSON when possible and kept as a
// literal string otherwise, so both `info.year >= 2020` and
// `info.city == "Tel Aviv"` work.
func ParseFilters(expr string) ([]docstore.Filter, error) {
	if expr == "" {
		return nil, nil
	}
	parts := strings.Split(expr, "|")
	filters := make([]docstore.Filter, 0, len(parts))
	for _, part := range parts {
		field, op, rawValue, ok := splitFilter(part)
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeBadRequest, "malformed filter %q, want: field op value", part)
		}
		if !validOps[op] {
			return nil, dErrors.Newf(dErrors.CodeBadRequest, "unsupported filter operator %q", op)
		}
		var value any = rawValue
		var decoded any
		if err := json.Unmarshal([]byte(rawValue), &decoded); err == nil {
			value = decoded
		}
		filters = append(filters, docstore.Filter{Field: field, Op: op, Value: value})
	}
	return filters, nil
}

// splitFilter splits on runs of whitespace into at most three pieces,
// keeping the remainder (the value, which may itself contain spaces) intact.
func splitFilter(s string) (field, op, value string, ok bool) {
	fields := make([]string, 0, 3)
	rest := strings.TrimLeftFunc(s, unicode.IsSpace)
	for len(fields) < 2 && rest != "" {
		cut := strings.IndexFunc(rest, unicode.IsSpace)
		if cut < 0 {
			fields = append(fields, rest)
			rest = ""
			break
		}
		fields = append(fields, rest[:cut])
		rest = strings.TrimLeftFunc(rest[cut:], unicode.IsSpace)
	}
	if len(fields) != 2 || rest == "" {
		return "", "", "", false
	}
	return fields[0], fields[1], strings.TrimRightFunc(rest, unicode.IsSpace), true
}

// ParseOrder interprets an order_by value: a leading '-' means descending.
func ParseOrder(orderBy string) (field string, descending bool) {
	if strings.HasPrefix(orderBy, "-") {
		return orderBy[1:], true
	}
	return orderBy, false
}
