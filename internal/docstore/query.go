package docstore

import (
	"encoding/json"
	"sort"

	"github.com/tidwall/gjson"
)

// applyQuery filters and orders entries in memory. Documents are dynamic
// maps, so field paths are resolved through gjson over a one-time marshal of
// each document rather than reflective map walking.
func applyQuery(entries []Entry, q Query) []Entry {
	type scored struct {
		entry Entry
		raw   []byte
	}
	kept := make([]scored, 0, len(entries))

	for _, e := range entries {
		raw, err := json.Marshal(e.Doc)
		if err != nil {
			continue
		}
		match := true
		for _, f := range q.Filters {
			if !matchFilter(gjson.GetBytes(raw, f.Field), f.Op, f.Value) {
				match = false
				break
			}
		}
		if match {
			kept = append(kept, scored{entry: e, raw: raw})
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(kept, func(i, j int) bool {
			a := gjson.GetBytes(kept[i].raw, q.OrderBy)
			b := gjson.GetBytes(kept[j].raw, q.OrderBy)
			if q.Descending {
				return resultLess(b, a)
			}
			return resultLess(a, b)
		})
	}

	out := make([]Entry, 0, len(kept))
	for _, s := range kept {
		out = append(out, s.entry)
	}
	return out
}

func matchFilter(got gjson.Result, op string, want any) bool {
	switch op {
	case "=", "==":
		return resultEqualValue(got, want)
	case "!=":
		return !resultEqualValue(got, want)
	case "<", "<=", ">", ">=":
		cmp, ok := resultCompare(got, want)
		if !ok {
			return false
		}
		switch op {
		case "<":
			return cmp < 0
		case "<=":
			return cmp <= 0
		case ">":
			return cmp > 0
		default:
			return cmp >= 0
		}
	default:
		return false
	}
}

func resultEqualValue(got gjson.Result, want any) bool {
	switch w := want.(type) {
	case nil:
		return got.Type == gjson.Null || !got.Exists()
	case bool:
		return got.IsBool() && got.Bool() == w
	case float64:
		return got.Type == gjson.Number && got.Num == w
	case string:
		return got.Type == gjson.String && got.Str == w
	default:
		// Arrays/objects as filter values are compared by JSON encoding.
		b, err := json.Marshal(want)
		if err != nil {
			return false
		}
		return got.Raw == string(b)
	}
}

// resultCompare orders a document value against a filter value. Only numbers
// and strings have a defined ordering; everything else is incomparable and
// fails the filter.
func resultCompare(got gjson.Result, want any) (int, bool) {
	switch w := want.(type) {
	case float64:
		if got.Type != gjson.Number {
			return 0, false
		}
		switch {
		case got.Num < w:
			return -1, true
		case got.Num > w:
			return 1, true
		default:
			return 0, true
		}
	case string:
		if got.Type != gjson.String {
			return 0, false
		}
		switch {
		case got.Str < w:
			return -1, true
		case got.Str > w:
			return 1, true
		default:
			return 0, true
		}
	default:
		return 0, false
	}
}

// resultLess orders two document values for sorting. Missing values sort
// first, numbers before strings, to keep ordering total and deterministic.
func resultLess(a, b gjson.Result) bool {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra < rb
	}
	switch a.Type {
	case gjson.Number:
		return a.Num < b.Num
	case gjson.String:
		return a.Str < b.Str
	case gjson.False, gjson.True:
		return !a.Bool() && b.Bool()
	default:
		return false
	}
}

func rank(r gjson.Result) int {
	switch {
	case !r.Exists(), r.Type == gjson.Null:
		return 0
	case r.IsBool():
		return 1
	case r.Type == gjson.Number:
		return 2
	case r.Type == gjson.String:
		return 3
	default:
		return 4
	}
}
