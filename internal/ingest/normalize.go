package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// AliasTable maps known alternate spellings of city names to their canonical
// form and holds the canonical whitelist. Records whose city is not in the
// whitelist after rewriting are dropped from ingestion.
type AliasTable struct {
	canonical map[string]bool
	aliases   map[string]string
}

// NewAliasTable builds a table from canonical names and an alias->canonical
// map. Useful for tests; production loads from CSV via LoadAliasTable.
func NewAliasTable(canonical []string, aliases map[string]string) *AliasTable {
	t := &AliasTable{
		canonical: make(map[string]bool, len(canonical)),
		aliases:   make(map[string]string, len(aliases)),
	}
	for _, c := range canonical {
		t.canonical[c] = true
	}
	for alias, c := range aliases {
		t.aliases[alias] = c
	}
	return t
}

// LoadAliasTable reads the city names CSV. Expected header:
// city,option1,option2,option3, where each option is an alternate spelling
// of the canonical name in the city column.
func LoadAliasTable(r io.Reader) (*AliasTable, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read city names header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	cityIdx, ok := col["city"]
	if !ok {
		return nil, fmt.Errorf("city names CSV is missing a city column")
	}

	t := &AliasTable{canonical: map[string]bool{}, aliases: map[string]string{}}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read city names row: %w", err)
		}
		city := strings.TrimSpace(row[cityIdx])
		if city == "" {
			continue
		}
		t.canonical[city] = true
		for _, opt := range []string{"option1", "option2", "option3"} {
			idx, ok := col[opt]
			if !ok || idx >= len(row) {
				continue
			}
			if alias := strings.TrimSpace(row[idx]); alias != "" {
				t.aliases[alias] = city
			}
		}
	}
	return t, nil
}

// Canonicalize rewrites a raw city name to its canonical form when an alias
// matches and reports whether the result is whitelisted.
func (t *AliasTable) Canonicalize(city string) (string, bool) {
	if canonical, ok := t.aliases[city]; ok {
		city = canonical
	}
	return city, t.canonical[city]
}

// Cities returns the number of whitelisted cities.
func (t *AliasTable) Cities() int {
	return len(t.canonical)
}
