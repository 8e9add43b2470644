package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	dErrors "civicat/pkg/domain-errors"
)

// Assigner derives workspace slugs and item ids for one ingestion run and
// enforces global uniqueness across both namespaces. State is run-scoped:
// build a fresh Assigner per run and discard it afterwards.
type Assigner struct {
	slugByCity map[string]string
	used       map[string]string // slug or id -> origin, for collision messages
}

func NewAssigner() *Assigner {
	return &Assigner{
		slugByCity: make(map[string]string),
		used:       make(map[string]string),
	}
}

// CitySlug returns the slug for a canonical city name. Repeated calls for
// the same name return the same slug; a fresh slug colliding with any
// previously assigned slug or id aborts the run rather than loading an
// ambiguous source silently.
func (a *Assigner) CitySlug(city string) (string, error) {
	if slug, ok := a.slugByCity[city]; ok {
		return slug, nil
	}
	slug := Slugify(city)
	if slug == "" {
		return "", dErrors.Newf(dErrors.CodeValidation, "city %q produced an empty slug", city)
	}
	if origin, taken := a.used[slug]; taken {
		return "", dErrors.Newf(dErrors.CodeValidation, "slug %q for city %q already assigned to %s", slug, city, origin)
	}
	a.slugByCity[city] = slug
	a.used[slug] = "city " + city
	return slug, nil
}

// ItemID returns the 8-character id for a source record's natural key:
// the first 8 hex digits of its MD5. Stable across runs for the same key;
// a collision within the run is fatal.
func (a *Assigner) ItemID(naturalKey string) (string, error) {
	sum := md5.Sum([]byte(naturalKey))
	id := hex.EncodeToString(sum[:])[:8]
	if origin, taken := a.used[id]; taken {
		return "", dErrors.Newf(dErrors.CodeValidation, "id %q for record %q already assigned to %s", id, naturalKey, origin)
	}
	a.used[id] = "record " + naturalKey
	return id, nil
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// hebrewLatin transliterates Hebrew letters so city names keep a usable
// Latin skeleton. Alef, ayin and vav map to a/a/o ahead of the generic
// table; finals share their base letter's mapping.
var hebrewLatin = map[rune]string{
	'א': "a", 'ע': "a", 'ו': "o",
	'ב': "b", 'ג': "g", 'ד': "d", 'ה': "h", 'ז': "z", 'ח': "kh",
	'ט': "t", 'י': "y", 'כ': "k", 'ך': "k", 'ל': "l", 'מ': "m",
	'ם': "m", 'נ': "n", 'ן': "n", 'ס': "s", 'פ': "p", 'ף': "p",
	'צ': "ts", 'ץ': "ts", 'ק': "q", 'ר': "r", 'ש': "sh", 'ת': "t",
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify lowercases, transliterates Hebrew, folds diacritics, and collapses
// everything non-alphanumeric into single hyphens.
func Slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if latin, ok := hebrewLatin[r]; ok {
			b.WriteString(latin)
		} else {
			b.WriteRune(r)
		}
	}
	folded, _, err := transform.String(stripMarks, b.String())
	if err != nil {
		folded = b.String()
	}
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(folded), "-")
	return strings.Trim(slug, "-")
}
