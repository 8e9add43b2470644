package catalog

import (
	"strings"

	"civicat/internal/docstore"
)

// PrivatePrefix marks document keys that never leave the server below the
// tier allowed to see them.
const PrivatePrefix = "_private_"

// Admin-group flags with defined projection meaning.
const (
	// FlagDeleted hides an item from every tier below admin when truthy.
	FlagDeleted = PrivatePrefix + "deleted"
	// FlagAppPublication hides an item from the public tier when it is
	// explicitly false. Absent means published.
	FlagAppPublication = PrivatePrefix + "app_publication"
)

// TierField is the auxiliary marker attached to every projected view so
// callers can tell which projection level they received.
const TierField = "_p"

// sanitize drops private-prefixed keys when excludePrivate is set. The
// original map is never mutated.
func sanitize(m map[string]any, excludePrivate bool) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	if !excludePrivate {
		return m
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if strings.HasPrefix(k, PrivatePrefix) {
			continue
		}
		out[k] = v
	}
	return out
}

// truthy mirrors loose boolean semantics for flag values that may arrive as
// bool, number or string from stored JSON.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	case map[string]any:
		return len(val) > 0
	case []any:
		return len(val) > 0
	default:
		return true
	}
}

func adminGroup(doc docstore.Document) map[string]any {
	m, _ := doc["admin"].(map[string]any)
	return m
}

func groupOrEmpty(doc docstore.Document, name string) map[string]any {
	if m, ok := doc[name].(map[string]any); ok && m != nil {
		return m
	}
	return map[string]any{}
}

func officialOrEmpty(doc docstore.Document) []any {
	if arr, ok := doc["official"].([]any); ok && arr != nil {
		return arr
	}
	return []any{}
}

// ProjectItem renders the view of an item appropriate to the tier, or nil
// when the item is hidden entirely at that tier. Admin sees the raw document
// (secret key included); lower tiers get a rebuilt document with private
// keys stripped per group.
func ProjectItem(doc docstore.Document, tier Tier) docstore.Document {
	var view docstore.Document

	switch {
	case tier > TierPrivateKey:
		view = doc
	case truthy(adminGroup(doc)[FlagDeleted]):
		return nil
	case tier == TierPrivateKey:
		view = docstore.Document{
			"user":     groupOrEmpty(doc, "user"),
			"admin":    sanitize(adminGroup(doc), tier < TierAdmin),
			"info":     groupOrEmpty(doc, "info"),
			"official": officialOrEmpty(doc),
		}
	case adminGroup(doc)[FlagAppPublication] == false:
		return nil
	default:
		view = docstore.Document{
			"user":     sanitize(groupOrEmpty(doc, "user"), tier < TierPrivateKey),
			"admin":    sanitize(adminGroup(doc), tier < TierAdmin),
			"info":     groupOrEmpty(doc, "info"),
			"official": officialOrEmpty(doc),
		}
	}

	view[TierField] = int(tier)
	return view
}

// ProjectWorkspace renders workspace metadata for the tier, with the tier
// marker attached.
func ProjectWorkspace(doc docstore.Document, tier Tier) docstore.Document {
	metadata, _ := doc["metadata"].(map[string]any)
	view := docstore.Document{}
	for k, v := range sanitize(metadata, tier < TierAdmin) {
		view[k] = v
	}
	view[TierField] = int(tier)
	return view
}
