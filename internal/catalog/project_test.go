package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicat/internal/docstore"
)

func sampleItem() docstore.Document {
	return docstore.Document{
		"key": "item-secret",
		"info": map[string]any{
			"_id":  "k-1",
			"name": "Pool",
		},
		"official": []any{map[string]any{"year": float64(2024)}},
		"admin": map[string]any{
			"note":           "verified",
			"_private_phone": "055-000",
		},
		"user": map[string]any{
			"rating":         float64(4),
			"_private_email": "who@example.com",
		},
	}
}

func TestProjectItemAdmin(t *testing.T) {
	view := ProjectItem(sampleItem(), TierAdmin)
	require.NotNil(t, view)

	assert.Equal(t, "item-secret", view["key"], "admins see the item secret")
	assert.Equal(t, "055-000", view["admin"].(map[string]any)["_private_phone"])
	assert.Equal(t, "who@example.com", view["user"].(map[string]any)["_private_email"])
	assert.Equal(t, int(TierAdmin), view[TierField])
}

func TestProjectItemPrivateKey(t *testing.T) {
	view := ProjectItem(sampleItem(), TierPrivateKey)
	require.NotNil(t, view)

	assert.NotContains(t, view, "key", "item secret never leaves below admin")
	admin := view["admin"].(map[string]any)
	assert.Equal(t, "verified", admin["note"])
	assert.NotContains(t, admin, "_private_phone")
	user := view["user"].(map[string]any)
	assert.Equal(t, "who@example.com", user["_private_email"], "key holders see their own private fields")
	assert.Equal(t, int(TierPrivateKey), view[TierField])
}

func TestProjectItemPublic(t *testing.T) {
	view := ProjectItem(sampleItem(), TierPublic)
	require.NotNil(t, view)

	assert.NotContains(t, view, "key")
	assert.NotContains(t, view["admin"].(map[string]any), "_private_phone")
	assert.NotContains(t, view["user"].(map[string]any), "_private_email")
	assert.Equal(t, "Pool", view["info"].(map[string]any)["name"], "info is always fully visible")
	assert.Len(t, view["official"], 1)
	assert.Equal(t, int(TierPublic), view[TierField])
}

func TestProjectItemDeletedFlag(t *testing.T) {
	item := sampleItem()
	item["admin"].(map[string]any)[FlagDeleted] = true

	assert.Nil(t, ProjectItem(item, TierPublic))
	assert.Nil(t, ProjectItem(item, TierPrivateKey), "deleted hides from key holders too")
	assert.NotNil(t, ProjectItem(item, TierAdmin), "admins still see deleted items")
}

func TestProjectItemDeletedFlagTruthiness(t *testing.T) {
	// Stored JSON may carry the flag as a number or string.
	for _, flag := range []any{float64(1), "yes"} {
		item := sampleItem()
		item["admin"].(map[string]any)[FlagDeleted] = flag
		assert.Nil(t, ProjectItem(item, TierPublic))
	}
	item := sampleItem()
	item["admin"].(map[string]any)[FlagDeleted] = false
	assert.NotNil(t, ProjectItem(item, TierPublic))
}

func TestProjectItemUnpublished(t *testing.T) {
	item := sampleItem()
	item["admin"].(map[string]any)[FlagAppPublication] = false

	assert.Nil(t, ProjectItem(item, TierPublic), "explicit false hides from public")
	assert.NotNil(t, ProjectItem(item, TierPrivateKey), "key holders see unpublished items")
	assert.NotNil(t, ProjectItem(item, TierAdmin))
}

func TestProjectItemMissingGroups(t *testing.T) {
	view := ProjectItem(docstore.Document{"info": map[string]any{"name": "Bare"}}, TierPublic)
	require.NotNil(t, view)

	assert.Equal(t, map[string]any{}, view["admin"])
	assert.Equal(t, map[string]any{}, view["user"])
	assert.Equal(t, []any{}, view["official"])
}

func TestProjectWorkspace(t *testing.T) {
	ws := docstore.Document{
		"key": "admin-secret",
		"metadata": map[string]any{
			"city":            "Tel Aviv",
			"_private_banner": "internal",
		},
	}

	public := ProjectWorkspace(ws, TierPublic)
	assert.Equal(t, "Tel Aviv", public["city"])
	assert.NotContains(t, public, "_private_banner")
	assert.NotContains(t, public, "key")
	assert.Equal(t, int(TierPublic), public[TierField])

	admin := ProjectWorkspace(ws, TierAdmin)
	assert.Equal(t, "internal", admin["_private_banner"])
	assert.NotContains(t, admin, "key", "the admin secret is config, not metadata")
}
