package catalog

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"civicat/internal/catalog/metrics"
	"civicat/internal/docstore"
	dErrors "civicat/pkg/domain-errors"
	"civicat/pkg/platform/sentinel"
	"civicat/pkg/requestcontext"
)

// deleteConcurrency bounds parallel deletes during a bulk wipe.
const deleteConcurrency = 8

// Geocoder resolves a free-text address into an update fragment. Lookups
// never fail; a degraded fragment still carries a status field.
type Geocoder interface {
	Lookup(ctx context.Context, address string) map[string]any
}

// Service implements the privilege-scoped catalog operations over the
// document store. Every operation authenticates against the workspace's
// admin key first; item-level secrets can override the resolved tier for a
// single item.
type Service struct {
	store    docstore.Store
	geocoder Geocoder
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewService constructs a catalog service. geocoder may be nil, in which
// case address updates are written without coordinates.
func NewService(store docstore.Store, geocoder Geocoder, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{store: store, geocoder: geocoder, logger: logger, metrics: m}
}

// authenticate resolves the caller's tier for a workspace. The workspace
// must exist; a secret matching its admin key yields TierAdmin when the
// operation accepts admins, otherwise the caller falls through to TierPublic
// when view access is acceptable.
func (s *Service) authenticate(ctx context.Context, workspace, secret string, roles ...Role) (Tier, docstore.Document, error) {
	doc, err := s.store.GetWorkspace(ctx, workspace)
	if errors.Is(err, sentinel.ErrNotFound) {
		return 0, nil, dErrors.New(dErrors.CodeNotFound, "workspace not found")
	}
	if err != nil {
		return 0, nil, dErrors.Wrap(err, dErrors.CodeInternal, "read workspace "+workspace)
	}

	adminKey, _ := doc["key"].(string)
	for _, role := range roles {
		if role == RoleAdmin && adminKey != "" && secretsEqual(secret, adminKey) {
			s.metrics.IncAuthResolved(TierAdmin.String())
			return TierAdmin, doc, nil
		}
	}
	for _, role := range roles {
		if role == RoleView {
			s.metrics.IncAuthResolved(TierPublic.String())
			return TierPublic, doc, nil
		}
	}
	return 0, nil, dErrors.New(dErrors.CodeForbidden, "unauthorized")
}

// itemTier applies the item-level secret override. A supplied secret must
// match the item's key or the request fails, even for workspace admins; a
// match pins the tier to TierPrivateKey, downgrading admins that chose to
// authenticate at item scope.
func itemTier(base Tier, doc docstore.Document, itemKey string) (Tier, error) {
	if itemKey == "" {
		return base, nil
	}
	key, _ := doc["key"].(string)
	if key == "" || !secretsEqual(itemKey, key) {
		return 0, dErrors.New(dErrors.CodeForbidden, "unauthorized")
	}
	return TierPrivateKey, nil
}

func secretsEqual(supplied, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(stored)) == 1
}

// CreateItem adds an admin-curated item (one with no ingestion source). The
// payload becomes the admin group; info records only the id and provenance.
// Returns the created document together with its id.
func (s *Service) CreateItem(ctx context.Context, workspace, secret string, payload map[string]any) (docstore.Document, error) {
	if _, _, err := s.authenticate(ctx, workspace, secret, RoleAdmin); err != nil {
		return nil, err
	}
	if payload == nil {
		payload = map[string]any{}
	}

	segments := strings.Split(uuid.NewString(), "-")
	itemID := segments[len(segments)-1]
	item := docstore.Document{
		"key":   uuid.NewString(),
		"info":  map[string]any{"_id": itemID, "source": "admin"},
		"user":  map[string]any{},
		"admin": payload,
	}
	if err := s.store.PutItem(ctx, workspace, itemID, item); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create item "+workspace+"/"+itemID)
	}
	s.metrics.IncItemWritten("admin")
	s.logger.InfoContext(ctx, "item created", "workspace", workspace, "item", itemID)

	out := docstore.Document{"id": itemID}
	for k, v := range item {
		out[k] = v
	}
	return out, nil
}

// GetWorkspace returns the workspace metadata projected for the caller's
// tier, with the tier marker attached.
func (s *Service) GetWorkspace(ctx context.Context, workspace, secret string) (docstore.Document, error) {
	tier, doc, err := s.authenticate(ctx, workspace, secret, RoleAdmin, RoleView)
	if err != nil {
		return nil, err
	}
	return ProjectWorkspace(doc, tier), nil
}

// UpdateWorkspace replaces the workspace's metadata group.
func (s *Service) UpdateWorkspace(ctx context.Context, workspace, secret string, metadata map[string]any) error {
	if _, _, err := s.authenticate(ctx, workspace, secret, RoleAdmin); err != nil {
		return err
	}
	if err := s.store.MergeWorkspace(ctx, workspace, docstore.Document{"metadata": metadata}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "update workspace "+workspace)
	}
	s.logger.InfoContext(ctx, "workspace updated", "workspace", workspace)
	return nil
}

// ListItems returns projected item views, filtered and ordered by the store
// and paginated after projection so hidden items never consume page slots.
func (s *Service) ListItems(ctx context.Context, workspace, secret string, params ListParams) ([]docstore.Document, error) {
	start := time.Now()
	tier, _, err := s.authenticate(ctx, workspace, secret, RoleAdmin, RoleView)
	if err != nil {
		return nil, err
	}

	filters, err := ParseFilters(params.Filters)
	if err != nil {
		return nil, err
	}
	orderBy, descending := ParseOrder(params.OrderBy)

	entries, err := s.store.ListItems(ctx, workspace, docstore.Query{
		Filters:    filters,
		OrderBy:    orderBy,
		Descending: descending,
	})
	if err != nil {
		var indexErr *docstore.IndexRequiredError
		if errors.As(err, &indexErr) {
			return nil, dErrors.New(dErrors.CodeIndexRequired, indexErr.URL)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list items in "+workspace)
	}

	views := make([]docstore.Document, 0, len(entries))
	for _, entry := range entries {
		entry.Doc["id"] = entry.ID
		if view := ProjectItem(entry.Doc, tier); view != nil {
			views = append(views, view)
		}
	}

	page, pageSize := params.Page, params.PageSize
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	// page*pageSize can overflow for adversarial page values; any page past
	// the last populated one yields an empty slice.
	lo := len(views)
	if page <= len(views)/pageSize {
		lo = page * pageSize
	}
	hi := lo + pageSize
	if hi > len(views) || hi < lo {
		hi = len(views)
	}
	views = views[lo:hi]

	s.metrics.AddItemsListed(len(views))
	s.metrics.ObserveList(start)
	return views, nil
}

// GetItem returns one item's projection. An item-level secret, when
// supplied, must match and pins the tier to private-key.
func (s *Service) GetItem(ctx context.Context, workspace, itemID, secret, itemKey string) (docstore.Document, error) {
	tier, _, err := s.authenticate(ctx, workspace, secret, RoleAdmin, RoleView)
	if err != nil {
		return nil, err
	}
	doc, err := s.getItem(ctx, workspace, itemID)
	if err != nil {
		return nil, err
	}
	tier, err = itemTier(tier, doc, itemKey)
	if err != nil {
		return nil, err
	}

	view := ProjectItem(doc, tier)
	if view == nil {
		return nil, dErrors.New(dErrors.CodeForbidden, "unauthorized or item deleted")
	}
	return view, nil
}

// UpdateItem merges the payload into the field group owned by the caller's
// tier: admins write the admin group, item-key holders write the user group,
// everyone else is rejected. An address in the payload is geocoded first and
// the resulting fragment overrides the caller's values. Returns the full
// group as written.
func (s *Service) UpdateItem(ctx context.Context, workspace, itemID, secret, itemKey string, payload map[string]any) (docstore.Document, error) {
	tier, _, err := s.authenticate(ctx, workspace, secret, RoleAdmin, RoleView)
	if err != nil {
		return nil, err
	}
	doc, err := s.getItem(ctx, workspace, itemID)
	if err != nil {
		return nil, err
	}
	tier, err = itemTier(tier, doc, itemKey)
	if err != nil {
		return nil, err
	}
	if tier < TierPrivateKey {
		return nil, dErrors.New(dErrors.CodeForbidden, "insufficient privilege for writes")
	}

	update := sanitize(payload, tier < TierPrivateKey)
	if address, ok := update["address"].(string); ok && s.geocoder != nil {
		s.metrics.IncGeocodeTriggered()
		for k, v := range s.geocoder.Lookup(ctx, address) {
			update[k] = v
		}
	}
	update["updated_at"] = requestcontext.Now(ctx).UTC().Format(time.RFC3339)

	groupName := "user"
	if tier > TierPrivateKey {
		groupName = "admin"
	}
	group := map[string]any{}
	for k, v := range groupOrEmpty(doc, groupName) {
		group[k] = v
	}
	for k, v := range update {
		group[k] = v
	}

	if err := s.store.MergeItem(ctx, workspace, itemID, docstore.Document{groupName: group}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "update item "+workspace+"/"+itemID)
	}
	s.metrics.IncItemWritten(groupName)
	s.logger.InfoContext(ctx, "item updated",
		"workspace", workspace,
		"item", itemID,
		"group", groupName,
		"tier", tier.String(),
	)
	return group, nil
}

// DeleteItem removes an item. Items whose official array is non-empty hold
// authoritative records and are protected from deletion.
func (s *Service) DeleteItem(ctx context.Context, workspace, itemID, secret string) error {
	if _, _, err := s.authenticate(ctx, workspace, secret, RoleAdmin); err != nil {
		return err
	}
	doc, err := s.getItem(ctx, workspace, itemID)
	if err != nil {
		return err
	}
	if len(officialOrEmpty(doc)) > 0 {
		return dErrors.New(dErrors.CodeForbidden, "item has records, cannot delete")
	}
	if err := s.store.DeleteItem(ctx, workspace, itemID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete item "+workspace+"/"+itemID)
	}
	s.metrics.AddItemsDeleted(1)
	s.logger.InfoContext(ctx, "item deleted", "workspace", workspace, "item", itemID)
	return nil
}

// DeleteItems wipes a workspace's items, skipping dot-prefixed ids, which
// are reserved for config-like documents. Returns the number deleted.
func (s *Service) DeleteItems(ctx context.Context, workspace, secret string) (int, error) {
	if _, _, err := s.authenticate(ctx, workspace, secret, RoleAdmin); err != nil {
		return 0, err
	}
	entries, err := s.store.ListItems(ctx, workspace, docstore.Query{})
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "list items in "+workspace)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteConcurrency)
	deleted := 0
	for _, entry := range entries {
		if strings.HasPrefix(entry.ID, ".") {
			continue
		}
		deleted++
		id := entry.ID
		g.Go(func() error {
			if err := s.store.DeleteItem(gctx, workspace, id); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Wrap(err, dErrors.CodeInternal, "delete item "+workspace+"/"+id)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	s.metrics.AddItemsDeleted(deleted)
	s.logger.InfoContext(ctx, "workspace items deleted", "workspace", workspace, "count", deleted)
	return deleted, nil
}

func (s *Service) getItem(ctx context.Context, workspace, itemID string) (docstore.Document, error) {
	doc, err := s.store.GetItem(ctx, workspace, itemID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "item not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read item "+workspace+"/"+itemID)
	}
	return doc, nil
}
