package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"civicat/internal/docstore"
	ingestmetrics "civicat/internal/ingest/metrics"
	dErrors "civicat/pkg/domain-errors"
	"civicat/pkg/platform/sentinel"
	"civicat/pkg/requestcontext"
)

// LegacyConfigID is the reserved item id under which older deployments kept
// the per-city config document inside the items partition. Ingestion
// migrates it to the top-level workspace path.
const LegacyConfigID = ".config"

// progressEvery is how many processed records pass between progress events.
const progressEvery = 1000

// Progress is a liveness snapshot emitted during a run.
type Progress struct {
	Processed  int           `json:"processed"`
	Loaded     int           `json:"loaded"`
	Dropped    int           `json:"dropped"`
	Workspaces int           `json:"workspaces"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// Summary is the final accounting of a completed run.
type Summary struct {
	Processed  int       `json:"processed"`
	Loaded     int       `json:"loaded"`
	Dropped    int       `json:"dropped"`
	Workspaces int       `json:"workspaces"`
	StartedAt  time.Time `json:"started_at"`
}

// Reconciler idempotently upserts source records into per-city partitions.
// Ingestion owns the info and official field groups outright; admin, user
// and key are written only when an item is first created.
type Reconciler struct {
	store   docstore.Store
	aliases *AliasTable
	logger  *slog.Logger
	metrics *ingestmetrics.Metrics
}

func NewReconciler(store docstore.Store, aliases *AliasTable, logger *slog.Logger, metrics *ingestmetrics.Metrics) *Reconciler {
	return &Reconciler{store: store, aliases: aliases, logger: logger, metrics: metrics}
}

// Run consumes the source to exhaustion. onProgress (optional) is called
// roughly every 1000 processed records and once at the end, from the calling
// goroutine. Failures abort the run; documents already written stay written
// and an idempotent re-run is the recovery mechanism.
func (r *Reconciler) Run(ctx context.Context, src Source, onProgress func(Progress)) (*Summary, error) {
	startedAt := requestcontext.Now(ctx)
	updatedAt := startedAt.UTC().Format(time.RFC3339)

	run := &runState{
		assigner:  NewAssigner(),
		ensured:   map[string]bool{},
		startedAt: startedAt,
	}

	emit := func() {
		if onProgress != nil {
			onProgress(Progress{
				Processed:  run.processed,
				Loaded:     run.loaded,
				Dropped:    run.dropped,
				Workspaces: run.workspaces,
				Elapsed:    time.Since(startedAt),
			})
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ingestion cancelled: %w", err)
		}

		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "source read failed")
		}

		run.processed++
		r.metrics.AddProcessed(1)

		if err := r.process(ctx, run, rec, updatedAt); err != nil {
			return nil, err
		}

		if run.processed%progressEvery == 0 {
			emit()
		}
	}

	emit()
	r.logger.InfoContext(ctx, "ingestion run finished",
		"processed", run.processed,
		"loaded", run.loaded,
		"dropped", run.dropped,
		"workspaces_created", run.workspaces,
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)

	return &Summary{
		Processed:  run.processed,
		Loaded:     run.loaded,
		Dropped:    run.dropped,
		Workspaces: run.workspaces,
		StartedAt:  startedAt,
	}, nil
}

// runState holds the per-run accumulators. It exists so uniqueness state has
// an explicit owner that is discarded when the run ends.
type runState struct {
	assigner   *Assigner
	ensured    map[string]bool
	startedAt  time.Time
	processed  int
	loaded     int
	dropped    int
	workspaces int
}

func (r *Reconciler) process(ctx context.Context, run *runState, rec Record, updatedAt string) error {
	city, _ := rec["city"].(string)
	canonical, whitelisted := r.aliases.Canonicalize(city)
	if !whitelisted {
		run.dropped++
		r.metrics.IncDropped()
		r.logger.DebugContext(ctx, "record dropped, city not whitelisted", "city", city)
		return nil
	}
	rec["city"] = canonical

	naturalKey, _ := rec["_id"].(string)
	if naturalKey == "" {
		return dErrors.Newf(dErrors.CodeValidation, "record for city %q has no _id", canonical)
	}

	slug, err := run.assigner.CitySlug(canonical)
	if err != nil {
		return err
	}
	itemID, err := run.assigner.ItemID(naturalKey)
	if err != nil {
		return err
	}
	rec["city-slug"] = slug
	rec["id-slug"] = itemID

	official, _ := coerceValue(rec[officialField]).([]any)
	if official == nil {
		official = []any{}
	}

	info := docstore.Document{}
	for k, v := range rec {
		if k == officialField {
			continue
		}
		info[k] = coerceValue(v)
	}
	info["updated_at"] = updatedAt

	if err := r.upsert(ctx, slug, itemID, info, official); err != nil {
		return err
	}
	run.loaded++

	if !run.ensured[slug] {
		created, err := r.ensureWorkspace(ctx, slug, canonical)
		if err != nil {
			return err
		}
		run.ensured[slug] = true
		if created {
			run.workspaces++
			r.metrics.IncWorkspaceCreated()
		}
	}
	return nil
}

// upsert writes the item document. Existing items get a merge touching only
// the ingestion-owned groups; new items get a full document with a fresh
// random key and empty curated groups.
func (r *Reconciler) upsert(ctx context.Context, slug, itemID string, info docstore.Document, official []any) error {
	_, err := r.store.GetItem(ctx, slug, itemID)
	switch {
	case err == nil:
		patch := docstore.Document{"info": info, "official": official}
		if err := r.store.MergeItem(ctx, slug, itemID, patch); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "merge item "+slug+"/"+itemID)
		}
	case errors.Is(err, sentinel.ErrNotFound):
		doc := docstore.Document{
			"key":      uuid.NewString(),
			"info":     info,
			"official": official,
			"admin":    map[string]any{},
			"user":     map[string]any{},
		}
		if err := r.store.PutItem(ctx, slug, itemID, doc); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "create item "+slug+"/"+itemID)
		}
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "read item "+slug+"/"+itemID)
	}
	return nil
}

// ensureWorkspace converges the city's config to exactly one workspace
// document at the top-level path. A legacy config found under the old
// items-collection path is migrated first: its content wins only when no
// workspace document exists yet, and the legacy copy is always removed.
// Safe to run any number of times.
func (r *Reconciler) ensureWorkspace(ctx context.Context, slug, city string) (created bool, err error) {
	legacy, err := r.store.GetItem(ctx, slug, LegacyConfigID)
	switch {
	case err == nil:
		if _, wsErr := r.store.GetWorkspace(ctx, slug); errors.Is(wsErr, sentinel.ErrNotFound) {
			if err := r.store.PutWorkspace(ctx, slug, legacy); err != nil {
				return false, dErrors.Wrap(err, dErrors.CodeInternal, "migrate legacy config for "+slug)
			}
		} else if wsErr != nil {
			return false, dErrors.Wrap(wsErr, dErrors.CodeInternal, "read workspace "+slug)
		}
		if err := r.store.DeleteItem(ctx, slug, LegacyConfigID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return false, dErrors.Wrap(err, dErrors.CodeInternal, "remove legacy config for "+slug)
		}
		r.logger.InfoContext(ctx, "migrated legacy workspace config", "workspace", slug)
	case !errors.Is(err, sentinel.ErrNotFound):
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "read legacy config for "+slug)
	}

	_, err = r.store.GetWorkspace(ctx, slug)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "read workspace "+slug)
	}

	doc := docstore.Document{
		"key":      uuid.NewString(),
		"metadata": map[string]any{"city": city},
	}
	if err := r.store.PutWorkspace(ctx, slug, doc); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "create workspace "+slug)
	}
	r.logger.InfoContext(ctx, "workspace created", "workspace", slug, "city", city)
	return true, nil
}
