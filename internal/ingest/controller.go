// Package ingest keeps the vector index in sync with a folder of documents.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"wikirag/internal/domain"
	"wikirag/internal/logger"
	"wikirag/internal/regroup"
	"wikirag/internal/router"
)

// Status is the result kind of processing one file.
type Status string

const (
	StatusUnrouted Status = "unrouted"
	StatusSkipped  Status = "skipped"
	StatusIngested Status = "ingested"
	StatusFailed   Status = "failed"
)

// Outcome reports what happened to one file.
type Outcome struct {
	Path       string
	Status     Status
	Collection string
	Chunks     int
	Err        error
}

// Deps are the service handles the controller works with.
// PreConverter may be nil.
type Deps struct {
	Router       *router.Router
	Store        domain.FingerprintStore
	Converter    domain.Converter
	PreConverter domain.PreConverter
	Embedder     domain.Embedder
	Index        domain.VectorIndex
}

// Options tune the controller.
type Options struct {
	Bounds regroup.Bounds
	// TempDir hosts per-file pre-conversion directories; defaults to os.TempDir().
	TempDir string
}

// Controller runs the per-file sync state machine. It is safe for
// concurrent use: calls for the same path are serialized.
type Controller struct {
	router     *router.Router
	store      domain.FingerprintStore
	converter  domain.Converter
	pre        domain.PreConverter
	embedder   domain.Embedder
	reconciler *Reconciler
	bounds     regroup.Bounds
	tempDir    string
	locks      *pathLocks
	now        func() time.Time
}

func NewController(d Deps, opts Options) *Controller {
	tmp := opts.TempDir
	if tmp == "" {
		tmp = os.TempDir()
	}
	return &Controller{
		router:     d.Router,
		store:      d.Store,
		converter:  d.Converter,
		pre:        d.PreConverter,
		embedder:   d.Embedder,
		reconciler: NewReconciler(d.Index),
		bounds:     opts.Bounds,
		tempDir:    tmp,
		locks:      newPathLocks(),
		now:        time.Now,
	}
}

// Process brings the index up to date for one file. Errors never escape:
// they are logged and returned in the Outcome, and the fingerprint of a
// failed file is left untouched so the next run retries it.
func (c *Controller) Process(ctx context.Context, path string) Outcome {
	abs, err := filepath.Abs(path)
	if err != nil {
		return c.fail(Outcome{Path: path}, fmt.Errorf("%w: %w", domain.ErrConversion, err))
	}
	out := Outcome{Path: abs}

	route, ok := c.router.Route(abs)
	if !ok {
		out.Status = StatusUnrouted
		logger.L().Debug("no route, ignoring", "file", abs)
		return out
	}
	out.Collection = route.Collection

	unlock := c.locks.lock(abs)
	defer unlock()

	hash, err := fileHash(abs)
	if err != nil {
		return c.fail(out, err)
	}
	prev, err := c.store.Get(ctx, abs)
	if err != nil {
		return c.fail(out, err)
	}
	if prev.Matches(hash, route.Collection) {
		out.Status = StatusSkipped
		out.Chunks = prev.ChunksCount
		logger.L().Info("unchanged", "file", abs)
		return out
	}

	logger.L().Info("processing", "file", abs, "collection", route.Collection)
	points, err := c.build(ctx, abs, route)
	if err != nil {
		return c.fail(out, err)
	}

	var previous string
	if prev != nil && prev.Collection != route.Collection {
		previous = prev.Collection
	}
	n, err := c.reconciler.Reconcile(ctx, route.Collection, abs, points, previous)
	if err != nil {
		return c.fail(out, err)
	}

	rec := domain.FingerprintRecord{
		FilePath:    abs,
		Hash:        hash,
		IngestedAt:  c.now(),
		ChunksCount: n,
		Collection:  route.Collection,
	}
	if err := c.store.Put(ctx, rec); err != nil {
		return c.fail(out, err)
	}
	out.Status = StatusIngested
	out.Chunks = n
	logger.L().Info("ingested", "file", abs, "collection", route.Collection, "chunks", n)
	return out
}

// build converts, regroups and embeds a file into index points.
func (c *Controller) build(ctx context.Context, abs string, route router.Route) ([]domain.Point, error) {
	src := abs
	if c.pre != nil && c.pre.Needs(abs) {
		dir := filepath.Join(c.tempDir, "wikirag-"+uuid.NewString())
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrConversion, err)
		}
		defer os.RemoveAll(dir)

		converted, err := c.pre.PreConvert(ctx, abs, dir)
		if err != nil {
			return nil, err
		}
		src = converted
	}

	raw, err := c.converter.Convert(ctx, src)
	if err != nil {
		return nil, err
	}
	passages := regroup.Regroup(raw, c.bounds)
	if len(passages) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrEmptyContent, filepath.Base(abs))
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	vectors, err := c.embedder.Embed(ctx, texts, domain.TaskPassage)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(passages) {
		return nil, fmt.Errorf("%w: got %d vectors for %d passages", domain.ErrEmbedding, len(vectors), len(passages))
	}

	var fileDate string
	if info, err := os.Stat(abs); err == nil {
		fileDate = info.ModTime().Format(time.RFC3339)
	}
	points := make([]domain.Point, len(passages))
	for i, p := range passages {
		points[i] = domain.Point{
			ID:     domain.PointID(abs, i),
			Vector: vectors[i],
			Payload: domain.PassagePayload{
				Text:       p.Text,
				FilePath:   abs,
				FileName:   filepath.Base(abs),
				FileDate:   fileDate,
				Category:   route.Category,
				ChunkIndex: i,
				PageNumber: p.PageNumber(),
				IsTable:    p.IsTable(),
			},
		}
	}
	return points, nil
}

func (c *Controller) fail(out Outcome, err error) Outcome {
	out.Status = StatusFailed
	out.Err = err
	logger.L().Error("ingestion failed", "file", out.Path, "error", err)
	return out
}
