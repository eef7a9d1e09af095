package ingest

import (
	"context"

	"wikirag/internal/domain"
)

// Reconciler replaces a file's entries in the vector index.
//
// Points are upserted first; their ids depend only on (path, chunk_index),
// so positions that still exist are overwritten in place. Entries at
// chunk_index >= len(points) are then pruned. A failure between the two
// steps leaves stale tail entries, never a file with no entries, and the
// next run removes them because the fingerprint was not updated.
type Reconciler struct {
	index domain.VectorIndex
}

func NewReconciler(index domain.VectorIndex) *Reconciler {
	return &Reconciler{index: index}
}

// Reconcile makes points the complete set of entries for filePath in
// collection. When previous names another collection, the file's entries
// there are deleted afterwards. It returns the number of points written.
func (r *Reconciler) Reconcile(ctx context.Context, collection, filePath string, points []domain.Point, previous string) (int, error) {
	if err := r.index.Upsert(ctx, collection, points); err != nil {
		return 0, err
	}
	if err := r.index.Delete(ctx, collection, domain.FileFilter{FilePath: filePath, MinChunkIndex: len(points)}); err != nil {
		return 0, err
	}
	if previous != "" && previous != collection {
		if err := r.index.Delete(ctx, previous, domain.FileFilter{FilePath: filePath}); err != nil {
			return 0, err
		}
	}
	return len(points), nil
}
