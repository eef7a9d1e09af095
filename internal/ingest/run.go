package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"wikirag/internal/logger"
)

// Source selects the files of a document tree.
type Source struct {
	Root           string
	Extensions     []string
	IgnorePrefixes []string
}

// Accepts reports whether path has a supported extension and is not an
// editor lock file such as "~$report.docx".
func (s Source) Accepts(path string) bool {
	base := filepath.Base(path)
	for _, p := range s.IgnorePrefixes {
		if p != "" && strings.HasPrefix(base, p) {
			return false
		}
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range s.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// Files walks Root and returns the accepted files in lexical order.
func (s Source) Files() ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !s.Accepts(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.Root, err)
	}
	return files, nil
}

// Summary counts the outcomes of a run.
type Summary struct {
	Ingested int
	Skipped  int
	Unrouted int
	Failed   int
	Chunks   int
	Failures []Outcome
	Duration time.Duration
}

func (s *Summary) add(o Outcome) {
	switch o.Status {
	case StatusIngested:
		s.Ingested++
		s.Chunks += o.Chunks
	case StatusSkipped:
		s.Skipped++
	case StatusUnrouted:
		s.Unrouted++
	case StatusFailed:
		s.Failed++
		s.Failures = append(s.Failures, o)
	}
}

// Run processes every file of src with up to workers files in flight.
// File failures are counted, not returned; the error is non-nil only when
// the tree cannot be walked or ctx is cancelled.
func (c *Controller) Run(ctx context.Context, src Source, workers int) (Summary, error) {
	start := time.Now()
	files, err := src.Files()
	if err != nil {
		return Summary{}, err
	}
	if workers <= 0 {
		workers = 1
	}
	logger.L().Info("scanning", "root", src.Root, "files", len(files), "workers", workers)

	var (
		mu      sync.Mutex
		summary Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			o := c.Process(gctx, f)
			mu.Lock()
			summary.add(o)
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	summary.Duration = time.Since(start)
	logger.L().Info("sync finished",
		"ingested", summary.Ingested,
		"skipped", summary.Skipped,
		"unrouted", summary.Unrouted,
		"failed", summary.Failed,
		"chunks", summary.Chunks,
		"duration", summary.Duration.Round(time.Millisecond))
	return summary, err
}
