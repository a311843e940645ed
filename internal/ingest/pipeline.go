// Package ingest walks document directories and turns source files into
// stored, trust-scored reports.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/basisfind/basisfind/internal/extract"
	"github.com/basisfind/basisfind/internal/render"
	"github.com/basisfind/basisfind/internal/report"
	"github.com/basisfind/basisfind/internal/storage"
)

// Summary is the outcome of one directory walk.
type Summary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Pipeline renders, extracts, scores, and stores source documents.
type Pipeline struct {
	store *storage.Store
	log   *slog.Logger
}

// New creates a Pipeline writing to the given store.
func New(store *storage.Store, log *slog.Logger) *Pipeline {
	return &Pipeline{store: store, log: log}
}

// IngestDir walks dir recursively and ingests every supported file. Files
// already stored under the same path are skipped unless force is set or the
// file was modified after the stored copy. Per-file failures are logged and
// counted, never fatal.
func (p *Pipeline) IngestDir(ctx context.Context, dir string, force bool) (Summary, error) {
	var sum Summary

	info, err := os.Stat(dir)
	if err != nil {
		return sum, fmt.Errorf("opening data directory: %w", err)
	}
	if !info.IsDir() {
		return sum, fmt.Errorf("%s is not a directory", dir)
	}

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !render.Supported(path) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			p.log.Warn("stat failed", "path", path, "error", err)
			sum.Failed++
			return nil
		}

		if !force && p.alreadyIngested(path, fi.ModTime()) {
			p.log.Debug("skipping already ingested file", "path", path)
			sum.Skipped++
			return nil
		}

		if _, err := p.IngestFile(ctx, path); err != nil {
			p.log.Warn("ingestion failed", "path", path, "error", err)
			sum.Failed++
			return nil
		}
		sum.Processed++
		return nil
	})
	if err != nil {
		return sum, err
	}

	p.log.Info("ingestion complete", "dir", dir,
		"processed", sum.Processed, "skipped", sum.Skipped, "failed", sum.Failed)
	return sum, nil
}

// alreadyIngested reports whether path is stored and at least as fresh as the
// file on disk.
func (p *Pipeline) alreadyIngested(path string, modTime time.Time) bool {
	existing, err := p.store.GetReportByPath(path)
	if errors.Is(err, storage.ErrNotFound) {
		return false
	}
	if err != nil {
		return false
	}
	return !modTime.Truncate(time.Second).After(existing.ModifiedAt)
}

// IngestFile renders one document, extracts its fields, scores it, and
// upserts the resulting report. It returns the stored report.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (report.Report, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return report.Report{}, fmt.Errorf("stat %s: %w", path, err)
	}

	raw, err := render.Render(path)
	if err != nil {
		return report.Report{}, fmt.Errorf("rendering %s: %w", path, err)
	}

	r := extract.Extract(raw)
	r.SourcePath = path
	r.FileName = filepath.Base(path)
	r.FileSize = fi.Size()
	r.ModifiedAt = fi.ModTime().UTC().Truncate(time.Second)
	// File creation time is not portable; mtime stands in for both.
	r.CreatedAt = r.ModifiedAt
	r.SearchText = r.SearchableText()
	r.IndexedAt = time.Now().UTC()
	r.TrustScore, r.TrustBadges = report.Score(&r, time.Now().UTC())

	if _, err := p.store.UpsertReport(&r); err != nil {
		return report.Report{}, fmt.Errorf("storing %s: %w", path, err)
	}

	p.log.Info("ingested report", "file", r.FileName,
		"trust_score", r.TrustScore, "size", fi.Size())
	return r, nil
}
