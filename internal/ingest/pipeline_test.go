package ingest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/basisfind/basisfind/internal/storage"
)

const sampleDoc = `Project Name: Pump Station 7 Upgrade
Project Number: TW-2025-014
Program/Region: Northern
Project Reviewer: J. Chen
Client: Water Corp

Background
The existing pump station has reached the end of its serviceable life and
requires a full mechanical and electrical upgrade.

Scope of Work
Replace both pumps, the switchboard, and the rising main connection.

Deliverables
Detailed design drawings and a commissioning plan.
`

func testPipeline(t *testing.T) (*Pipeline, *storage.Store) {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { s.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(s, log), s
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIngestFile(t *testing.T) {
	p, s := testPipeline(t)
	path := writeDoc(t, t.TempDir(), "ps7.txt", sampleDoc)

	r, err := p.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}

	if r.ProjectName != "Pump Station 7 Upgrade" {
		t.Errorf("ProjectName = %q", r.ProjectName)
	}
	if r.Reviewer != "J. Chen" {
		t.Errorf("Reviewer = %q", r.Reviewer)
	}
	if r.Background == "" || r.ScopeOfWork == "" || r.Deliverables == "" {
		t.Errorf("sections not extracted: bg=%q sow=%q del=%q", r.Background, r.ScopeOfWork, r.Deliverables)
	}
	if r.SearchText == "" {
		t.Error("SearchText not derived")
	}
	if r.TrustScore <= 0 || r.TrustScore > 1 {
		t.Errorf("TrustScore = %v, want in (0,1]", r.TrustScore)
	}
	if r.FileSize != int64(len(sampleDoc)) {
		t.Errorf("FileSize = %d, want %d", r.FileSize, len(sampleDoc))
	}

	stored, err := s.GetReportByPath(path)
	if err != nil {
		t.Fatalf("GetReportByPath: %v", err)
	}
	if stored.ProjectName != r.ProjectName {
		t.Errorf("stored ProjectName = %q, want %q", stored.ProjectName, r.ProjectName)
	}
}

func TestIngestFileUnreadable(t *testing.T) {
	p, _ := testPipeline(t)

	if _, err := p.IngestFile(context.Background(), filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestIngestDirCounts(t *testing.T) {
	p, _ := testPipeline(t)
	dir := t.TempDir()

	writeDoc(t, dir, "a.txt", sampleDoc)
	writeDoc(t, dir, "b.md", sampleDoc)
	writeDoc(t, dir, "ignored.png", "binary")
	writeDoc(t, dir, "broken.docx", "not a zip archive")

	sum, err := p.IngestDir(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("IngestDir: %v", err)
	}
	if sum.Processed != 2 {
		t.Errorf("Processed = %d, want 2", sum.Processed)
	}
	if sum.Failed != 1 {
		t.Errorf("Failed = %d, want 1 (the corrupt docx)", sum.Failed)
	}
	if sum.Skipped != 0 {
		t.Errorf("Skipped = %d, want 0", sum.Skipped)
	}
}

func TestIngestDirRecursesSubdirectories(t *testing.T) {
	p, s := testPipeline(t)
	dir := t.TempDir()
	sub := filepath.Join(dir, "2025", "north")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeDoc(t, sub, "nested.txt", sampleDoc)

	sum, err := p.IngestDir(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("IngestDir: %v", err)
	}
	if sum.Processed != 1 {
		t.Fatalf("Processed = %d, want 1", sum.Processed)
	}

	all, err := s.ListReports()
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d reports, want 1", len(all))
	}
}

func TestIngestDirSkipsUnchanged(t *testing.T) {
	p, _ := testPipeline(t)
	dir := t.TempDir()
	path := writeDoc(t, dir, "a.txt", sampleDoc)

	// Age the file so the second walk sees it unchanged.
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	if _, err := p.IngestDir(context.Background(), dir, false); err != nil {
		t.Fatalf("first IngestDir: %v", err)
	}

	sum, err := p.IngestDir(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("second IngestDir: %v", err)
	}
	if sum.Skipped != 1 || sum.Processed != 0 {
		t.Errorf("second walk: %+v, want 1 skipped and 0 processed", sum)
	}
}

func TestIngestDirForceReprocesses(t *testing.T) {
	p, _ := testPipeline(t)
	dir := t.TempDir()
	path := writeDoc(t, dir, "a.txt", sampleDoc)
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	if _, err := p.IngestDir(context.Background(), dir, false); err != nil {
		t.Fatalf("first IngestDir: %v", err)
	}

	sum, err := p.IngestDir(context.Background(), dir, true)
	if err != nil {
		t.Fatalf("forced IngestDir: %v", err)
	}
	if sum.Processed != 1 || sum.Skipped != 0 {
		t.Errorf("forced walk: %+v, want 1 processed and 0 skipped", sum)
	}
}

func TestIngestDirReprocessesModifiedFile(t *testing.T) {
	p, s := testPipeline(t)
	dir := t.TempDir()
	path := writeDoc(t, dir, "a.txt", sampleDoc)
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	if _, err := p.IngestDir(context.Background(), dir, false); err != nil {
		t.Fatalf("first IngestDir: %v", err)
	}

	// Touch the file forward; the walk must pick it up again.
	writeDoc(t, dir, "a.txt", sampleDoc+"\nMonitoring & controls\nSCADA alarms to be reviewed quarterly.\n")

	sum, err := p.IngestDir(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("second IngestDir: %v", err)
	}
	if sum.Processed != 1 {
		t.Errorf("modified file not reprocessed: %+v", sum)
	}

	stored, err := s.GetReportByPath(path)
	if err != nil {
		t.Fatalf("GetReportByPath: %v", err)
	}
	if stored.Monitoring == "" {
		t.Error("updated content not stored on re-ingestion")
	}

	all, err := s.ListReports()
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("got %d reports after re-ingestion, want 1", len(all))
	}
}

func TestIngestDirMissing(t *testing.T) {
	p, _ := testPipeline(t)

	if _, err := p.IngestDir(context.Background(), filepath.Join(t.TempDir(), "nope"), false); err == nil {
		t.Error("expected error for missing directory")
	}
}
