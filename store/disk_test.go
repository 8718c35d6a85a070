package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RahulByline/pdf-to-epub-sub002/models"
)

func testJob(id string, status models.JobStatus) *models.ConversionJob {
	return &models.ConversionJob{
		ID:         id,
		SourceFile: "/uploads/" + id + ".pdf",
		Priority:   models.PriorityNormal,
		Status:     status,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
}

// TestDiskStoreRoundTrip saves jobs and loads them back
func TestDiskStoreRoundTrip(t *testing.T) {
	s, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	first := testJob("job-1", models.StatusQueued)
	second := testJob("job-2", models.StatusSucceeded)
	second.Metadata = &models.ConversionMetadata{PagesTotal: 10, PagesWithAudio: 9, UnitsSkipped: 3}

	if err := s.Save(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, second); err != nil {
		t.Fatalf("save: %v", err)
	}

	jobs, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("loaded %d jobs, want 2", len(jobs))
	}

	byID := make(map[string]*models.ConversionJob)
	for _, job := range jobs {
		byID[job.ID] = job
	}
	got, ok := byID["job-2"]
	if !ok {
		t.Fatal("job-2 not loaded")
	}
	if got.Status != models.StatusSucceeded {
		t.Fatalf("status = %s", got.Status)
	}
	if got.Metadata == nil || got.Metadata.PagesWithAudio != 9 {
		t.Fatalf("metadata = %+v", got.Metadata)
	}
	if !got.CreatedAt.Equal(second.CreatedAt) {
		t.Fatalf("created at = %v, want %v", got.CreatedAt, second.CreatedAt)
	}
}

// TestDiskStoreSaveOverwrites checks a re-save replaces the record
func TestDiskStoreSaveOverwrites(t *testing.T) {
	s, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	job := testJob("job-1", models.StatusQueued)
	if err := s.Save(ctx, job); err != nil {
		t.Fatalf("save: %v", err)
	}
	job.Status = models.StatusFailed
	job.ErrorMessage = "synthesizing: provider unavailable"
	if err := s.Save(ctx, job); err != nil {
		t.Fatalf("re-save: %v", err)
	}

	jobs, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("loaded %d jobs, want 1", len(jobs))
	}
	if jobs[0].Status != models.StatusFailed || jobs[0].ErrorMessage == "" {
		t.Fatalf("job = %+v", jobs[0])
	}
}

// TestDiskStoreDelete removes a record; deleting twice is a no-op
func TestDiskStoreDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if err := s.Save(ctx, testJob("job-1", models.StatusQueued)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Delete(ctx, "job-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "job-1.json")); !os.IsNotExist(err) {
		t.Fatalf("job file still present: %v", err)
	}
	if err := s.Delete(ctx, "job-1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

// TestDiskStoreSkipsCorruptFiles checks unreadable records are logged
// and skipped rather than failing the whole load.
func TestDiskStoreSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if err := s.Save(ctx, testJob("job-1", models.StatusQueued)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0644); err != nil {
		t.Fatalf("write stray file: %v", err)
	}

	jobs, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "job-1" {
		t.Fatalf("jobs = %+v", jobs)
	}
}
