package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/RahulByline/pdf-to-epub-sub002/models"
)

// DiskStore persists each job as one JSON file under a data directory
type DiskStore struct {
	dataDir string
}

// NewDiskStore creates a disk-backed job store
func NewDiskStore(dataDir string) (*DiskStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &DiskStore{dataDir: dataDir}, nil
}

// Save writes the job record to disk
func (s *DiskStore) Save(_ context.Context, job *models.ConversionJob) error {
	jobPath := filepath.Join(s.dataDir, job.ID+".json")

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job data: %w", err)
	}

	if err := os.WriteFile(jobPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write job file: %w", err)
	}

	return nil
}

// LoadAll reads every persisted job record from disk
func (s *DiskStore) LoadAll(_ context.Context) ([]*models.ConversionJob, error) {
	files, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	jobs := make([]*models.ConversionJob, 0, len(files))
	for _, file := range files {
		if filepath.Ext(file.Name()) != ".json" {
			continue
		}

		jobPath := filepath.Join(s.dataDir, file.Name())
		data, err := os.ReadFile(jobPath)
		if err != nil {
			log.Printf("Failed to read job file %s: %v", jobPath, err)
			continue
		}

		var job models.ConversionJob
		if err := json.Unmarshal(data, &job); err != nil {
			log.Printf("Failed to unmarshal job data %s: %v", jobPath, err)
			continue
		}
		jobs = append(jobs, &job)
	}

	return jobs, nil
}

// Delete removes the job record from disk
func (s *DiskStore) Delete(_ context.Context, jobID string) error {
	jobPath := filepath.Join(s.dataDir, jobID+".json")
	if err := os.Remove(jobPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove job file: %w", err)
	}
	return nil
}
