package queue

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RahulByline/pdf-to-epub-sub002/models"
)

// Store persists job records; implementations live in the store package
type Store interface {
	Save(ctx context.Context, job *models.ConversionJob) error
	LoadAll(ctx context.Context) ([]*models.ConversionJob, error)
	Delete(ctx context.Context, jobID string) error
}

// ConversionJobQueue manages the queue of PDF conversion jobs
type ConversionJobQueue struct {
	mu            sync.RWMutex
	pendingJobs   []*models.ConversionJob
	runningJobs   map[string]*models.ConversionJob
	succeededJobs map[string]*models.ConversionJob
	failedJobs    map[string]*models.ConversionJob
	jobsByID      map[string]*models.ConversionJob
	store         Store
	jobUpdateChan chan *models.ConversionJob
}

// NewConversionJobQueue creates a new queue backed by the given store
func NewConversionJobQueue(store Store) *ConversionJobQueue {
	return &ConversionJobQueue{
		pendingJobs:   make([]*models.ConversionJob, 0),
		runningJobs:   make(map[string]*models.ConversionJob),
		succeededJobs: make(map[string]*models.ConversionJob),
		failedJobs:    make(map[string]*models.ConversionJob),
		jobsByID:      make(map[string]*models.ConversionJob),
		store:         store,
		jobUpdateChan: make(chan *models.ConversionJob, 100),
	}
}

// EnqueueJob adds a new job to the queue
func (q *ConversionJobQueue) EnqueueJob(sourceFile string, priority models.JobPriority) (*models.ConversionJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobID := uuid.New().String()

	base := strings.TrimSuffix(filepath.Base(sourceFile), filepath.Ext(sourceFile))
	outputFile := fmt.Sprintf("%s_%s.epub", base, jobID[:8])

	job := &models.ConversionJob{
		ID:         jobID,
		SourceFile: sourceFile,
		OutputFile: outputFile,
		Priority:   priority,
		Status:     models.StatusQueued,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	q.insertPendingLocked(job)
	q.jobsByID[jobID] = job

	if err := q.store.Save(context.Background(), job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	q.notifyLocked(job)
	log.Printf("Job enqueued: %s for file %s (priority %d)", jobID, sourceFile, priority)
	return job, nil
}

// insertPendingLocked keeps pending jobs ordered by (priority, arrival)
func (q *ConversionJobQueue) insertPendingLocked(job *models.ConversionJob) {
	i := len(q.pendingJobs)
	for ; i > 0; i-- {
		if q.pendingJobs[i-1].Priority <= job.Priority {
			break
		}
	}
	q.pendingJobs = append(q.pendingJobs, nil)
	copy(q.pendingJobs[i+1:], q.pendingJobs[i:])
	q.pendingJobs[i] = job
}

// DequeueJob gets the next pending job and marks it as running
func (q *ConversionJobQueue) DequeueJob(workerID string) (*models.ConversionJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pendingJobs) == 0 {
		return nil, fmt.Errorf("no pending jobs available")
	}

	job := q.pendingJobs[0]
	q.pendingJobs = q.pendingJobs[1:]

	job.Status = models.StatusRunning
	job.StartedAt = time.Now()
	job.UpdatedAt = time.Now()

	q.runningJobs[job.ID] = job

	if err := q.store.Save(context.Background(), job); err != nil {
		return nil, fmt.Errorf("failed to update job status: %w", err)
	}

	q.notifyLocked(job)
	return job, nil
}

// CompleteJob marks a job as succeeded and records its result
func (q *ConversionJobQueue) CompleteJob(jobID, packagePath string, metadata *models.ConversionMetadata) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, exists := q.runningJobs[jobID]
	if !exists {
		return fmt.Errorf("job %s not found in running set", jobID)
	}

	job.Status = models.StatusSucceeded
	job.OutputFile = packagePath
	job.Metadata = metadata
	job.CompletedAt = time.Now()
	job.UpdatedAt = time.Now()

	delete(q.runningJobs, jobID)
	q.succeededJobs[jobID] = job

	q.notifyLocked(job)
	return q.store.Save(context.Background(), job)
}

// FailJob marks a job as failed
func (q *ConversionJobQueue) FailJob(jobID string, errorMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, exists := q.runningJobs[jobID]
	if !exists {
		return fmt.Errorf("job %s not found in running set", jobID)
	}

	job.Status = models.StatusFailed
	job.ErrorMessage = errorMsg
	job.CompletedAt = time.Now()
	job.UpdatedAt = time.Now()

	delete(q.runningJobs, jobID)
	q.failedJobs[jobID] = job

	q.notifyLocked(job)
	return q.store.Save(context.Background(), job)
}

// notifyLocked pushes a job update without blocking the queue. A
// snapshot is sent so readers see the state at transition time, not
// whatever the job mutated into later.
func (q *ConversionJobQueue) notifyLocked(job *models.ConversionJob) {
	copied := *job
	select {
	case q.jobUpdateChan <- &copied:
	default:
		log.Printf("Job update channel full, dropping update for %s", job.ID)
	}
}

// GetJob retrieves a job by ID
func (q *ConversionJobQueue) GetJob(jobID string) (*models.ConversionJob, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, exists := q.jobsByID[jobID]
	if !exists {
		return nil, fmt.Errorf("job %s not found", jobID)
	}

	return job, nil
}

// LoadJobs restores persisted jobs from the store
func (q *ConversionJobQueue) LoadJobs() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs, err := q.store.LoadAll(context.Background())
	if err != nil {
		return fmt.Errorf("failed to load jobs: %w", err)
	}

	for _, job := range jobs {
		q.jobsByID[job.ID] = job

		switch job.Status {
		case models.StatusQueued:
			q.insertPendingLocked(job)
		case models.StatusRunning:
			// A job that was mid-flight when the process died cannot
			// resume; requeue it from the start.
			job.Status = models.StatusQueued
			q.insertPendingLocked(job)
		case models.StatusSucceeded:
			q.succeededJobs[job.ID] = job
		case models.StatusFailed:
			q.failedJobs[job.ID] = job
		}
	}

	log.Printf("Loaded %d jobs from store", len(q.jobsByID))
	return nil
}

// RemoveJob drops a job from all tracking sets and the store
func (q *ConversionJobQueue) RemoveJob(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, exists := q.jobsByID[jobID]
	if !exists {
		return fmt.Errorf("job %s not found", jobID)
	}
	if job.Status == models.StatusRunning {
		return fmt.Errorf("job %s is running", jobID)
	}

	delete(q.jobsByID, jobID)
	delete(q.succeededJobs, jobID)
	delete(q.failedJobs, jobID)
	for i, pending := range q.pendingJobs {
		if pending.ID == jobID {
			q.pendingJobs = append(q.pendingJobs[:i], q.pendingJobs[i+1:]...)
			break
		}
	}

	return q.store.Delete(context.Background(), jobID)
}

// GetPendingJobs returns a copy of the pending jobs slice
func (q *ConversionJobQueue) GetPendingJobs() []*models.ConversionJob {
	q.mu.RLock()
	defer q.mu.RUnlock()

	jobs := make([]*models.ConversionJob, len(q.pendingJobs))
	copy(jobs, q.pendingJobs)
	return jobs
}

// GetRunningJobs returns a copy of the running jobs map
func (q *ConversionJobQueue) GetRunningJobs() []*models.ConversionJob {
	q.mu.RLock()
	defer q.mu.RUnlock()

	jobs := make([]*models.ConversionJob, 0, len(q.runningJobs))
	for _, job := range q.runningJobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// GetSucceededJobs returns a copy of the succeeded jobs map
func (q *ConversionJobQueue) GetSucceededJobs() []*models.ConversionJob {
	q.mu.RLock()
	defer q.mu.RUnlock()

	jobs := make([]*models.ConversionJob, 0, len(q.succeededJobs))
	for _, job := range q.succeededJobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// GetFailedJobs returns a copy of the failed jobs map
func (q *ConversionJobQueue) GetFailedJobs() []*models.ConversionJob {
	q.mu.RLock()
	defer q.mu.RUnlock()

	jobs := make([]*models.ConversionJob, 0, len(q.failedJobs))
	for _, job := range q.failedJobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// GetAllJobs returns a copy of all jobs
func (q *ConversionJobQueue) GetAllJobs() []*models.ConversionJob {
	q.mu.RLock()
	defer q.mu.RUnlock()

	jobs := make([]*models.ConversionJob, 0, len(q.jobsByID))
	for _, job := range q.jobsByID {
		jobs = append(jobs, job)
	}
	return jobs
}

// GetJobUpdateChannel returns the stream of job status transitions.
// The server drains it and broadcasts each update to clients.
func (q *ConversionJobQueue) GetJobUpdateChannel() <-chan *models.ConversionJob {
	return q.jobUpdateChan
}
