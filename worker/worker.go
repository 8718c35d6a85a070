package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/RahulByline/pdf-to-epub-sub002/models"
	"github.com/RahulByline/pdf-to-epub-sub002/pipeline"
	"github.com/RahulByline/pdf-to-epub-sub002/queue"
)

// Worker represents a processing node that consumes conversion jobs
type Worker struct {
	ID         string
	Queue      *queue.ConversionJobQueue
	Limiter    *queue.JobConcurrencyLimiter
	Pipeline   *pipeline.Pipeline
	OutputDir  string
	Processing bool
	mu         sync.Mutex
}

// NewWorker creates a new worker instance
func NewWorker(id string, q *queue.ConversionJobQueue, limiter *queue.JobConcurrencyLimiter, p *pipeline.Pipeline, outputDir string) *Worker {
	return &Worker{
		ID:        id,
		Queue:     q,
		Limiter:   limiter,
		Pipeline:  p,
		OutputDir: outputDir,
	}
}

// Start begins processing jobs
func (w *Worker) Start(ctx context.Context) {
	log.Printf("Worker %s starting", w.ID)

	go func() {
		for {
			if ctx.Err() != nil {
				log.Printf("Worker %s stopping", w.ID)
				return
			}

			w.mu.Lock()
			w.Processing = false
			w.mu.Unlock()

			job, err := w.Queue.DequeueJob(w.ID)
			if err != nil {
				// No jobs available, wait before trying again
				select {
				case <-time.After(5 * time.Second):
				case <-ctx.Done():
				}
				continue
			}

			w.mu.Lock()
			w.Processing = true
			w.mu.Unlock()

			log.Printf("Worker %s processing job %s", w.ID, job.ID)
			w.processJob(ctx, job)
		}
	}()
}

// processJob runs one conversion end to end. The concurrency slot is
// released on every exit path.
func (w *Worker) processJob(ctx context.Context, job *models.ConversionJob) {
	if err := w.Limiter.Acquire(ctx, job.ID); err != nil {
		log.Printf("Worker %s: job %s never got a slot: %v", w.ID, job.ID, err)
		w.failJob(job.ID, "cancelled while waiting for a slot: "+err.Error())
		return
	}
	defer w.Limiter.Release(job.ID)

	result, err := w.Pipeline.Convert(ctx, job.SourceFile, w.OutputDir, job.ID, pipeline.Options{
		Priority: int(job.Priority),
	})
	if err != nil {
		log.Printf("Worker %s failed to process job %s: %v", w.ID, job.ID, err)
		w.failJob(job.ID, err.Error())
		return
	}

	log.Printf("Worker %s completed job %s", w.ID, job.ID)
	if err := w.Queue.CompleteJob(job.ID, result.PackagePath, result.Metadata); err != nil {
		log.Printf("Worker %s: failed to record completion of %s: %v", w.ID, job.ID, err)
	}
}

// failJob records the failure; listeners hear about it through the
// queue's update channel.
func (w *Worker) failJob(jobID, msg string) {
	if err := w.Queue.FailJob(jobID, msg); err != nil {
		log.Printf("Worker %s: failed to record failure of %s: %v", w.ID, jobID, err)
	}
}
