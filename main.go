package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RahulByline/pdf-to-epub-sub002/config"
	"github.com/RahulByline/pdf-to-epub-sub002/models"
	"github.com/RahulByline/pdf-to-epub-sub002/pipeline"
	"github.com/RahulByline/pdf-to-epub-sub002/provider"
	"github.com/RahulByline/pdf-to-epub-sub002/queue"
	"github.com/RahulByline/pdf-to-epub-sub002/server"
	"github.com/RahulByline/pdf-to-epub-sub002/store"
	"github.com/RahulByline/pdf-to-epub-sub002/throttle"
)

func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobStore, err := newStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize job store: %v", err)
	}

	jobQueue := queue.NewConversionJobQueue(jobStore)
	if err := jobQueue.LoadJobs(); err != nil {
		log.Printf("Warning: Failed to load existing jobs: %v", err)
	}

	registry := throttle.NewRegistry(throttle.Config{
		RateLimiter: throttle.RateLimiterConfig{
			TokensPerMinute: cfg.TokensPerMinute,
			Capacity:        cfg.BucketCapacity,
			MinInterval:     cfg.MinInterval,
			HourlyCap:       cfg.HourlyCap,
		},
		Breaker: throttle.BreakerConfig{
			FailureThreshold: cfg.FailureThreshold,
			SuccessThreshold: cfg.SuccessThreshold,
			OpenDuration:     cfg.OpenDuration,
			HalfOpenMaxCalls: cfg.HalfOpenMaxCalls,
		},
		QueuePacing: config.DefaultQueuePacing,
	})

	synthesizer, err := provider.NewOpenAISynthesizer(cfg.TTSEndpoint, cfg.TTSAPIKey)
	if err != nil {
		log.Fatalf("Failed to initialize speech synthesizer: %v", err)
	}

	voice := models.VoiceConfig{
		Voice:  cfg.TTSVoice,
		Model:  cfg.TTSModel,
		Speed:  cfg.TTSSpeed,
		Format: "wav",
	}
	convPipeline := pipeline.NewPipeline(registry, synthesizer, voice, cfg.OutputDir)

	if cfg.ExtractAPIKey != "" {
		extractor, err := provider.NewOpenAIExtractor(cfg.ExtractEndpoint, cfg.ExtractAPIKey, cfg.ExtractModel, pipeline.PageText)
		if err != nil {
			log.Fatalf("Failed to initialize structure extractor: %v", err)
		}
		convPipeline.WithExtractor(extractor.Name(), extractor)
		convPipeline.WithExclusionDetector(aiExclusions{extractor})
	}

	limiter := queue.NewJobConcurrencyLimiter(cfg.MaxActiveJobs)
	srv := server.NewServer(jobQueue, limiter, registry, convPipeline, cfg.HTTPAddr, cfg.UploadDir, cfg.OutputDir, cfg.NumWorkers)
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	go runJobCleanup(ctx, jobQueue)

	log.Printf("PDF conversion service started with %d workers (max %d active jobs)", cfg.NumWorkers, cfg.MaxActiveJobs)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down gracefully...")
	cancel()
	registry.Close()
}

// aiExclusions adapts the extractor's exclusion pass to the pipeline's
// detector interface.
type aiExclusions struct {
	extractor *provider.OpenAIExtractor
}

func (a aiExclusions) DetectExclusions(ctx context.Context, analysis *pipeline.DocumentAnalysis) ([]int, error) {
	return a.extractor.DetectExcludedPages(ctx, analysis.PageTexts)
}

// newStore selects the job store backend from configuration
func newStore(ctx context.Context, cfg *config.Config) (queue.Store, error) {
	switch cfg.StoreBackend {
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.PostgresURL)
	case "redis":
		return store.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisDB, config.JobExpirationHours*time.Hour)
	default:
		return store.NewDiskStore(cfg.DataDir)
	}
}

// runJobCleanup periodically drops expired finished jobs and their
// package files.
func runJobCleanup(ctx context.Context, jobQueue *queue.ConversionJobQueue) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cleanupOldJobs(jobQueue)
		case <-ctx.Done():
			return
		}
	}
}

// cleanupOldJobs removes finished jobs older than the retention window
func cleanupOldJobs(jobQueue *queue.ConversionJobQueue) {
	cutoff := time.Now().Add(-config.JobExpirationHours * time.Hour)

	for _, job := range jobQueue.GetAllJobs() {
		if job.Status != models.StatusSucceeded && job.Status != models.StatusFailed {
			continue
		}
		if job.CreatedAt.After(cutoff) {
			continue
		}
		if job.OutputFile != "" {
			_ = os.Remove(job.OutputFile)
		}
		if err := jobQueue.RemoveJob(job.ID); err != nil {
			log.Printf("Failed to remove expired job %s: %v", job.ID, err)
		}
	}
}
