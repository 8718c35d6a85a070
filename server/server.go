package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/RahulByline/pdf-to-epub-sub002/models"
	"github.com/RahulByline/pdf-to-epub-sub002/pipeline"
	"github.com/RahulByline/pdf-to-epub-sub002/queue"
	"github.com/RahulByline/pdf-to-epub-sub002/throttle"
	"github.com/RahulByline/pdf-to-epub-sub002/worker"
)

// Server handles HTTP requests for job management
type Server struct {
	queue     *queue.ConversionJobQueue
	limiter   *queue.JobConcurrencyLimiter
	registry  *throttle.Registry
	workers   []*worker.Worker
	httpAddr  string
	uploadDir string
	wsManager *models.WebSocketManager
	upgrader  websocket.Upgrader
	startedAt time.Time
}

// NewServer creates a new server instance
func NewServer(q *queue.ConversionJobQueue, limiter *queue.JobConcurrencyLimiter, registry *throttle.Registry, p *pipeline.Pipeline, httpAddr, uploadDir, outputDir string, numWorkers int) *Server {
	wsManager := models.NewWebSocketManager()
	wsManager.Start()

	server := &Server{
		queue:     q,
		limiter:   limiter,
		registry:  registry,
		httpAddr:  httpAddr,
		uploadDir: uploadDir,
		workers:   make([]*worker.Worker, numWorkers),
		wsManager: wsManager,
		startedAt: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	for i := 0; i < numWorkers; i++ {
		workerID := fmt.Sprintf("worker-%d", i+1)
		server.workers[i] = worker.NewWorker(workerID, q, limiter, p, outputDir)
	}

	return server
}

// Start begins the server
func (s *Server) Start(ctx context.Context) error {
	// All status transitions flow through the queue's update channel.
	go func() {
		updates := s.queue.GetJobUpdateChannel()
		for {
			select {
			case job := <-updates:
				s.wsManager.BroadcastJobUpdate(job)
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		mux := http.NewServeMux()

		corsMiddleware := func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

				if r.Method == "OPTIONS" {
					w.WriteHeader(http.StatusOK)
					return
				}

				next.ServeHTTP(w, r)
			})
		}

		mux.Handle("/jobs", corsMiddleware(http.HandlerFunc(s.handleJobs)))
		mux.Handle("/jobs/", corsMiddleware(http.HandlerFunc(s.handleJobDetails)))
		mux.Handle("/stats", corsMiddleware(http.HandlerFunc(s.handleStats)))
		mux.Handle("/ws", http.HandlerFunc(s.handleWebSocket))

		log.Printf("HTTP server listening on %s", s.httpAddr)
		if err := http.ListenAndServe(s.httpAddr, mux); err != nil {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	for _, w := range s.workers {
		w.Start(ctx)
	}

	return nil
}

// handleJobs handles HTTP requests for job listing and creation
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		r.ParseMultipartForm(32 << 20) // 32MB max memory
		file, header, err := r.FormFile("pdfFile")
		if err != nil {
			http.Error(w, "Missing PDF file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
			http.Error(w, "Failed to create upload directory", http.StatusInternalServerError)
			return
		}

		filePath := filepath.Join(s.uploadDir, filepath.Base(header.Filename))
		dst, err := os.Create(filePath)
		if err != nil {
			http.Error(w, "Failed to save file", http.StatusInternalServerError)
			return
		}
		defer dst.Close()

		if _, err := io.Copy(dst, file); err != nil {
			http.Error(w, "Failed to save file data", http.StatusInternalServerError)
			return
		}

		priority := models.ParsePriority(r.FormValue("priority"))
		job, err := s.queue.EnqueueJob(filePath, priority)
		if err != nil {
			http.Error(w, "Failed to enqueue job", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(job)
		return
	}

	// GET - List all jobs
	w.Header().Set("Content-Type", "application/json")

	status := r.URL.Query().Get("status")
	if status != "" {
		var jobs []*models.ConversionJob

		switch models.JobStatus(status) {
		case models.StatusQueued:
			jobs = s.queue.GetPendingJobs()
		case models.StatusRunning:
			jobs = s.queue.GetRunningJobs()
		case models.StatusSucceeded:
			jobs = s.queue.GetSucceededJobs()
		case models.StatusFailed:
			jobs = s.queue.GetFailedJobs()
		default:
			http.Error(w, "Invalid status parameter", http.StatusBadRequest)
			return
		}

		json.NewEncoder(w).Encode(jobs)
		return
	}

	allJobs := s.queue.GetAllJobs()
	json.NewEncoder(w).Encode(allJobs)
}

// handleJobDetails handles HTTP requests for specific jobs and
// package downloads (/jobs/{id} and /jobs/{id}/download).
func (s *Server) handleJobDetails(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/jobs/")
	jobID := rest
	download := false
	if strings.HasSuffix(rest, "/download") {
		jobID = strings.TrimSuffix(rest, "/download")
		download = true
	}

	job, err := s.queue.GetJob(jobID)
	if err != nil {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	if download {
		if job.Status != models.StatusSucceeded || job.OutputFile == "" {
			http.Error(w, "Package not available", http.StatusConflict)
			return
		}
		w.Header().Set("Content-Type", "application/epub+zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(job.OutputFile)))
		http.ServeFile(w, r, job.OutputFile)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

// handleStats reports limiter occupancy and per-provider breaker state
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"running_jobs": s.limiter.Running(),
		"waiting_jobs": s.limiter.Waiting(),
		"pending_jobs": len(s.queue.GetPendingJobs()),
		"providers":    s.registry.Stats(),
		"uptime":       time.Since(s.startedAt).Round(time.Second).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	s.wsManager.RegisterClient(conn)

	// Send initial job list to the client
	allJobs := s.queue.GetAllJobs()
	initialData, err := json.Marshal(map[string]interface{}{
		"type": "initial_jobs",
		"jobs": allJobs,
	})
	if err == nil {
		conn.WriteMessage(websocket.TextMessage, initialData)
	}

	// Handle disconnection
	go func() {
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				s.wsManager.UnregisterClient(conn)
				break
			}
		}
	}()
}
