package models

import (
	"time"
)

// JobStatus represents the current state of a job in the system
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
)

// JobPriority orders jobs and provider requests; lower runs first
type JobPriority int

const (
	PriorityHigh   JobPriority = 0
	PriorityNormal JobPriority = 1
	PriorityLow    JobPriority = 2
)

// ParsePriority maps a request string to a priority, defaulting to normal
func ParsePriority(s string) JobPriority {
	switch s {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// ConversionJob represents one PDF to audio-EPUB conversion
type ConversionJob struct {
	ID           string              `json:"id"`
	SourceFile   string              `json:"source_file"`
	OutputFile   string              `json:"output_file,omitempty"`
	Priority     JobPriority         `json:"priority"`
	Status       JobStatus           `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
	StartedAt    time.Time           `json:"started_at,omitempty"`
	CompletedAt  time.Time           `json:"completed_at,omitempty"`
	UpdatedAt    time.Time           `json:"updated_at,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	Metadata     *ConversionMetadata `json:"metadata,omitempty"`
}

// ConversionMetadata summarizes what the pipeline actually produced
type ConversionMetadata struct {
	DocumentType     string  `json:"document_type"`
	PagesTotal       int     `json:"pages_total"`
	PagesWithAudio   int     `json:"pages_with_audio"`
	UnitsSynthesized int     `json:"units_synthesized"`
	UnitsSkipped     int     `json:"units_skipped"`
	TotalDuration    float64 `json:"total_duration_seconds"`
	ExcludedPages    []int   `json:"excluded_pages,omitempty"`
}

// HasFullAudio reports whether every page received narration
func (m *ConversionMetadata) HasFullAudio() bool {
	return m != nil && m.PagesTotal > 0 && m.PagesWithAudio == m.PagesTotal
}
