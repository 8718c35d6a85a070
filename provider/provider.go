package provider

import (
	"context"

	"github.com/RahulByline/pdf-to-epub-sub002/models"
)

// PageStructure is the extracted layout of one document page
type PageStructure struct {
	Page       int      `json:"page"`
	Headers    []string `json:"headers"`
	Paragraphs []string `json:"paragraphs"`
	Lists      []string `json:"lists"`
	Tables     []string `json:"tables"`
}

// IsEmpty reports whether the structure carries no usable text
func (s *PageStructure) IsEmpty() bool {
	return len(s.Headers) == 0 && len(s.Paragraphs) == 0 && len(s.Lists) == 0 && len(s.Tables) == 0
}

// StructureExtractor extracts headers, paragraphs, lists and tables
// from a single page of a source document
type StructureExtractor interface {
	ExtractPage(ctx context.Context, sourcePath string, page int) (*PageStructure, error)
}

// UnitTiming is a per-word timing pair reported by a synthesis provider
type UnitTiming struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// SynthesisResult holds synthesized audio and optional exact timings
type SynthesisResult struct {
	Audio    []byte       `json:"-"`
	Format   string       `json:"format"`
	Duration float64      `json:"duration,omitempty"`
	Timings  []UnitTiming `json:"timings,omitempty"`
}

// SpeechSynthesizer converts a unit of text into narrated audio.
// Overload rejections must be returned as *OverloadError so callers
// can distinguish them from ordinary failures.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, voice models.VoiceConfig) (*SynthesisResult, error)
	Name() string
}
