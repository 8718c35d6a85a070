package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/RahulByline/pdf-to-epub-sub002/models"
)

// OpenAISynthesizer implements SpeechSynthesizer against the OpenAI
// speech endpoint (or any API-compatible server).
type OpenAISynthesizer struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewOpenAISynthesizer creates an HTTP speech synthesizer
func NewOpenAISynthesizer(endpoint, apiKey string) (*OpenAISynthesizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("tts api key is required")
	}
	return &OpenAISynthesizer{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{},
	}, nil
}

// Name identifies this provider for throttling and breaker state
func (s *OpenAISynthesizer) Name() string {
	return "openai-tts"
}

// Synthesize converts text to audio bytes
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string, voice models.VoiceConfig) (*SynthesisResult, error) {
	format := voice.Format
	if format == "" {
		format = "wav"
	}
	speed := voice.Speed
	if speed == 0 {
		speed = 1.0
	}
	payload := map[string]interface{}{
		"model":           voice.Model,
		"input":           text,
		"voice":           voice.Voice,
		"speed":           speed,
		"response_format": format,
	}
	body, _ := json.Marshal(payload)

	// Adopt timeout from ctx or fall back to 90s
	reqCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, 90*time.Second)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, "POST", s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &TransientError{Provider: s.Name(), Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		msg := fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		if isOverloadStatus(resp.StatusCode) {
			return nil, &OverloadError{Provider: s.Name(), Message: msg}
		}
		return nil, &TransientError{Provider: s.Name(), Message: msg}
	}

	audioBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Provider: s.Name(), Message: "reading audio body", Err: err}
	}

	result := &SynthesisResult{Audio: audioBytes, Format: format}
	if format == "wav" {
		if d, err := WAVDuration(audioBytes); err == nil {
			result.Duration = d
		}
	}
	return result, nil
}

// isOverloadStatus classifies HTTP codes that indicate provider overload
func isOverloadStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
