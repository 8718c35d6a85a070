package provider

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/RahulByline/pdf-to-epub-sub002/models"
)

func newTestSynthesizer(t *testing.T, handler http.HandlerFunc) *OpenAISynthesizer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := NewOpenAISynthesizer(srv.URL, "test-key")
	if err != nil {
		t.Fatalf("new synthesizer: %v", err)
	}
	return s
}

// TestSynthesizeSuccess checks the request payload and the WAV
// duration probe on the returned audio.
func TestSynthesizeSuccess(t *testing.T) {
	wavData := makeWAV(t, 8000, 1.0)

	s := newTestSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header = %q", got)
		}
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["input"] != "hello world" || payload["voice"] != "alloy" {
			t.Errorf("payload = %v", payload)
		}
		if payload["response_format"] != "wav" {
			t.Errorf("response_format = %v", payload["response_format"])
		}
		w.Write(wavData)
	})

	result, err := s.Synthesize(context.Background(), "hello world", models.VoiceConfig{Voice: "alloy"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if result.Format != "wav" || len(result.Audio) != len(wavData) {
		t.Fatalf("result format=%s audio=%d bytes", result.Format, len(result.Audio))
	}
	if math.Abs(result.Duration-1.0) > 0.01 {
		t.Fatalf("duration = %f, want ~1.0", result.Duration)
	}
}

// TestSynthesizeStatusClassification maps HTTP codes to error kinds
func TestSynthesizeStatusClassification(t *testing.T) {
	cases := []struct {
		status   int
		overload bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		s := newTestSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "provider says no", tc.status)
		})

		_, err := s.Synthesize(context.Background(), "text", models.VoiceConfig{})
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		if got := IsOverload(err); got != tc.overload {
			t.Fatalf("status %d: IsOverload = %v, want %v (err: %v)", tc.status, got, tc.overload, err)
		}
		if !tc.overload {
			var transient *TransientError
			if !errors.As(err, &transient) {
				t.Fatalf("status %d: error = %v, want TransientError", tc.status, err)
			}
		}
	}
}

// TestSynthesizeConnectionFailure treats a dead server as transient
func TestSynthesizeConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s, err := NewOpenAISynthesizer(url, "test-key")
	if err != nil {
		t.Fatalf("new synthesizer: %v", err)
	}
	_, err = s.Synthesize(context.Background(), "text", models.VoiceConfig{})
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("error = %v, want TransientError", err)
	}
	if IsOverload(err) {
		t.Fatal("connection failure must not count as overload")
	}
}

// TestNewSynthesizerRequiresKey rejects a missing API key
func TestNewSynthesizerRequiresKey(t *testing.T) {
	if _, err := NewOpenAISynthesizer("http://localhost", ""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}
