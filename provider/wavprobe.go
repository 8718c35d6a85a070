package provider

import (
	"bytes"
	"fmt"

	"github.com/go-audio/wav"
)

// WAVDuration reads the duration in seconds from an in-memory WAV file.
// Used to estimate narration length when the provider reports no timings.
func WAVDuration(data []byte) (float64, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return 0, fmt.Errorf("not a valid WAV file")
	}

	d, err := decoder.Duration()
	if err != nil {
		return 0, fmt.Errorf("failed to read WAV duration: %w", err)
	}
	return d.Seconds(), nil
}
