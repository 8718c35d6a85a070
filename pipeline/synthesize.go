package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RahulByline/pdf-to-epub-sub002/provider"
	"github.com/RahulByline/pdf-to-epub-sub002/throttle"
)

// synthesisRetryAttempts bounds retries when admission is denied
// (rate limiter or breaker), not when the provider itself fails.
const synthesisRetryAttempts = 3

// synthesizeUnit runs one unit of text through the throttled call
// path. Admission denials back off and retry; provider failures are
// returned to the caller, which skips the unit.
func (p *Pipeline) synthesizeUnit(ctx context.Context, text string, priority int) (*provider.SynthesisResult, error) {
	providerName := p.synthesizer.Name()

	for attempt := 1; ; attempt++ {
		value, err := p.registry.Call(ctx, providerName, priority, func(workCtx context.Context) (interface{}, error) {
			return p.synthesizer.Synthesize(workCtx, text, p.voice)
		})
		if err == nil {
			result, ok := value.(*provider.SynthesisResult)
			if !ok {
				return nil, fmt.Errorf("unexpected synthesis result type %T", value)
			}
			return result, nil
		}

		if errors.Is(err, throttle.ErrResourceExhausted) && attempt < synthesisRetryAttempts {
			wait := p.registry.Limiter().TimeUntilNextToken(providerName)
			if wait < 100*time.Millisecond {
				wait = 100 * time.Millisecond
			}
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return nil, err
	}
}

// writeUnitAudio persists synthesized audio into the job's temp dir
func writeUnitAudio(tempDir, unitID string, result *provider.SynthesisResult) (string, error) {
	format := result.Format
	if format == "" {
		format = "wav"
	}
	path := filepath.Join(tempDir, fmt.Sprintf("%s.%s", unitID, format))
	if err := os.WriteFile(path, result.Audio, 0644); err != nil {
		return "", fmt.Errorf("failed to write unit audio: %w", err)
	}
	return path, nil
}
