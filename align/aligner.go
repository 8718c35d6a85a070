package align

import (
	"fmt"
	"strings"

	"github.com/RahulByline/pdf-to-epub-sub002/models"
	"github.com/RahulByline/pdf-to-epub-sub002/provider"
)

const (
	// DefaultInterWordPause separates estimated words and consecutive units
	DefaultInterWordPause = 0.05
	// DefaultWordDuration is used when a unit reports no duration at all
	DefaultWordDuration = 0.35
)

// Unit is one synthesized text unit awaiting alignment
type Unit struct {
	ID        string
	Text      string
	Type      models.FragmentType
	Page      int
	AudioFile string
	// Result is nil when synthesis for this unit was skipped
	Result *provider.SynthesisResult
	// ClockStart is set by AlignPage: the page-clock position where
	// this unit's audio begins. Fragment times minus ClockStart are
	// offsets into the unit's own audio file.
	ClockStart float64
}

// Aligner converts synthesis output into ordered, non-overlapping
// per-word timing records. Exact provider timings are used when
// present; otherwise durations are distributed evenly across words
// with a fixed inter-word pause.
type Aligner struct {
	interWordPause float64
	wordDuration   float64
}

// NewAligner creates an aligner with the default pause settings
func NewAligner() *Aligner {
	return &Aligner{
		interWordPause: DefaultInterWordPause,
		wordDuration:   DefaultWordDuration,
	}
}

// NewAlignerForTests creates an aligner with explicit pause settings
func NewAlignerForTests(interWordPause, wordDuration float64) *Aligner {
	return &Aligner{
		interWordPause: interWordPause,
		wordDuration:   wordDuration,
	}
}

// AlignPage aligns all units of one page against a running clock that
// starts at zero. Unit N starts where unit N-1 ended plus the
// inter-word pause. Returns the word fragments and the page duration.
func (a *Aligner) AlignPage(units []Unit) ([]models.TextFragment, float64) {
	var fragments []models.TextFragment
	clock := 0.0

	for i := range units {
		unit := units[i]
		if unit.Result == nil {
			continue
		}
		units[i].ClockStart = clock

		var unitFrags []models.TextFragment
		if len(unit.Result.Timings) > 0 {
			unitFrags = a.alignExact(unit, clock)
		} else {
			unitFrags = a.alignEstimated(unit, clock)
		}
		if len(unitFrags) == 0 {
			continue
		}

		fragments = append(fragments, unitFrags...)
		clock = unitFrags[len(unitFrags)-1].EndTime + a.interWordPause
	}

	duration := 0.0
	if len(fragments) > 0 {
		duration = fragments[len(fragments)-1].EndTime
	}
	return fragments, duration
}

// alignExact offsets provider-reported timings by the running clock,
// clamping so starts never precede the previous end.
func (a *Aligner) alignExact(unit Unit, clock float64) []models.TextFragment {
	fragments := make([]models.TextFragment, 0, len(unit.Result.Timings))
	prevEnd := clock

	for i, t := range unit.Result.Timings {
		start := clock + t.Start
		end := clock + t.End
		if start < prevEnd {
			start = prevEnd
		}
		if end < start {
			end = start
		}
		fragments = append(fragments, models.TextFragment{
			ID:        wordFragmentID(unit.ID, i),
			Text:      t.Word,
			Type:      models.FragmentWord,
			Page:      unit.Page,
			StartTime: start,
			EndTime:   end,
			AudioFile: unit.AudioFile,
		})
		prevEnd = end
	}
	return fragments
}

// alignEstimated distributes the unit duration evenly across words
// with a fixed pause between them.
func (a *Aligner) alignEstimated(unit Unit, clock float64) []models.TextFragment {
	words := strings.Fields(unit.Text)
	if len(words) == 0 {
		return nil
	}

	duration := unit.Result.Duration
	if duration <= 0 {
		duration = float64(len(words)) * a.wordDuration
	}

	pauseTotal := a.interWordPause * float64(len(words)-1)
	perWord := (duration - pauseTotal) / float64(len(words))
	if perWord <= 0 {
		perWord = duration / float64(len(words))
		pauseTotal = 0
	}

	fragments := make([]models.TextFragment, 0, len(words))
	cursor := clock
	for i, word := range words {
		start := cursor
		end := start + perWord
		fragments = append(fragments, models.TextFragment{
			ID:        wordFragmentID(unit.ID, i),
			Text:      word,
			Type:      models.FragmentWord,
			Page:      unit.Page,
			StartTime: start,
			EndTime:   end,
			AudioFile: unit.AudioFile,
		})
		cursor = end
		if pauseTotal > 0 && i < len(words)-1 {
			cursor += a.interWordPause
		}
	}
	return fragments
}

// InterWordPause returns the configured pause between words and units
func (a *Aligner) InterWordPause() float64 {
	return a.interWordPause
}

// wordFragmentID builds a stable per-word identifier within a unit
func wordFragmentID(unitID string, index int) string {
	return fmt.Sprintf("%s-w%03d", unitID, index+1)
}

// FormatClock renders seconds as the fixed-width H:MM:SS.mmm clock
// value embedded in timing files.
func FormatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int(seconds*1000 + 0.5)
	h := millis / 3600000
	m := (millis % 3600000) / 60000
	s := (millis % 60000) / 1000
	ms := millis % 1000
	return fmt.Sprintf("%d:%02d:%02d.%03d", h, m, s, ms)
}
