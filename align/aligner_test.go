package align

import (
	"math"
	"testing"

	"github.com/RahulByline/pdf-to-epub-sub002/models"
	"github.com/RahulByline/pdf-to-epub-sub002/provider"
)

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

// TestAlignEstimatedUnitsAreAdjacent checks that for estimated units
// of 2.0s and 3.0s the second unit starts where the first ended plus
// the inter-word pause, with no overlapping or decreasing timings.
func TestAlignEstimatedUnitsAreAdjacent(t *testing.T) {
	a := NewAlignerForTests(0.05, 0.35)

	units := []Unit{
		{
			ID: "p001-u001", Text: "hello wonderful world", Type: models.FragmentParagraph, Page: 1,
			AudioFile: "u1.wav", Result: &provider.SynthesisResult{Duration: 2.0},
		},
		{
			ID: "p001-u002", Text: "another narrated sentence here", Type: models.FragmentParagraph, Page: 1,
			AudioFile: "u2.wav", Result: &provider.SynthesisResult{Duration: 3.0},
		},
	}

	fragments, duration := a.AlignPage(units)
	if len(fragments) != 7 {
		t.Fatalf("fragments = %d, want 7", len(fragments))
	}

	var firstEnd float64
	var secondStart float64
	for _, frag := range fragments {
		if frag.ID == "p001-u001-w003" {
			firstEnd = frag.EndTime
		}
		if frag.ID == "p001-u002-w001" {
			secondStart = frag.StartTime
		}
	}
	if !almostEqual(firstEnd, 2.0) {
		t.Fatalf("first unit end = %f, want 2.0", firstEnd)
	}
	if !almostEqual(secondStart, firstEnd+0.05) {
		t.Fatalf("second unit start = %f, want first end + pause = %f", secondStart, firstEnd+0.05)
	}

	prevEnd := 0.0
	for _, frag := range fragments {
		if frag.EndTime < frag.StartTime {
			t.Fatalf("fragment %s ends before it starts: [%f, %f]", frag.ID, frag.StartTime, frag.EndTime)
		}
		if frag.StartTime+epsilon < prevEnd {
			t.Fatalf("fragment %s overlaps previous end %f", frag.ID, prevEnd)
		}
		prevEnd = frag.EndTime
	}

	if !almostEqual(duration, 5.05) {
		t.Fatalf("page duration = %f, want 5.05", duration)
	}
}

// TestAlignExactTimingsArePreserved checks provider timings shift by
// the running clock and get clamped into monotonic order.
func TestAlignExactTimingsArePreserved(t *testing.T) {
	a := NewAlignerForTests(0.05, 0.35)

	units := []Unit{
		{
			ID: "p002-u001", Text: "first one", Type: models.FragmentParagraph, Page: 2,
			AudioFile: "u1.wav",
			Result: &provider.SynthesisResult{
				Duration: 1.0,
				Timings: []provider.UnitTiming{
					{Word: "first", Start: 0.0, End: 0.4},
					{Word: "one", Start: 0.5, End: 1.0},
				},
			},
		},
		{
			ID: "p002-u002", Text: "second", Type: models.FragmentParagraph, Page: 2,
			AudioFile: "u2.wav",
			Result: &provider.SynthesisResult{
				Timings: []provider.UnitTiming{
					// Overlapping input must be clamped, not propagated.
					{Word: "second", Start: -0.2, End: 0.7},
				},
			},
		},
	}

	fragments, _ := a.AlignPage(units)
	if len(fragments) != 3 {
		t.Fatalf("fragments = %d, want 3", len(fragments))
	}

	if !almostEqual(fragments[0].StartTime, 0.0) || !almostEqual(fragments[0].EndTime, 0.4) {
		t.Fatalf("first fragment = [%f, %f], want [0.0, 0.4]", fragments[0].StartTime, fragments[0].EndTime)
	}
	if !almostEqual(fragments[1].StartTime, 0.5) || !almostEqual(fragments[1].EndTime, 1.0) {
		t.Fatalf("second fragment = [%f, %f], want [0.5, 1.0]", fragments[1].StartTime, fragments[1].EndTime)
	}

	// Unit 2's clock starts at 1.05; its negative start clamps there.
	if !almostEqual(fragments[2].StartTime, 1.05) {
		t.Fatalf("third fragment start = %f, want 1.05", fragments[2].StartTime)
	}
	if fragments[2].EndTime < fragments[2].StartTime {
		t.Fatal("clamped fragment ends before it starts")
	}

	// AlignPage records each unit's clock base so downstream offsets
	// into the unit's audio file stay exact.
	if !almostEqual(units[0].ClockStart, 0.0) {
		t.Fatalf("unit 1 clock start = %f, want 0.0", units[0].ClockStart)
	}
	if !almostEqual(units[1].ClockStart, 1.05) {
		t.Fatalf("unit 2 clock start = %f, want 1.05", units[1].ClockStart)
	}
}

// TestAlignLeadInSilenceStaysInFileOffsets checks a unit whose exact
// timings begin after zero keeps that lead-in relative to its clock
// base rather than collapsing to the base itself.
func TestAlignLeadInSilenceStaysInFileOffsets(t *testing.T) {
	a := NewAlignerForTests(0.05, 0.35)

	units := []Unit{
		{
			ID: "p005-u001", Text: "hello world", Page: 5, AudioFile: "u.wav",
			Result: &provider.SynthesisResult{
				Duration: 1.6,
				Timings: []provider.UnitTiming{
					{Word: "hello", Start: 0.5, End: 1.0},
					{Word: "world", Start: 1.1, End: 1.6},
				},
			},
		},
	}

	fragments, _ := a.AlignPage(units)
	if len(fragments) != 2 {
		t.Fatalf("fragments = %d, want 2", len(fragments))
	}
	if !almostEqual(units[0].ClockStart, 0.0) {
		t.Fatalf("clock start = %f, want 0.0", units[0].ClockStart)
	}
	if !almostEqual(fragments[0].StartTime-units[0].ClockStart, 0.5) {
		t.Fatalf("first word offset = %f, want 0.5", fragments[0].StartTime-units[0].ClockStart)
	}
	if !almostEqual(fragments[1].EndTime-units[0].ClockStart, 1.6) {
		t.Fatalf("second word end offset = %f, want 1.6", fragments[1].EndTime-units[0].ClockStart)
	}
}

// TestAlignSkippedUnitsProduceNoFragments checks units without
// synthesis results are passed over without advancing the clock.
func TestAlignSkippedUnitsProduceNoFragments(t *testing.T) {
	a := NewAlignerForTests(0.05, 0.35)

	units := []Unit{
		{ID: "p003-u001", Text: "narrated text", Page: 3, AudioFile: "u1.wav", Result: &provider.SynthesisResult{Duration: 1.0}},
		{ID: "p003-u002", Text: "silent text", Page: 3},
		{ID: "p003-u003", Text: "more narration", Page: 3, AudioFile: "u3.wav", Result: &provider.SynthesisResult{Duration: 1.0}},
	}

	fragments, _ := a.AlignPage(units)
	for _, frag := range fragments {
		if frag.ID == "p003-u002-w001" {
			t.Fatal("skipped unit produced a fragment")
		}
	}

	// Unit 3 follows unit 1 directly on the clock.
	var unit1End, unit3Start float64
	for _, frag := range fragments {
		if frag.ID == "p003-u001-w002" {
			unit1End = frag.EndTime
		}
		if frag.ID == "p003-u003-w001" {
			unit3Start = frag.StartTime
		}
	}
	if !almostEqual(unit3Start, unit1End+0.05) {
		t.Fatalf("unit 3 start = %f, want %f", unit3Start, unit1End+0.05)
	}
}

// TestAlignFallbackWordDuration checks units without any reported
// duration still get positive, ordered timings.
func TestAlignFallbackWordDuration(t *testing.T) {
	a := NewAlignerForTests(0.05, 0.35)

	fragments, duration := a.AlignPage([]Unit{
		{ID: "p004-u001", Text: "three short words", Page: 4, AudioFile: "u.wav", Result: &provider.SynthesisResult{}},
	})
	if len(fragments) != 3 {
		t.Fatalf("fragments = %d, want 3", len(fragments))
	}
	if duration <= 0 {
		t.Fatalf("duration = %f, want > 0", duration)
	}
	if !almostEqual(duration, 3*0.35) {
		t.Fatalf("duration = %f, want %f", duration, 3*0.35)
	}
}

// TestFormatClock checks the fixed-width H:MM:SS.mmm rendering
func TestFormatClock(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "0:00:00.000"},
		{0.5, "0:00:00.500"},
		{61.25, "0:01:01.250"},
		{3661.007, "1:01:01.007"},
		{-1, "0:00:00.000"},
	}
	for _, tc := range cases {
		if got := FormatClock(tc.seconds); got != tc.want {
			t.Errorf("FormatClock(%f) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}
