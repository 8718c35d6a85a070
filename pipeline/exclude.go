package pipeline

import (
	"context"
	"log"
	"regexp"
	"strings"
)

// ExclusionDetector augments the structural heuristic with an
// AI-assisted pass. Implementations may fail freely; a detector error
// skips the pass, it never fails the job.
type ExclusionDetector interface {
	DetectExclusions(ctx context.Context, analysis *DocumentAnalysis) ([]int, error)
}

var (
	tocEntryPattern   = regexp.MustCompile(`\.{3,}\s*\d{1,4}\s*$|\s\d{1,4}\s*$`)
	tocHeadingPattern = regexp.MustCompile(`(?i)^(table of )?contents$|^index$`)
)

// detectExcludedPages runs the structural heuristic over every page:
// pages that look like a table of contents or an index (dot leaders,
// trailing page numbers, a contents heading) are excluded from
// narration. Returns the run-scoped exclusion set keyed by page number.
func detectExcludedPages(analysis *DocumentAnalysis) map[int]bool {
	excluded := make(map[int]bool)

	for i, text := range analysis.PageTexts {
		page := i + 1
		if text == "" {
			continue
		}

		lines := strings.Split(text, "\n")
		nonEmpty := 0
		tocLike := 0
		headed := false
		for _, line := range lines {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			nonEmpty++
			if tocHeadingPattern.MatchString(line) {
				headed = true
			}
			if tocEntryPattern.MatchString(line) {
				tocLike++
			}
		}
		if nonEmpty == 0 {
			continue
		}

		// A contents heading plus a few entry-shaped lines, or a page
		// dominated by entry-shaped lines, marks the page excluded.
		ratio := float64(tocLike) / float64(nonEmpty)
		if (headed && tocLike >= 3) || (tocLike >= 5 && ratio > 0.6) {
			excluded[page] = true
		}
	}
	return excluded
}

// mergeExclusions augments the heuristic set with the optional AI
// pass. The merged set applies to the current run only; it is never
// persisted.
func (p *Pipeline) mergeExclusions(ctx context.Context, analysis *DocumentAnalysis, excluded map[int]bool) {
	if p.detector == nil {
		return
	}

	pages, err := p.detector.DetectExclusions(ctx, analysis)
	if err != nil {
		log.Printf("AI exclusion pass failed, continuing with heuristic set: %v", err)
		return
	}
	for _, page := range pages {
		if page >= 1 && page <= analysis.PageCount {
			excluded[page] = true
		}
	}
}
