package pipeline

import (
	"context"
	"log"
	"regexp"
	"strings"
	"unicode"

	"github.com/RahulByline/pdf-to-epub-sub002/provider"
)

// HeuristicExtractor is the local fallback structure extractor. It
// classifies raw page lines into headers, lists and paragraphs and is
// guaranteed to return a non-empty structure for every page.
type HeuristicExtractor struct {
	analysis *DocumentAnalysis
}

// NewHeuristicExtractor creates an extractor over pre-analyzed pages
func NewHeuristicExtractor(analysis *DocumentAnalysis) *HeuristicExtractor {
	return &HeuristicExtractor{analysis: analysis}
}

var listLinePattern = regexp.MustCompile(`^\s*([-*•‣◦]|\d{1,3}[.)])\s+`)

// ExtractPage classifies the raw text of one page into structure
func (e *HeuristicExtractor) ExtractPage(_ context.Context, _ string, page int) (*provider.PageStructure, error) {
	structure := &provider.PageStructure{Page: page}

	var text string
	if page >= 1 && page <= len(e.analysis.PageTexts) {
		text = e.analysis.PageTexts[page-1]
	}

	var paragraph []string
	flush := func() {
		if len(paragraph) > 0 {
			structure.Paragraphs = append(structure.Paragraphs, strings.Join(paragraph, " "))
			paragraph = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flush()
		case listLinePattern.MatchString(line):
			flush()
			structure.Lists = append(structure.Lists, listLinePattern.ReplaceAllString(line, ""))
		case looksLikeHeader(line):
			flush()
			structure.Headers = append(structure.Headers, line)
		default:
			paragraph = append(paragraph, line)
		}
	}
	flush()

	// Downstream stages must never receive an empty structure.
	if structure.IsEmpty() {
		structure.Paragraphs = []string{"(no extractable text on this page)"}
	}
	return structure, nil
}

// looksLikeHeader flags short standalone lines without sentence
// punctuation as headers.
func looksLikeHeader(line string) bool {
	if len(line) > 80 || strings.HasSuffix(line, ".") || strings.HasSuffix(line, ",") {
		return false
	}
	words := strings.Fields(line)
	if len(words) == 0 || len(words) > 10 {
		return false
	}
	first := []rune(words[0])
	return unicode.IsUpper(first[0]) || unicode.IsDigit(first[0])
}

// extractStructure runs the configured AI extractor through the
// throttled call path and falls back to the local heuristic on any
// failure, so this stage always yields a usable structure.
func (p *Pipeline) extractStructure(ctx context.Context, fallback *HeuristicExtractor, sourcePath string, page int, priority int) *provider.PageStructure {
	if p.extractor != nil {
		value, err := p.registry.Call(ctx, p.extractorName, priority, func(workCtx context.Context) (interface{}, error) {
			return p.extractor.ExtractPage(workCtx, sourcePath, page)
		})
		if err == nil {
			if structure, ok := value.(*provider.PageStructure); ok && !structure.IsEmpty() {
				return structure
			}
		} else {
			log.Printf("Structure extraction failed for page %d, using heuristic fallback: %v", page, err)
		}
	}

	structure, _ := fallback.ExtractPage(ctx, sourcePath, page)
	return structure
}
