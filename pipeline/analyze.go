package pipeline

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Document type classifications
const (
	DocTypeText    = "text"
	DocTypeScanned = "scanned"
)

// minCharsPerPage is the average extractable-text threshold below
// which a document is classified as scanned.
const minCharsPerPage = 50

// DocumentAnalysis is the best-effort classification of a source file
type DocumentAnalysis struct {
	DocType   string
	PageCount int
	// PageTexts holds raw extracted text indexed by page-1; empty
	// strings mark pages with no extractable text.
	PageTexts []string
}

// analyzeDocument opens the PDF, extracts raw text per page and
// classifies the document as text-based or scanned. Per-page
// extraction failures degrade the classification, they never abort it.
func analyzeDocument(sourcePath string) (*DocumentAnalysis, error) {
	f, r, err := pdf.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open source document: %w", err)
	}
	defer f.Close()

	totalPages := r.NumPage()
	if totalPages == 0 {
		return nil, fmt.Errorf("source document has no pages")
	}

	analysis := &DocumentAnalysis{
		PageCount: totalPages,
		PageTexts: make([]string, totalPages),
	}

	totalChars := 0
	for pageIndex := 1; pageIndex <= totalPages; pageIndex++ {
		p := r.Page(pageIndex)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		analysis.PageTexts[pageIndex-1] = text
		totalChars += len(text)
	}

	if totalChars/totalPages < minCharsPerPage {
		analysis.DocType = DocTypeScanned
	} else {
		analysis.DocType = DocTypeText
	}
	return analysis, nil
}

// PageText extracts the raw text of one page. AI extractors use it to
// read page content without running a full analysis pass.
func PageText(sourcePath string, page int) (string, error) {
	f, r, err := pdf.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to open source document: %w", err)
	}
	defer f.Close()

	if page < 1 || page > r.NumPage() {
		return "", fmt.Errorf("page %d out of range (document has %d)", page, r.NumPage())
	}
	p := r.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("extracting text of page %d: %w", page, err)
	}
	return strings.TrimSpace(text), nil
}
