package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/RahulByline/pdf-to-epub-sub002/align"
	"github.com/RahulByline/pdf-to-epub-sub002/epub"
	"github.com/RahulByline/pdf-to-epub-sub002/models"
	"github.com/RahulByline/pdf-to-epub-sub002/provider"
	"github.com/RahulByline/pdf-to-epub-sub002/throttle"
)

// StageError marks a pipeline stage that exhausted its fallback and
// aborted the job.
type StageError struct {
	Stage   string
	Message string
	Err     error
}

// Error formats the stage failure for logs and job records
func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

// Unwrap exposes the underlying error for errors.Is / errors.As
func (e *StageError) Unwrap() error {
	return e.Err
}

// Options carries per-job conversion settings
type Options struct {
	Title    string
	Author   string
	Language string
	Priority int
}

// Result is the outcome of one successful conversion
type Result struct {
	PackagePath string
	Metadata    *models.ConversionMetadata
}

// Pipeline orchestrates the ordered conversion stages for one job:
// analyze, extract, exclusion-filter, synthesize, align, package.
// Every external call goes through the throttle registry.
type Pipeline struct {
	registry      *throttle.Registry
	synthesizer   provider.SpeechSynthesizer
	extractor     provider.StructureExtractor
	extractorName string
	detector      ExclusionDetector
	aligner       *align.Aligner
	voice         models.VoiceConfig
	workRoot      string
	analyze       func(sourcePath string) (*DocumentAnalysis, error)
}

// NewPipeline constructs the production pipeline
func NewPipeline(registry *throttle.Registry, synthesizer provider.SpeechSynthesizer, voice models.VoiceConfig, workRoot string) *Pipeline {
	return &Pipeline{
		registry:    registry,
		synthesizer: synthesizer,
		aligner:     align.NewAligner(),
		voice:       voice,
		workRoot:    workRoot,
		analyze:     analyzeDocument,
	}
}

// NewPipelineForTests constructs a pipeline with an injectable
// document analyzer so tests can run without real PDF input.
func NewPipelineForTests(
	registry *throttle.Registry,
	synthesizer provider.SpeechSynthesizer,
	voice models.VoiceConfig,
	workRoot string,
	analyze func(sourcePath string) (*DocumentAnalysis, error),
) *Pipeline {
	p := NewPipeline(registry, synthesizer, voice, workRoot)
	p.analyze = analyze
	return p
}

// WithExtractor sets the AI structure extractor and its provider name
func (p *Pipeline) WithExtractor(name string, extractor provider.StructureExtractor) *Pipeline {
	p.extractorName = name
	p.extractor = extractor
	return p
}

// WithExclusionDetector sets the optional AI exclusion pass
func (p *Pipeline) WithExclusionDetector(detector ExclusionDetector) *Pipeline {
	p.detector = detector
	return p
}

// Convert runs all stages for one job and returns the package path
// and conversion metadata. The job's temporary directory is removed on
// every exit path.
func (p *Pipeline) Convert(ctx context.Context, sourcePath, outputDir, jobID string, opts Options) (*Result, error) {
	analysis, err := p.analyze(sourcePath)
	if err != nil {
		return nil, &StageError{Stage: "analyzing", Message: "document analysis failed", Err: err}
	}
	log.Printf("Job %s: document classified as %s (%d pages)", jobID, analysis.DocType, analysis.PageCount)

	tempDir, err := os.MkdirTemp(p.workRoot, "convert-*")
	if err != nil {
		return nil, &StageError{Stage: "extracting", Message: "failed to create temporary workspace", Err: err}
	}
	defer func() {
		if rmErr := os.RemoveAll(tempDir); rmErr != nil {
			log.Printf("Job %s: failed to remove temp dir %s: %v", jobID, tempDir, rmErr)
		}
	}()

	fallback := NewHeuristicExtractor(analysis)
	structures := make([]*provider.PageStructure, analysis.PageCount)
	for page := 1; page <= analysis.PageCount; page++ {
		structures[page-1] = p.extractStructure(ctx, fallback, sourcePath, page, opts.Priority)
	}

	excluded := detectExcludedPages(analysis)
	p.mergeExclusions(ctx, analysis, excluded)
	if len(excluded) > 0 {
		log.Printf("Job %s: %d page(s) excluded from narration", jobID, len(excluded))
	}

	metadata := &models.ConversionMetadata{
		DocumentType: analysis.DocType,
		PagesTotal:   analysis.PageCount,
	}
	for page := range excluded {
		metadata.ExcludedPages = append(metadata.ExcludedPages, page)
	}
	sort.Ints(metadata.ExcludedPages)

	var pages []epub.Page
	for page := 1; page <= analysis.PageCount; page++ {
		epubPage, err := p.buildPage(ctx, tempDir, structures[page-1], excluded[page], opts, metadata)
		if err != nil {
			return nil, err
		}
		pages = append(pages, *epubPage)
	}

	title := opts.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	}
	language := opts.Language
	if language == "" {
		language = "en"
	}
	book := epub.Book{
		Identifier: "urn:uuid:" + jobID,
		Title:      title,
		Author:     opts.Author,
		Language:   language,
		Pages:      pages,
	}

	packagePath := filepath.Join(outputDir, jobID+".epub")
	writer := epub.NewPackageWriter(p.workRoot)
	if err := writer.Write(book, packagePath); err != nil {
		return nil, &StageError{Stage: "packaging", Message: "failed to assemble package", Err: err}
	}

	log.Printf("Job %s: package written to %s (%d/%d pages with audio)",
		jobID, packagePath, metadata.PagesWithAudio, metadata.PagesTotal)
	return &Result{PackagePath: packagePath, Metadata: metadata}, nil
}

// buildPage synthesizes, aligns and assembles one page. Unit failures
// are logged and skipped; the page is still emitted with whatever
// narration it got.
func (p *Pipeline) buildPage(ctx context.Context, tempDir string, structure *provider.PageStructure, skipAudio bool, opts Options, metadata *models.ConversionMetadata) (*epub.Page, error) {
	pageNum := structure.Page
	units := buildUnits(structure)

	heading := ""
	if len(structure.Headers) > 0 {
		heading = structure.Headers[0]
	}

	alignUnits := make([]align.Unit, len(units))
	for i, unit := range units {
		alignUnits[i] = align.Unit{
			ID:   unit.ID,
			Text: unit.Text,
			Type: unit.Type,
			Page: pageNum,
		}

		if skipAudio {
			continue
		}

		result, err := p.synthesizeUnit(ctx, unit.Text, opts.Priority)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &StageError{Stage: "synthesizing", Message: "conversion cancelled", Err: ctx.Err()}
			}
			log.Printf("Skipping audio for unit %s: %v", unit.ID, err)
			metadata.UnitsSkipped++
			continue
		}

		audioPath, err := writeUnitAudio(tempDir, unit.ID, result)
		if err != nil {
			return nil, &StageError{Stage: "synthesizing", Message: "failed to store unit audio", Err: err}
		}
		alignUnits[i].AudioFile = audioPath
		alignUnits[i].Result = result
		metadata.UnitsSynthesized++
	}

	fragments, duration := p.aligner.AlignPage(alignUnits)
	fragsByUnit := groupFragments(fragments)

	epubPage := &epub.Page{
		Number:   pageNum,
		Heading:  heading,
		Duration: duration,
	}
	hasAudio := false
	for i, unit := range units {
		epubUnit := epub.Unit{
			ID:   unit.ID,
			Text: unit.Text,
			Type: unit.Type,
		}
		if alignUnits[i].Result != nil {
			epubUnit.AudioFile = alignUnits[i].AudioFile
			epubUnit.AudioFormat = alignUnits[i].Result.Format
			epubUnit.Fragments = fragsByUnit[unit.ID]
			epubUnit.ClockStart = alignUnits[i].ClockStart
			hasAudio = true
		}
		epubPage.Units = append(epubPage.Units, epubUnit)
	}

	if hasAudio {
		metadata.PagesWithAudio++
		metadata.TotalDuration += duration
	}
	return epubPage, nil
}

// pageUnit is one narratable text unit before synthesis
type pageUnit struct {
	ID   string
	Text string
	Type models.FragmentType
}

// buildUnits flattens a page structure into ordered narration units
func buildUnits(structure *provider.PageStructure) []pageUnit {
	var units []pageUnit
	add := func(text string, fragType models.FragmentType) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		units = append(units, pageUnit{
			ID:   fmt.Sprintf("p%03d-u%03d", structure.Page, len(units)+1),
			Text: text,
			Type: fragType,
		})
	}

	for _, header := range structure.Headers {
		add(header, models.FragmentHeading)
	}
	for _, paragraph := range structure.Paragraphs {
		add(paragraph, models.FragmentParagraph)
	}
	for _, item := range structure.Lists {
		add(item, models.FragmentSentence)
	}
	for _, table := range structure.Tables {
		add(table, models.FragmentParagraph)
	}
	return units
}

// groupFragments indexes aligned word fragments by their unit id
func groupFragments(fragments []models.TextFragment) map[string][]models.TextFragment {
	grouped := make(map[string][]models.TextFragment)
	for _, frag := range fragments {
		if idx := strings.LastIndex(frag.ID, "-w"); idx > 0 {
			unitID := frag.ID[:idx]
			grouped[unitID] = append(grouped[unitID], frag)
		}
	}
	return grouped
}
