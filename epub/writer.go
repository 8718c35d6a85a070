package epub

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/RahulByline/pdf-to-epub-sub002/models"
)

const (
	// MimetypeFileName must be the first, uncompressed archive entry
	MimetypeFileName = "mimetype"
	// MimetypeContent identifies the container format
	MimetypeContent = "application/epub+zip"
)

// Unit is one narrated text unit of a page
type Unit struct {
	ID   string
	Text string
	Type models.FragmentType
	// AudioFile is the on-disk path of the synthesized audio; empty
	// when synthesis for this unit was skipped.
	AudioFile   string
	AudioFormat string
	// Fragments are the timed words of this unit on the page clock
	Fragments []models.TextFragment
	// ClockStart is the page-clock position where this unit's audio
	// begins; fragment times minus ClockStart are offsets into the
	// unit's audio file.
	ClockStart float64
}

// Page is one content document of the package
type Page struct {
	Number   int
	Heading  string
	Units    []Unit
	Duration float64
}

// Book is the complete input to the package writer
type Book struct {
	Identifier string
	Title      string
	Author     string
	Language   string
	Pages      []Page
}

// PackageWriter assembles the EPUB 3 container: directory layout,
// per-page content and timing files, manifest and spine, and the
// final archive with the mimetype entry first and stored uncompressed.
type PackageWriter struct {
	workRoot string
}

// NewPackageWriter creates a writer using workRoot for scratch space
func NewPackageWriter(workRoot string) *PackageWriter {
	return &PackageWriter{workRoot: workRoot}
}

// Write builds the package and archives it at outputPath. The working
// directory is removed on success and failure.
func (w *PackageWriter) Write(book Book, outputPath string) (err error) {
	if len(book.Pages) == 0 {
		return fmt.Errorf("package must contain at least one page")
	}
	if book.Language == "" {
		book.Language = "en"
	}

	workDir, err := os.MkdirTemp(w.workRoot, "epub-build-*")
	if err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			log.Printf("Failed to clean package working directory %s: %v", workDir, rmErr)
		}
	}()

	if err := w.buildLayout(workDir, book); err != nil {
		return err
	}
	if err := w.archive(workDir, outputPath); err != nil {
		// Never leave a half-packaged archive behind.
		os.Remove(outputPath)
		return err
	}
	return nil
}

// buildLayout writes every container file into the working directory
func (w *PackageWriter) buildLayout(workDir string, book Book) error {
	for _, dir := range []string{
		"META-INF",
		filepath.Join("OEBPS", "text"),
		filepath.Join("OEBPS", "audio"),
		filepath.Join("OEBPS", "smil"),
		filepath.Join("OEBPS", "css"),
	} {
		if err := os.MkdirAll(filepath.Join(workDir, dir), 0755); err != nil {
			return fmt.Errorf("failed to create layout directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(filepath.Join(workDir, MimetypeFileName), []byte(MimetypeContent), 0644); err != nil {
		return fmt.Errorf("failed to write mimetype: %w", err)
	}
	if err := os.WriteFile(filepath.Join(workDir, "META-INF", "container.xml"), []byte(containerXML), 0644); err != nil {
		return fmt.Errorf("failed to write container.xml: %w", err)
	}
	if err := os.WriteFile(filepath.Join(workDir, "OEBPS", "css", "style.css"), []byte(styleCSS), 0644); err != nil {
		return fmt.Errorf("failed to write stylesheet: %w", err)
	}

	for _, page := range book.Pages {
		if err := os.WriteFile(filepath.Join(workDir, "OEBPS", "text", pageFileName(page.Number)), []byte(renderPageXHTML(page)), 0644); err != nil {
			return fmt.Errorf("failed to write page %d content: %w", page.Number, err)
		}
		if pageHasAudio(page) {
			smil, err := renderPageSMIL(page)
			if err != nil {
				return fmt.Errorf("failed to render page %d overlay: %w", page.Number, err)
			}
			if err := os.WriteFile(filepath.Join(workDir, "OEBPS", "smil", smilFileName(page.Number)), smil, 0644); err != nil {
				return fmt.Errorf("failed to write page %d overlay: %w", page.Number, err)
			}
		}
		for _, unit := range page.Units {
			if unit.AudioFile == "" {
				continue
			}
			dst := filepath.Join(workDir, "OEBPS", "audio", audioFileName(page.Number, unit.ID, unit.AudioFormat))
			if err := copyFile(unit.AudioFile, dst); err != nil {
				return fmt.Errorf("failed to copy audio for unit %s: %w", unit.ID, err)
			}
		}
	}

	opf, err := renderOPF(book)
	if err != nil {
		return fmt.Errorf("failed to render package manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(workDir, "OEBPS", "content.opf"), opf, 0644); err != nil {
		return fmt.Errorf("failed to write package manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(workDir, "OEBPS", "nav.xhtml"), []byte(renderNavXHTML(book)), 0644); err != nil {
		return fmt.Errorf("failed to write navigation document: %w", err)
	}
	return nil
}

// archive zips the working directory. The mimetype entry goes first
// and is stored without compression; every other entry is deflated in
// sorted path order so output bytes are reproducible.
func (w *PackageWriter) archive(workDir, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	mimeHeader := &zip.FileHeader{Name: MimetypeFileName, Method: zip.Store}
	mw, err := zw.CreateHeader(mimeHeader)
	if err != nil {
		return fmt.Errorf("failed to create mimetype entry: %w", err)
	}
	if _, err := mw.Write([]byte(MimetypeContent)); err != nil {
		return fmt.Errorf("failed to write mimetype entry: %w", err)
	}

	var entries []string
	err = filepath.Walk(workDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(workDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == MimetypeFileName {
			return nil
		}
		entries = append(entries, rel)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk working directory: %w", err)
	}
	sort.Strings(entries)

	for _, rel := range entries {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: rel, Method: zip.Deflate})
		if err != nil {
			return fmt.Errorf("failed to create entry %s: %w", rel, err)
		}
		src, err := os.Open(filepath.Join(workDir, filepath.FromSlash(rel)))
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", rel, err)
		}
		_, err = io.Copy(fw, src)
		src.Close()
		if err != nil {
			return fmt.Errorf("failed to write entry %s: %w", rel, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

// pageHasAudio reports whether any unit of the page carries narration
func pageHasAudio(page Page) bool {
	for _, unit := range page.Units {
		if unit.AudioFile != "" && len(unit.Fragments) > 0 {
			return true
		}
	}
	return false
}

// pageFileName names the content document for a page
func pageFileName(page int) string {
	return fmt.Sprintf("page_%03d.xhtml", page)
}

// smilFileName names the timing file for a page
func smilFileName(page int) string {
	return fmt.Sprintf("page_%03d.smil", page)
}

// audioFileName names the packaged audio asset for one unit
func audioFileName(page int, unitID, format string) string {
	if format == "" {
		format = "wav"
	}
	return fmt.Sprintf("page_%03d_%s.%s", page, unitID, format)
}

// pageItemID builds the manifest identifier for a page document
func pageItemID(page int) string {
	return fmt.Sprintf("page%03d", page)
}

// copyFile copies src to dst, creating dst
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`

const styleCSS = `body { font-family: serif; line-height: 1.5; margin: 5%; }
h1, h2 { font-family: sans-serif; }
.-epub-media-overlay-active { background-color: #ffeb99; }
span.word { -epub-speech-synthesis: none; }
`

// mediaTypeFor maps an audio format to its manifest media type
func mediaTypeFor(format string) string {
	switch strings.ToLower(format) {
	case "mp3":
		return "audio/mpeg"
	case "ogg":
		return "audio/ogg"
	default:
		return "audio/wav"
	}
}
