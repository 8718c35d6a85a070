package epub

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/RahulByline/pdf-to-epub-sub002/align"
)

// ManifestItem is one file entry of the package manifest
type ManifestItem struct {
	ID           string `xml:"id,attr"`
	Href         string `xml:"href,attr"`
	MediaType    string `xml:"media-type,attr"`
	Properties   string `xml:"properties,attr,omitempty"`
	MediaOverlay string `xml:"media-overlay,attr,omitempty"`
}

// SpineItem is one reading-order reference into the manifest
type SpineItem struct {
	IDRef string `xml:"idref,attr"`
}

type opfMetadata struct {
	XMLNSDC    string    `xml:"xmlns:dc,attr"`
	Identifier opfIdent  `xml:"dc:identifier"`
	Title      string    `xml:"dc:title"`
	Language   string    `xml:"dc:language"`
	Creator    string    `xml:"dc:creator,omitempty"`
	Metas      []opfMeta `xml:"meta"`
}

type opfIdent struct {
	ID    string `xml:"id,attr"`
	Value string `xml:",chardata"`
}

type opfMeta struct {
	Property string `xml:"property,attr,omitempty"`
	Refines  string `xml:"refines,attr,omitempty"`
	Value    string `xml:",chardata"`
}

type opfManifest struct {
	Items []ManifestItem `xml:"item"`
}

type opfSpine struct {
	Items []SpineItem `xml:"itemref"`
}

type opfPackage struct {
	XMLName          xml.Name    `xml:"package"`
	XMLNS            string      `xml:"xmlns,attr"`
	Version          string      `xml:"version,attr"`
	UniqueIdentifier string      `xml:"unique-identifier,attr"`
	Metadata         opfMetadata `xml:"metadata"`
	Manifest         opfManifest `xml:"manifest"`
	Spine            opfSpine    `xml:"spine"`
}

// buildManifest assembles manifest and spine entries for the book
func buildManifest(book Book) ([]ManifestItem, []SpineItem) {
	items := []ManifestItem{
		{ID: "nav", Href: "nav.xhtml", MediaType: "application/xhtml+xml", Properties: "nav"},
		{ID: "css", Href: "css/style.css", MediaType: "text/css"},
	}
	var spine []SpineItem

	for _, page := range book.Pages {
		pageID := pageItemID(page.Number)
		item := ManifestItem{
			ID:        pageID,
			Href:      "text/" + pageFileName(page.Number),
			MediaType: "application/xhtml+xml",
		}
		if pageHasAudio(page) {
			item.MediaOverlay = pageID + "-smil"
			items = append(items, ManifestItem{
				ID:        pageID + "-smil",
				Href:      "smil/" + smilFileName(page.Number),
				MediaType: "application/smil+xml",
			})
		}
		items = append(items, item)
		spine = append(spine, SpineItem{IDRef: pageID})

		for _, unit := range page.Units {
			if unit.AudioFile == "" {
				continue
			}
			items = append(items, ManifestItem{
				ID:        "audio-" + unit.ID,
				Href:      "audio/" + audioFileName(page.Number, unit.ID, unit.AudioFormat),
				MediaType: mediaTypeFor(unit.AudioFormat),
			})
		}
	}
	return items, spine
}

// validateManifest enforces the package invariants: every spine entry
// resolves to a manifest item, and every media-overlay reference
// targets an existing manifest item.
func validateManifest(items []ManifestItem, spine []SpineItem) error {
	byID := make(map[string]ManifestItem, len(items))
	for _, item := range items {
		if _, dup := byID[item.ID]; dup {
			return fmt.Errorf("duplicate manifest id %q", item.ID)
		}
		byID[item.ID] = item
	}
	for _, ref := range spine {
		if _, ok := byID[ref.IDRef]; !ok {
			return fmt.Errorf("spine references unknown manifest id %q", ref.IDRef)
		}
	}
	for _, item := range items {
		if item.MediaOverlay == "" {
			continue
		}
		if _, ok := byID[item.MediaOverlay]; !ok {
			return fmt.Errorf("item %q references unknown overlay %q", item.ID, item.MediaOverlay)
		}
	}
	return nil
}

// renderOPF builds and validates the package document
func renderOPF(book Book) ([]byte, error) {
	items, spine := buildManifest(book)
	if err := validateManifest(items, spine); err != nil {
		return nil, err
	}

	metas := []opfMeta{
		{Property: "dcterms:modified", Value: time.Now().UTC().Format("2006-01-02T15:04:05Z")},
	}
	total := 0.0
	for _, page := range book.Pages {
		if !pageHasAudio(page) {
			continue
		}
		total += page.Duration
		metas = append(metas, opfMeta{
			Property: "media:duration",
			Refines:  "#" + pageItemID(page.Number) + "-smil",
			Value:    align.FormatClock(page.Duration),
		})
	}
	if total > 0 {
		metas = append(metas, opfMeta{Property: "media:duration", Value: align.FormatClock(total)})
		metas = append(metas, opfMeta{Property: "media:active-class", Value: "-epub-media-overlay-active"})
	}

	doc := opfPackage{
		XMLNS:            "http://www.idpf.org/2007/opf",
		Version:          "3.0",
		UniqueIdentifier: "pub-id",
		Metadata: opfMetadata{
			XMLNSDC:    "http://purl.org/dc/elements/1.1/",
			Identifier: opfIdent{ID: "pub-id", Value: book.Identifier},
			Title:      book.Title,
			Language:   book.Language,
			Creator:    book.Author,
			Metas:      metas,
		},
		Manifest: opfManifest{Items: items},
		Spine:    opfSpine{Items: spine},
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}
