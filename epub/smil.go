package epub

import (
	"encoding/xml"
	"fmt"

	"github.com/RahulByline/pdf-to-epub-sub002/align"
)

// smilDocument is the media-overlay timing file for one page
type smilDocument struct {
	XMLName xml.Name `xml:"smil"`
	XMLNS   string   `xml:"xmlns,attr"`
	EPUBNS  string   `xml:"xmlns:epub,attr"`
	Version string   `xml:"version,attr"`
	Body    smilBody `xml:"body"`
}

type smilBody struct {
	Seqs []smilSeq `xml:"seq"`
}

type smilSeq struct {
	ID       string    `xml:"id,attr"`
	TextRef  string    `xml:"epub:textref,attr"`
	EPUBType string    `xml:"epub:type,attr,omitempty"`
	Pars     []smilPar `xml:"par"`
}

type smilPar struct {
	ID    string    `xml:"id,attr"`
	Text  smilText  `xml:"text"`
	Audio smilAudio `xml:"audio"`
}

type smilText struct {
	Src string `xml:"src,attr"`
}

type smilAudio struct {
	Src       string `xml:"src,attr"`
	ClipBegin string `xml:"clipBegin,attr"`
	ClipEnd   string `xml:"clipEnd,attr"`
}

// renderPageSMIL builds the timing file for one page. Text references
// use the exact fragment ids written into the page's content document;
// clip offsets are relative to each unit's own audio asset.
func renderPageSMIL(page Page) ([]byte, error) {
	doc := smilDocument{
		XMLNS:   "http://www.w3.org/ns/SMIL",
		EPUBNS:  "http://www.idpf.org/2007/ops",
		Version: "3.0",
	}

	textFile := pageFileName(page.Number)
	for _, unit := range page.Units {
		if unit.AudioFile == "" || len(unit.Fragments) == 0 {
			continue
		}

		audioSrc := "../audio/" + audioFileName(page.Number, unit.ID, unit.AudioFormat)
		// The clock base, not the first fragment's start: exact timings
		// may begin with lead-in silence.
		unitStart := unit.ClockStart

		seq := smilSeq{
			ID:      "seq-" + unit.ID,
			TextRef: fmt.Sprintf("../text/%s#%s", textFile, unit.ID),
		}
		for _, frag := range unit.Fragments {
			seq.Pars = append(seq.Pars, smilPar{
				ID:   "par-" + frag.ID,
				Text: smilText{Src: fmt.Sprintf("../text/%s#%s", textFile, frag.ID)},
				Audio: smilAudio{
					Src:       audioSrc,
					ClipBegin: align.FormatClock(frag.StartTime - unitStart),
					ClipEnd:   align.FormatClock(frag.EndTime - unitStart),
				},
			})
		}
		doc.Body.Seqs = append(doc.Body.Seqs, seq)
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}
