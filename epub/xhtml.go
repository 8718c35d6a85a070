package epub

import (
	"fmt"
	"strings"

	"github.com/RahulByline/pdf-to-epub-sub002/models"
)

// renderPageXHTML builds the content document for one page. Every
// timed word is wrapped in a span whose id matches the fragment id
// referenced by the page's timing file.
func renderPageXHTML(page Page) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">` + "\n")
	b.WriteString("<head>\n")
	title := page.Heading
	if title == "" {
		title = fmt.Sprintf("Page %d", page.Number)
	}
	fmt.Fprintf(&b, "  <title>%s</title>\n", escapeXML(title))
	b.WriteString(`  <link rel="stylesheet" type="text/css" href="../css/style.css"/>` + "\n")
	b.WriteString("</head>\n<body>\n")

	if page.Heading != "" {
		fmt.Fprintf(&b, "  <h2>%s</h2>\n", escapeXML(page.Heading))
	}

	for _, unit := range page.Units {
		tag := "p"
		if unit.Type == models.FragmentHeading {
			tag = "h3"
		}
		fmt.Fprintf(&b, "  <%s id=%q>", tag, unit.ID)
		if len(unit.Fragments) > 0 {
			for i, frag := range unit.Fragments {
				if i > 0 {
					b.WriteString(" ")
				}
				fmt.Fprintf(&b, `<span class="word" id=%q>%s</span>`, frag.ID, escapeXML(frag.Text))
			}
		} else {
			b.WriteString(escapeXML(unit.Text))
		}
		fmt.Fprintf(&b, "</%s>\n", tag)
	}

	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// renderNavXHTML builds the EPUB 3 navigation document
func renderNavXHTML(book Book) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">` + "\n")
	b.WriteString("<head>\n")
	fmt.Fprintf(&b, "  <title>%s</title>\n", escapeXML(book.Title))
	b.WriteString("</head>\n<body>\n")
	b.WriteString(`  <nav epub:type="toc" id="toc">` + "\n")
	b.WriteString("    <ol>\n")
	for _, page := range book.Pages {
		label := page.Heading
		if label == "" {
			label = fmt.Sprintf("Page %d", page.Number)
		}
		fmt.Fprintf(&b, "      <li><a href=\"text/%s\">%s</a></li>\n", pageFileName(page.Number), escapeXML(label))
	}
	b.WriteString("    </ol>\n  </nav>\n</body>\n</html>\n")
	return b.String()
}

// escapeXML escapes text content for embedding in XML documents
func escapeXML(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}
