package epub

import (
	"fmt"
	"strconv"

	"github.com/beevik/etree"

	"storybind/story"
)

// SeriesLine formats series reference shown on title page.
func SeriesLine(s *story.Series) string {
	return fmt.Sprintf("%s — Book %d", s.Title, s.Volume)
}

// BuildTitlePage generates title page showing story title, author and
// series. Tags are not shown.
func BuildTitlePage(st *story.Story) *etree.Document {
	doc, body := newXHTMLDocument(st.Title, st.Language.String(), titlePageHref)
	body.CreateAttr("class", "title-page")

	section := body.CreateElement("section")
	section.CreateAttr("epub:type", "titlepage")

	h1 := section.CreateElement("h1")
	h1.CreateAttr("class", "title")
	h1.SetText(st.Title)

	if st.Author != "" {
		p := section.CreateElement("p")
		p.CreateAttr("class", "author")
		p.SetText(st.Author)
	}
	if st.Series != nil {
		p := section.CreateElement("p")
		p.CreateAttr("class", "series")
		p.SetText(SeriesLine(st.Series))
	}
	return doc
}

// CoverPageOptions controls how cover image is fitted on the page.
type CoverPageOptions struct {
	// none, keepAR or stretch
	Resize string
	// used when image dimensions are unknown
	Width, Height int
}

// BuildCoverPage generates SVG wrapper page for staged cover image.
func BuildCoverPage(st *story.Story, cover CoverResult, opts CoverPageOptions) *etree.Document {
	doc, body := newXHTMLDocument(labelCover, st.Language.String(), coverPageHref)
	body.CreateAttr("class", "cover-page")

	head := doc.Root().SelectElement("head")
	style := head.CreateElement("style")
	style.CreateAttr("type", "text/css")
	if opts.Resize == "stretch" {
		style.SetText("html, body { margin: 0; padding: 0; width: 100%; height: 100%; } svg { display: block; width: 100%; height: 100%; }")
	} else {
		style.SetText("html, body { margin: 0; padding: 0; width: 100%; height: 100%; } svg { display: block; width: auto; height: 100%; margin: 0 auto; }")
	}

	section := body.CreateElement("section")
	section.CreateAttr("epub:type", "cover")

	svg := section.CreateElement("svg")
	svg.CreateAttr("version", "1.1")
	svg.CreateAttr("xmlns", "http://www.w3.org/2000/svg")
	svg.CreateAttr("xmlns:xlink", "http://www.w3.org/1999/xlink")

	w, h := cover.Width, cover.Height
	if w <= 0 || h <= 0 {
		w, h = opts.Width, opts.Height
	}
	if opts.Resize == "stretch" {
		svg.CreateAttr("viewBox", "0 0 100 100")
		svg.CreateAttr("preserveAspectRatio", "none")
		w, h = 100, 100
	} else {
		svg.CreateAttr("viewBox", fmt.Sprintf("0 0 %d %d", w, h))
		svg.CreateAttr("preserveAspectRatio", "xMidYMid meet")
	}

	img := svg.CreateElement("image")
	img.CreateAttr("x", "0")
	img.CreateAttr("y", "0")
	img.CreateAttr("width", strconv.Itoa(w))
	img.CreateAttr("height", strconv.Itoa(h))
	img.CreateAttr("xlink:href", relHref(coverPageHref, cover.Href()))
	return doc
}

// BuildChapter generates chapter page: label as heading followed by one
// paragraph per text block.
func BuildChapter(st *story.Story, e Entry, paragraphs []string) *etree.Document {
	doc, body := newXHTMLDocument(e.Label, st.Language.String(), e.Href)

	section := body.CreateElement("section")
	section.CreateAttr("epub:type", "chapter")
	section.CreateAttr("id", e.ID)

	section.CreateElement("h2").SetText(e.Label)
	for _, para := range paragraphs {
		section.CreateElement("p").SetText(para)
	}
	return doc
}
