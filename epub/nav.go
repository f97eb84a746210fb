package epub

import (
	"github.com/beevik/etree"

	"storybind/story"
)

// BuildNav generates EPUB 3 navigation document mirroring NCX entries and
// hidden landmarks.
func BuildNav(st *story.Story, plan *Plan) *etree.Document {
	doc, body := newXHTMLDocument(st.Title, st.Language.String(), navName)

	toc := body.CreateElement("nav")
	toc.CreateAttr("epub:type", "toc")
	toc.CreateAttr("id", "toc")
	toc.CreateElement("h1").SetText("Table of Contents")

	ol := toc.CreateElement("ol")
	for _, e := range plan.Entries {
		a := ol.CreateElement("li").CreateElement("a")
		a.CreateAttr("href", e.Href)
		a.SetText(e.Label)
	}

	landmarks := body.CreateElement("nav")
	landmarks.CreateAttr("epub:type", "landmarks")
	landmarks.CreateAttr("id", "landmarks")
	landmarks.CreateAttr("hidden", "hidden")
	landmarks.CreateElement("h2").SetText("Landmarks")

	ol = landmarks.CreateElement("ol")
	addLandmark := func(kind, href, label string) {
		a := ol.CreateElement("li").CreateElement("a")
		a.CreateAttr("epub:type", kind)
		a.CreateAttr("href", href)
		a.SetText(label)
	}
	if plan.HasCover() {
		addLandmark("cover", coverPageHref, labelCover)
	}
	addLandmark("titlepage", titlePageHref, labelTitlePage)
	start := plan.BodyStart()
	addLandmark("bodymatter", start.Href, start.Label)

	return doc
}
