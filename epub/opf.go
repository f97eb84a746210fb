package epub

import (
	"strconv"
	"time"

	"github.com/beevik/etree"

	"storybind/story"
)

// BuildOPF generates package document. Manifest lists navigation documents,
// stylesheet, every page of the plan and cover image; spine follows plan
// order exactly.
func BuildOPF(st *story.Story, plan *Plan, cover CoverResult, modified time.Time) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	pkg := doc.CreateElement("package")
	pkg.CreateAttr("xmlns", "http://www.idpf.org/2007/opf")
	pkg.CreateAttr("version", "3.0")
	pkg.CreateAttr("unique-identifier", "BookId")
	pkg.CreateAttr("xml:lang", st.Language.String())

	writeMetadata(pkg.CreateElement("metadata"), st, plan, modified)

	manifest := pkg.CreateElement("manifest")
	addItem(manifest, idNav, navName, mediaXHTML, "nav")
	addItem(manifest, idNCX, ncxName, mediaNCX, "")
	addItem(manifest, idCSS, cssHref, mediaCSS, "")
	for _, e := range plan.Entries {
		switch e.Kind {
		case EntryCover:
			addItem(manifest, e.ID, e.Href, mediaXHTML, "svg")
			addItem(manifest, idCoverImage, cover.Href(), cover.MediaType, "cover-image")
		default:
			addItem(manifest, e.ID, e.Href, mediaTypeByExt(e.Href), "")
		}
	}

	spine := pkg.CreateElement("spine")
	spine.CreateAttr("toc", idNCX)
	for _, e := range plan.Entries {
		itemref := spine.CreateElement("itemref")
		itemref.CreateAttr("idref", e.ID)
	}
	return doc
}

func writeMetadata(metadata *etree.Element, st *story.Story, plan *Plan, modified time.Time) {
	metadata.CreateAttr("xmlns:dc", "http://purl.org/dc/elements/1.1/")
	metadata.CreateAttr("xmlns:opf", "http://www.idpf.org/2007/opf")

	dcIdentifier := metadata.CreateElement("dc:identifier")
	dcIdentifier.CreateAttr("id", "BookId")
	dcIdentifier.SetText(st.ID)

	metadata.CreateElement("dc:title").SetText(st.Title)
	metadata.CreateElement("dc:language").SetText(st.Language.String())

	if st.Author != "" {
		dcCreator := metadata.CreateElement("dc:creator")
		dcCreator.CreateAttr("id", "creator")
		dcCreator.SetText(st.Author)

		role := metadata.CreateElement("meta")
		role.CreateAttr("refines", "#creator")
		role.CreateAttr("property", "role")
		role.CreateAttr("scheme", "marc:relators")
		role.SetText("aut")
	}

	for _, tag := range st.Tags {
		metadata.CreateElement("dc:subject").SetText(tag)
	}

	if st.Series != nil {
		addMeta(metadata, "calibre:series", st.Series.Title)
		addMeta(metadata, "calibre:series_index", strconv.Itoa(st.Series.Volume))
	}

	if plan.HasCover() {
		// EPUB 2 readers look for this
		addMeta(metadata, "cover", idCoverImage)
	}

	mod := metadata.CreateElement("meta")
	mod.CreateAttr("property", "dcterms:modified")
	mod.SetText(modified.UTC().Format("2006-01-02T15:04:05Z"))
}

func addMeta(parent *etree.Element, name, content string) {
	meta := parent.CreateElement("meta")
	meta.CreateAttr("name", name)
	meta.CreateAttr("content", content)
}

func addItem(manifest *etree.Element, id, href, mediaType, properties string) {
	item := manifest.CreateElement("item")
	item.CreateAttr("id", id)
	item.CreateAttr("href", href)
	item.CreateAttr("media-type", mediaType)
	if properties != "" {
		item.CreateAttr("properties", properties)
	}
}
