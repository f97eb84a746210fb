package epub

import (
	"strconv"

	"github.com/beevik/etree"

	"storybind/story"
)

// BuildNCX generates legacy table of contents with one navPoint per plan
// entry, playOrder following plan order.
func BuildNCX(st *story.Story, plan *Plan) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	ncx := doc.CreateElement("ncx")
	ncx.CreateAttr("xmlns", "http://www.daisy.org/z3986/2005/ncx/")
	ncx.CreateAttr("version", "2005-1")
	ncx.CreateAttr("xml:lang", st.Language.String())

	head := ncx.CreateElement("head")
	for _, m := range [][2]string{
		{"dtb:uid", st.ID},
		{"dtb:depth", "1"},
		{"dtb:totalPageCount", "0"},
		{"dtb:maxPageNumber", "0"},
	} {
		meta := head.CreateElement("meta")
		meta.CreateAttr("name", m[0])
		meta.CreateAttr("content", m[1])
	}

	ncx.CreateElement("docTitle").CreateElement("text").SetText(st.Title)
	if st.Author != "" {
		ncx.CreateElement("docAuthor").CreateElement("text").SetText(st.Author)
	}

	navMap := ncx.CreateElement("navMap")
	for i, e := range plan.Entries {
		navPoint := navMap.CreateElement("navPoint")
		navPoint.CreateAttr("id", "navpoint-"+e.ID)
		navPoint.CreateAttr("playOrder", strconv.Itoa(i+1))

		navPoint.CreateElement("navLabel").CreateElement("text").SetText(e.Label)

		content := navPoint.CreateElement("content")
		content.CreateAttr("src", e.Href)
	}
	return doc
}
