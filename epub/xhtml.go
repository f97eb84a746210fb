package epub

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/beevik/etree"
)

const (
	nsXHTML = "http://www.w3.org/1999/xhtml"
	nsOPS   = "http://www.idpf.org/2007/ops"
)

// newXHTMLDocument creates page skeleton for document located at href
// (relative to content directory) and returns document and its body.
func newXHTMLDocument(title, lang, href string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.CreateDirective("DOCTYPE html")

	html := doc.CreateElement("html")
	html.CreateAttr("xmlns", nsXHTML)
	html.CreateAttr("xmlns:epub", nsOPS)
	if lang != "" {
		html.CreateAttr("xml:lang", lang)
		html.CreateAttr("lang", lang)
	}

	head := html.CreateElement("head")

	meta := head.CreateElement("meta")
	meta.CreateAttr("http-equiv", "Content-Type")
	meta.CreateAttr("content", "text/html; charset=utf-8")

	titleElem := head.CreateElement("title")
	titleElem.SetText(title)

	link := head.CreateElement("link")
	link.CreateAttr("rel", "stylesheet")
	link.CreateAttr("type", "text/css")
	link.CreateAttr("href", relHref(href, cssHref))

	return doc, html.CreateElement("body")
}

// writeXML serializes doc into file at name creating directories as needed.
func writeXML(name string, doc *etree.Document) error {
	doc.Indent(2)
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return fmt.Errorf("unable to serialize %s: %w", filepath.Base(name), err)
	}
	return writeData(name, buf.Bytes())
}

func writeData(name string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return err
	}
	return os.WriteFile(name, data, 0644)
}
