// Package epub assembles story into EPUB 3 package (with EPUB 2 NCX for
// older readers) and optionally seals it into an archive.
package epub

import (
	"fmt"
	"mime"
	"path"
	"strings"
)

// Package layout. Paths are relative to the story directory, hrefs inside
// documents are relative to contentDir.
const (
	mimetypeContent = "application/epub+zip"

	mimetypeFile  = "mimetype"
	containerFile = "META-INF/container.xml"
	contentDir    = "EPUB"

	opfName = "content.opf"
	ncxName = "toc.ncx"
	navName = "nav.xhtml"
	cssHref = "styles/stylesheet.css"

	textDir   = "text"
	imagesDir = "images"

	titlePageHref = textDir + "/title_page.xhtml"
	coverPageHref = textDir + "/cover.xhtml"
)

// Manifest item identifiers.
const (
	idTitlePage  = "title_page"
	idCoverPage  = "cover"
	idCoverImage = "cover-image"
	idNav        = "nav"
	idNCX        = "ncx"
	idCSS        = "css"
)

// Fixed navigation labels.
const (
	labelTitlePage = "Title Page"
	labelCover     = "Cover"
)

const (
	mediaXHTML = "application/xhtml+xml"
	mediaNCX   = "application/x-dtbncx+xml"
	mediaCSS   = "text/css"
	mediaOPF   = "application/oebps-package+xml"
)

// chapterNumber maps 1-based reading position to the number used in chapter
// file name and id. Numbering starts from 2, slot 1 belongs to cover page in
// the original layout and stays reserved even when there is no cover.
func chapterNumber(seq int) int {
	return seq + 1
}

func chapterID(seq int) string {
	return fmt.Sprintf("ch%04d", chapterNumber(seq))
}

func chapterHref(seq int) string {
	return textDir + "/" + chapterID(seq) + ".xhtml"
}

func coverImageHref(ext string) string {
	return imagesDir + "/cover" + ext
}

// relHref returns href of target as seen from document at from, both
// relative to contentDir.
func relHref(from, target string) string {
	dir := path.Dir(from)
	if dir == "." {
		return target
	}
	prefix := strings.Repeat("../", strings.Count(dir, "/")+1)
	return prefix + target
}

var mediaTypes = map[string]string{
	".xhtml": mediaXHTML,
	".html":  mediaXHTML,
	".ncx":   mediaNCX,
	".css":   mediaCSS,
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".png":   "image/png",
	".gif":   "image/gif",
	".webp":  "image/webp",
	".svg":   "image/svg+xml",
}

// mediaTypeByExt returns media type for manifest item by its file extension.
func mediaTypeByExt(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if mt, ok := mediaTypes[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		// drop parameters like charset
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = strings.TrimSpace(mt[:i])
		}
		return mt
	}
	return "application/octet-stream"
}
