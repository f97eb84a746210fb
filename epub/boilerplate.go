package epub

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/beevik/etree"
	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

//go:embed default.css
var defaultStylesheet []byte

// DefaultStylesheet returns copy of built-in stylesheet.
func DefaultStylesheet() []byte {
	return bytes.Clone(defaultStylesheet)
}

// LoadStylesheet returns built-in stylesheet when path is empty, otherwise
// reads file at path and makes sure it is parsable CSS.
func LoadStylesheet(name string, log *zap.Logger) ([]byte, error) {
	if name == "" {
		return DefaultStylesheet(), nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("unable to read stylesheet: %w", err)
	}
	rules, err := checkStylesheet(data)
	if err != nil {
		return nil, fmt.Errorf("stylesheet %s: %w", name, err)
	}
	log.Debug("Using custom stylesheet", zap.String("path", name), zap.Int("rules", rules))
	return data, nil
}

// checkStylesheet runs data through CSS parser and returns number of
// qualified rules found.
func checkStylesheet(data []byte) (int, error) {
	p := css.NewParser(parse.NewInput(bytes.NewReader(data)), false)
	rules := 0
	for {
		gt, _, _ := p.Next()
		switch gt {
		case css.ErrorGrammar:
			if err := p.Err(); err != nil && !errors.Is(err, io.EOF) {
				return rules, fmt.Errorf("invalid CSS: %w", err)
			}
			return rules, nil
		case css.BeginRulesetGrammar, css.QualifiedRuleGrammar:
			rules++
		}
	}
}

// writeBoilerplate lays out static part of the package: mimetype, container
// descriptor and stylesheet.
func writeBoilerplate(storyDir string, stylesheet []byte) error {
	if err := writeData(filepath.Join(storyDir, mimetypeFile), []byte(mimetypeContent)); err != nil {
		return fmt.Errorf("unable to write mimetype: %w", err)
	}
	if err := writeXML(filepath.Join(storyDir, filepath.FromSlash(containerFile)), buildContainer()); err != nil {
		return fmt.Errorf("unable to write container: %w", err)
	}
	if err := writeData(contentPath(storyDir, cssHref), stylesheet); err != nil {
		return fmt.Errorf("unable to write stylesheet: %w", err)
	}
	return nil
}

func buildContainer() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	container := doc.CreateElement("container")
	container.CreateAttr("version", "1.0")
	container.CreateAttr("xmlns", "urn:oasis:names:tc:opendocument:xmlns:container")

	rootfile := container.CreateElement("rootfiles").CreateElement("rootfile")
	rootfile.CreateAttr("full-path", path.Join(contentDir, opfName))
	rootfile.CreateAttr("media-type", mediaOPF)
	return doc
}

// contentPath converts href relative to content directory into file path.
func contentPath(storyDir, href string) string {
	return filepath.Join(storyDir, contentDir, filepath.FromSlash(href))
}
