package epub

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/text/unicode/norm"

	"storybind/story"
)

// PostProcess rewrites written chapter document in place. Invalid UTF-8 and
// control characters (other than tab and line breaks) are removed, text is
// normalized to NFC and document must parse as well-formed XML. Original
// file is left untouched on any failure.
func PostProcess(name string) error {
	data, err := os.ReadFile(name)
	if err != nil {
		return fmt.Errorf("unable to read %s: %w", filepath.Base(name), err)
	}

	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = false
	if err := doc.ReadFromString(cleanText(data)); err != nil {
		return fmt.Errorf("%s is not well-formed: %w", filepath.Base(name), err)
	}
	if doc.Root() == nil {
		return fmt.Errorf("%s has no root element", filepath.Base(name))
	}
	doc.Indent(2)

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return fmt.Errorf("unable to serialize %s: %w", filepath.Base(name), err)
	}
	return replaceFile(name, buf.Bytes())
}

func cleanText(data []byte) string {
	return norm.NFC.String(story.StripControls(strings.ToValidUTF8(string(data), "")))
}

// replaceFile writes data to a sibling temporary file and renames it over
// name.
func replaceFile(name string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), name); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
