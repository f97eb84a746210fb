package epub

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"storybind/config"
	"storybind/story"
)

var testTime = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func setupTest(t *testing.T) (*zap.Logger, *config.DocumentConfig) {
	t.Helper()
	log := zaptest.NewLogger(t)
	cfg, err := config.LoadConfiguration("")
	if err != nil {
		t.Fatalf("Failed to load default configuration: %v", err)
	}
	cfg.Document.Fetch.Delay = time.Millisecond
	cfg.Document.Fetch.Timeout = 5 * time.Second
	return log, &cfg.Document
}

// writeChapters creates chapter files named after labels in dir.
func writeChapters(t *testing.T, dir string, chapters map[string]string, order ...string) []story.ChapterSource {
	t.Helper()
	var sources []story.ChapterSource
	for _, label := range order {
		p := filepath.Join(dir, label+".txt")
		if err := os.WriteFile(p, []byte(chapters[label]), 0644); err != nil {
			t.Fatal(err)
		}
		sources = append(sources, story.ChapterSource{Key: label, Path: p})
	}
	return sources
}

func newTestStory(t *testing.T, title string, options ...story.Option) *story.Story {
	t.Helper()
	st, err := story.New(title, "en", "Jane Doe", append([]story.Option{story.WithID("urn:uuid:test-book")}, options...)...)
	if err != nil {
		t.Fatalf("story.New() error = %v", err)
	}
	return st
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func readDoc(t *testing.T, name string) *etree.Document {
	t.Helper()
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(name); err != nil {
		t.Fatalf("unable to parse %s: %v", name, err)
	}
	return doc
}

func attrs(elems []*etree.Element, name string) []string {
	result := make([]string, 0, len(elems))
	for _, e := range elems {
		result = append(result, e.SelectAttrValue(name, ""))
	}
	return result
}

func texts(elems []*etree.Element) []string {
	result := make([]string, 0, len(elems))
	for _, e := range elems {
		result = append(result, e.Text())
	}
	return result
}

func equalStrings(t *testing.T, what string, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("%s = %q, want %q", what, got, want)
		return
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("%s = %q, want %q", what, got, want)
			return
		}
	}
}
