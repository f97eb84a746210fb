package story

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/maruel/natural"
	yaml "gopkg.in/yaml.v3"
)

// Manifest is the YAML description of an already retrieved story: metadata
// plus chapter text either as files or as inline text blocks.
type Manifest struct {
	ID          string            `yaml:"id,omitempty"`
	Title       string            `yaml:"title"`
	Author      string            `yaml:"author"`
	Language    string            `yaml:"language"`
	Series      *ManifestSeries   `yaml:"series,omitempty"`
	Tags        []string          `yaml:"tags,omitempty"`
	Cover       string            `yaml:"cover,omitempty"`
	Chapters    []ManifestChapter `yaml:"chapters,omitempty"`
	ChaptersDir string            `yaml:"chapters_dir,omitempty"`

	// directory relative paths are resolved against
	base string
}

type ManifestSeries struct {
	Title  string `yaml:"title"`
	Volume int    `yaml:"volume"`
}

// ManifestChapter is either File or Title with Text blocks.
type ManifestChapter struct {
	File  string   `yaml:"file,omitempty"`
	Title string   `yaml:"title,omitempty"`
	Text  []string `yaml:"text,omitempty"`
}

// LoadManifest reads and decodes story manifest. Unknown fields are errors.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read story manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	m.base = abs
	return m, nil
}

// ParseManifest decodes manifest data; relative paths are resolved against
// current directory.
func ParseManifest(data []byte) (*Manifest, error) {
	m := &Manifest{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("failed to decode story manifest: %w", err)
	}
	return m, nil
}

// Story converts manifest into validated Story. Chapter files listed
// explicitly come first, then files found in ChaptersDir in natural order.
func (m *Manifest) Story() (*Story, error) {
	chapters, err := m.chapterSources()
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithTags(m.Tags...),
		WithCover(m.coverSource()),
		WithChapters(chapters...),
	}
	if m.ID != "" {
		opts = append(opts, WithID(m.ID))
	}
	if m.Series != nil {
		opts = append(opts, WithSeries(m.Series.Title, m.Series.Volume))
	}
	return New(m.Title, m.Language, m.Author, opts...)
}

func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || m.base == "" {
		return p
	}
	return filepath.Join(m.base, p)
}

func (m *Manifest) coverSource() CoverSource {
	c := ParseCoverSource(m.Cover)
	if c.Kind == CoverFile {
		c.Location = m.resolve(c.Location)
	}
	return c
}

func (m *Manifest) chapterSources() ([]ChapterSource, error) {
	var result []ChapterSource
	for i, ch := range m.Chapters {
		switch {
		case ch.File != "" && len(ch.Text) > 0:
			return nil, fmt.Errorf("chapter %d: both file and text specified", i+1)
		case ch.File != "":
			key := ch.Title
			if key == "" {
				key = ch.File
			}
			result = append(result, ChapterSource{Key: key, Path: m.resolve(ch.File)})
		case strings.TrimSpace(ch.Title) != "":
			result = append(result, ChapterSource{Key: ch.Title, Blocks: slices.Clone(ch.Text)})
		default:
			return nil, fmt.Errorf("chapter %d: neither file nor title specified", i+1)
		}
	}

	if m.ChaptersDir == "" {
		return result, nil
	}
	files, err := ListChapterFiles(m.resolve(m.ChaptersDir))
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		result = append(result, ChapterSource{Key: filepath.Base(f), Path: f})
	}
	return result, nil
}

// ListChapterFiles returns all regular *.txt files in dir sorted in natural
// order, so "ch2.txt" comes before "ch10.txt".
func ListChapterFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to list chapters directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return nil, errors.New("no chapter files found in " + dir)
	}
	slices.SortFunc(names, func(a, b string) int {
		switch {
		case natural.Less(a, b):
			return -1
		case natural.Less(b, a):
			return 1
		}
		return 0
	})
	for i := range names {
		names[i] = filepath.Join(dir, names[i])
	}
	return names, nil
}
