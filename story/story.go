// Package story defines the immutable input of a single assembly run: book
// metadata and the ordered list of chapter sources.
package story

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

var (
	ErrEmptyTitle    = errors.New("story title is empty")
	ErrInvalidVolume = errors.New("series volume must be 1 or greater")
)

// DefaultLanguage is used when the language tag is missing or unparsable.
var DefaultLanguage = language.English

// Series is a calibre style series reference.
type Series struct {
	Title  string
	Volume int
}

// ChapterSource is one entry of the reading order. Key is whatever the
// content source used to identify the chapter, Path points to the text file.
// Chapters delivered as text blocks have empty Path until staged.
type ChapterSource struct {
	Key    string
	Path   string
	Blocks []string
}

// Chapter is a chapter with its position in the reading order resolved.
type Chapter struct {
	// 1-based position in reading order
	Seq    int
	Label  string
	Source string
}

// Story is the input of the assembler. Build it with New, fields are not
// supposed to be changed afterwards.
type Story struct {
	ID       string
	Title    string
	Language language.Tag
	Author   string
	Series   *Series
	Tags     []string
	Cover    CoverSource
	Chapters []ChapterSource
}

// Option customizes Story construction.
type Option func(*Story)

// WithID sets explicit identifier instead of generated one.
func WithID(id string) Option {
	return func(s *Story) { s.ID = id }
}

func WithSeries(title string, volume int) Option {
	return func(s *Story) { s.Series = &Series{Title: title, Volume: volume} }
}

func WithTags(tags ...string) Option {
	return func(s *Story) { s.Tags = append(s.Tags, tags...) }
}

func WithCover(c CoverSource) Option {
	return func(s *Story) { s.Cover = c }
}

func WithChapters(chapters ...ChapterSource) Option {
	return func(s *Story) { s.Chapters = append(s.Chapters, chapters...) }
}

// New validates input and returns Story with its identifier assigned. The
// identifier is computed here once and is the only value used as
// dc:identifier for the lifetime of the run.
func New(title, lang, author string, options ...Option) (*Story, error) {
	s := &Story{
		Title:  cleanField(title),
		Author: cleanField(author),
	}
	if s.Title == "" {
		return nil, ErrEmptyTitle
	}

	tag, err := language.Parse(strings.TrimSpace(lang))
	if err != nil {
		tag = DefaultLanguage
	}
	s.Language = tag

	for _, opt := range options {
		opt(s)
	}

	if s.Series != nil {
		s.Series.Title = cleanField(s.Series.Title)
		if s.Series.Volume < 1 {
			return nil, fmt.Errorf("series %q: %w", s.Series.Title, ErrInvalidVolume)
		}
		if s.Series.Title == "" {
			s.Series = nil
		}
	}

	s.Tags = dedupTags(s.Tags)

	if s.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("unable to generate story identifier: %w", err)
		}
		s.ID = "urn:uuid:" + id.String()
	}
	return s, nil
}

// LanguageValid reports whether lang would be accepted as is by New.
func LanguageValid(lang string) bool {
	_, err := language.Parse(strings.TrimSpace(lang))
	return err == nil
}

// Order returns chapters in reading order with positions assigned. The slice
// order of sources is the reading order. Sources must be staged.
func Order(sources []ChapterSource) []Chapter {
	chapters := make([]Chapter, 0, len(sources))
	for i, src := range sources {
		chapters = append(chapters, Chapter{
			Seq:    i + 1,
			Label:  LabelFromPath(src.Path),
			Source: src.Path,
		})
	}
	return chapters
}

// LabelFromPath returns display label for chapter stored at path: base file
// name without extension.
func LabelFromPath(path string) string {
	base := filepath.Base(path)
	return cleanField(strings.TrimSuffix(base, filepath.Ext(base)))
}

// cleanField prepares single line metadata value for documents.
func cleanField(s string) string {
	return strings.TrimSpace(StripControls(s))
}

func dedupTags(tags []string) []string {
	result := make([]string, 0, len(tags))
	for _, t := range tags {
		t = cleanField(t)
		if t == "" || slices.Contains(result, t) {
			continue
		}
		result = append(result, t)
	}
	return result
}
