package epub

import (
	"storybind/story"
)

// EntryKind tells what reading order entry points to.
type EntryKind int

const (
	EntryTitlePage EntryKind = iota
	EntryCover
	EntryChapter
)

// Entry is a single position in reading order.
type Entry struct {
	Kind  EntryKind
	ID    string
	Href  string
	Label string
	// 1-based chapter position, zero for special pages
	Seq int
	// chapter text file
	Source string
}

// Plan is the reading order of the package: title page, cover page when
// cover was staged, then chapters. Spine, NCX, nav and chapter file names
// are all produced from the same Plan.
type Plan struct {
	Entries []Entry
}

// NewPlan builds reading order for chapters. Chapters must be ordered.
func NewPlan(chapters []story.Chapter, withCover bool) *Plan {
	p := &Plan{Entries: make([]Entry, 0, len(chapters)+2)}
	p.Entries = append(p.Entries, Entry{
		Kind:  EntryTitlePage,
		ID:    idTitlePage,
		Href:  titlePageHref,
		Label: labelTitlePage,
	})
	if withCover {
		p.Entries = append(p.Entries, Entry{
			Kind:  EntryCover,
			ID:    idCoverPage,
			Href:  coverPageHref,
			Label: labelCover,
		})
	}
	p.Entries = append(p.Entries, chapterEntries(chapters)...)
	return p
}

// chapterEntries returns plan entries for chapters. Entry of a chapter
// depends only on its position, so documents may be generated before the
// whole plan is known.
func chapterEntries(chapters []story.Chapter) []Entry {
	result := make([]Entry, 0, len(chapters))
	for _, ch := range chapters {
		result = append(result, Entry{
			Kind:   EntryChapter,
			ID:     chapterID(ch.Seq),
			Href:   chapterHref(ch.Seq),
			Label:  ch.Label,
			Seq:    ch.Seq,
			Source: ch.Source,
		})
	}
	return result
}

// Chapters returns chapter entries only, in reading order.
func (p *Plan) Chapters() []Entry {
	var result []Entry
	for _, e := range p.Entries {
		if e.Kind == EntryChapter {
			result = append(result, e)
		}
	}
	return result
}

// HasCover reports whether cover page is part of reading order.
func (p *Plan) HasCover() bool {
	for _, e := range p.Entries {
		if e.Kind == EntryCover {
			return true
		}
	}
	return false
}

// BodyStart returns entry where actual reading starts: first chapter or
// title page when there are no chapters.
func (p *Plan) BodyStart() Entry {
	if ch := p.Chapters(); len(ch) > 0 {
		return ch[0]
	}
	return p.Entries[0]
}
