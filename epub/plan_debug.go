package epub

import (
	"storybind/utils/debug"
)

func (k EntryKind) String() string {
	switch k {
	case EntryTitlePage:
		return "title-page"
	case EntryCover:
		return "cover"
	case EntryChapter:
		return "chapter"
	default:
		return "unknown"
	}
}

// String returns readable reading order for debug report.
func (p *Plan) String() string {
	if p == nil {
		return "<nil Plan>"
	}
	tw := debug.NewTreeWriter()
	tw.Line(0, "Plan (%d entries)", len(p.Entries))
	for i, e := range p.Entries {
		tw.Line(1, "Entry[%d] kind=%s id=%q href=%q", i+1, e.Kind, e.ID, e.Href)
		tw.TextBlock(2, "Label", e.Label)
		if e.Kind == EntryChapter {
			tw.Line(2, "Seq: %d", e.Seq)
			tw.TextBlock(2, "Source", e.Source)
		}
	}
	return tw.String()
}
