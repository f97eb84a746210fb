package story

import (
	"net/url"
	"strings"
)

// CoverKind tells where cover image comes from.
type CoverKind int

const (
	CoverNone CoverKind = iota
	CoverFile
	CoverURL
)

func (k CoverKind) String() string {
	switch k {
	case CoverFile:
		return "file"
	case CoverURL:
		return "url"
	default:
		return "none"
	}
}

// CoverSource is either absent, a local path or a URL.
type CoverSource struct {
	Kind     CoverKind
	Location string
}

// ParseCoverSource classifies s. Strings with http or https scheme are URLs,
// any other non-blank string is a local path.
func ParseCoverSource(s string) CoverSource {
	s = strings.TrimSpace(s)
	if s == "" {
		return CoverSource{}
	}
	if u, err := url.Parse(s); err == nil && u.Host != "" {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return CoverSource{Kind: CoverURL, Location: s}
		}
	}
	return CoverSource{Kind: CoverFile, Location: s}
}

func (c CoverSource) IsZero() bool {
	return c.Kind == CoverNone
}

func (c CoverSource) String() string {
	if c.IsZero() {
		return ""
	}
	return c.Location
}
