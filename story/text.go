package story

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
)

// ReadText reads chapter text from path and returns it as UTF-8. When forced
// is nil encoding is detected: valid UTF-8 (or any BOM) is honored, anything
// else is treated as windows-1252.
func ReadText(path string, forced encoding.Encoding) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("unable to read chapter text: %w", err)
	}
	return DecodeText(data, forced)
}

// DecodeText converts raw chapter bytes to UTF-8 string.
func DecodeText(data []byte, forced encoding.Encoding) (string, error) {
	enc := forced
	if enc == nil {
		enc, _, _ = charset.DetermineEncoding(data, "text/plain")
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("unable to decode chapter text: %w", err)
	}
	return StripControls(strings.TrimPrefix(string(out), "\ufeff")), nil
}

// StripControls removes C0 and C1 control characters except tab and line
// breaks.
func StripControls(s string) string {
	return strings.Map(func(r rune) rune {
		if r != '\t' && r != '\n' && r != '\r' && unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// Paragraphs splits text on blank lines. Lines inside a paragraph are joined
// with a single space, empty paragraphs are dropped.
func Paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var (
		result []string
		cur    []string
	)
	flush := func() {
		if len(cur) > 0 {
			result = append(result, strings.Join(cur, " "))
			cur = cur[:0]
		}
	}
	for line := range strings.SplitSeq(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return result
}
