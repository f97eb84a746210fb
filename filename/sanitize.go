// Package filename derives safe path segments from arbitrary titles and
// labels. Every path segment the assembler produces goes through Sanitize.
package filename

import (
	"strings"
	"unicode"

	"github.com/gosimple/slug"
)

const (
	// Fallback is returned for input that does not leave anything usable.
	Fallback = "untitled"
	// MaxLength is the limit in characters (not bytes).
	MaxLength = 255
)

// illegal lists characters not allowed in a file name on Windows, which is
// the strictest platform we care about. Control characters are handled
// separately.
const illegal = `<>:"/\|?*`

var reserved = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// Sanitize turns in into a string usable as a single file name on every
// supported platform. It never fails and is idempotent.
func Sanitize(in string) string {
	if strings.TrimSpace(in) == "" {
		return Fallback
	}

	out := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(illegal, r) {
			return '_'
		}
		return r
	}, in)

	out = trim(out)
	if runes := []rune(out); len(runes) > MaxLength {
		// truncation may expose trailing spaces or periods again
		out = trim(string(runes[:MaxLength]))
	}

	if isReserved(out) {
		// leave room for the wrapping so a second pass does not truncate
		if runes := []rune(out); len(runes) > MaxLength-2 {
			out = trim(string(runes[:MaxLength-2]))
		}
		out = "_" + out + "_"
	}

	if strings.TrimSpace(out) == "" {
		return Fallback
	}
	return out
}

// Transliterate converts in to its ASCII slug form and sanitizes the result.
func Transliterate(in string) string {
	return Sanitize(slug.Make(in))
}

func trim(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return r == '.' || unicode.IsSpace(r)
	})
}

// isReserved reports whether name, or its part before the first period,
// matches a DOS device name ("NUL", "con.txt"). Names already wrapped by
// Sanitize ("_CON_") never match.
func isReserved(name string) bool {
	stem, _, _ := strings.Cut(name, ".")
	_, ok := reserved[strings.ToUpper(strings.TrimRight(stem, " "))]
	return ok
}
