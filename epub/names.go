package epub

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"

	"storybind/config"
	"storybind/filename"
	"storybind/story"
)

// NameValues holds variables available to output name template.
type NameValues struct {
	Title    string
	Author   string
	Series   string
	Volume   int
	Language string
	ID       string
	Tags     []string
}

func nameValues(st *story.Story) NameValues {
	v := NameValues{
		Title:    st.Title,
		Author:   st.Author,
		Language: st.Language.String(),
		ID:       st.ID,
		Tags:     st.Tags,
	}
	if st.Series != nil {
		v.Series, v.Volume = st.Series.Title, st.Series.Volume
	}
	return v
}

// expandNameTemplate executes text template with sprig functions against
// story values.
func expandNameTemplate(st *story.Story, field string) (string, error) {
	tmpl, err := template.New(string(config.OutputNameTemplateFieldName)).Funcs(sprig.FuncMap()).Parse(field)
	if err != nil {
		return "", fmt.Errorf("unable to parse template field %s: %w", config.OutputNameTemplateFieldName, err)
	}
	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, nameValues(st)); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// safeName sanitizes path segment, optionally transliterating it first.
func safeName(in string, transliterate bool) string {
	if transliterate {
		return filename.Transliterate(in)
	}
	return filename.Sanitize(in)
}

// storyDirName returns name of directory package is assembled in.
func storyDirName(st *story.Story, cfg *config.DocumentConfig) string {
	return safeName(st.Title, cfg.FileNameTransliterate)
}

// archiveName returns file name of the resulting archive. Template expansion
// errors are returned so caller can fall back to default name.
func archiveName(st *story.Story, cfg *config.DocumentConfig) (string, error) {
	base := st.Title
	var err error
	if cfg.OutputNameTemplate != "" {
		var expanded string
		if expanded, err = expandNameTemplate(st, cfg.OutputNameTemplate); err == nil && expanded != "" {
			base = expanded
		}
	}
	return safeName(base, cfg.FileNameTransliterate) + ".epub", err
}
