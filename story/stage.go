package story

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"storybind/filename"
)

// Stage writes inline chapter text blocks into dir so every returned source
// has Path pointing to a text file. Sources which already have Path are
// returned unchanged. Each staged chapter gets its own numbered directory so
// identical titles do not collide, while the file base name (and therefore
// the chapter label) stays the sanitized title.
func Stage(dir string, sources []ChapterSource) ([]ChapterSource, error) {
	result := make([]ChapterSource, 0, len(sources))
	for i, src := range sources {
		if src.Path != "" {
			result = append(result, src)
			continue
		}
		sub := filepath.Join(dir, fmt.Sprintf("%04d", i+1))
		if err := os.MkdirAll(sub, 0755); err != nil {
			return nil, fmt.Errorf("unable to create staging directory: %w", err)
		}
		path := filepath.Join(sub, filename.Sanitize(src.Key)+".txt")
		if err := os.WriteFile(path, []byte(strings.Join(src.Blocks, "\n\n")), 0644); err != nil {
			return nil, fmt.Errorf("unable to stage chapter %q: %w", src.Key, err)
		}
		result = append(result, ChapterSource{Key: src.Key, Path: path})
	}
	return result, nil
}
