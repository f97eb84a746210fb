package state

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/encoding/ianaindex"
)

func newLocalEnv() *LocalEnv {
	return &LocalEnv{start: time.Now()}
}

// SetCodePage resolves IANA encoding name used to read chapter text. Empty
// name resets to detection.
func (e *LocalEnv) SetCodePage(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		e.CodePage = nil
		return nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return fmt.Errorf("unknown chapter encoding %q: %w", name, err)
	}
	if enc == nil {
		return fmt.Errorf("chapter encoding %q is not supported", name)
	}
	e.CodePage = enc
	return nil
}
