// Package knowledge provides the static troubleshooting knowledge base:
// an ordered keyword-to-solution table checked before the language assistant
// is consulted. The first entry whose keyword appears in the user's
// description wins; entries are matched in declaration order.
package knowledge

import (
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed default_kb.toml
var defaultKB []byte

// Entry maps trigger keywords to a canned solution.
type Entry struct {
	Keywords []string `toml:"keywords"`
	Solution string   `toml:"solution"`
}

// Base is an ordered troubleshooting knowledge base.
type Base struct {
	Entries []Entry `toml:"entry"`
}

// Default returns the built-in knowledge base shipped with the binary.
func Default() *Base {
	b, err := parse(defaultKB)
	if err != nil {
		// The embedded table is validated by tests; a parse failure here
		// means a broken build, so fail loudly with an empty base.
		slog.Error("Embedded knowledge base failed to parse", "error", err)
		return &Base{}
	}
	return b
}

// LoadFile reads a knowledge base from a TOML file.
func LoadFile(path string) (*Base, error) {
	var b Base
	if _, err := toml.DecodeFile(path, &b); err != nil {
		slog.Error("Knowledge base load failed", "error", err, "path", path)
		return nil, fmt.Errorf("failed to load knowledge base %s: %w", path, err)
	}
	slog.Debug("Knowledge base loaded", "path", path, "entries", len(b.Entries))
	return &b, nil
}

func parse(data []byte) (*Base, error) {
	var b Base
	if err := toml.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Match returns the solution of the first entry whose keyword appears in
// text (case-insensitive substring), or ok=false when nothing matches.
func (b *Base) Match(text string) (string, bool) {
	t := strings.ToLower(text)
	for _, e := range b.Entries {
		for _, kw := range e.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(t, strings.ToLower(kw)) {
				return e.Solution, true
			}
		}
	}
	return "", false
}

// Len returns the number of entries in the base.
func (b *Base) Len() int {
	return len(b.Entries)
}
