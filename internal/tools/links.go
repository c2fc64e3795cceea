package tools

import (
	"encoding/json"
	"fmt"
	"os"
)

// linkNotFound is the reply the assistant relays when a key path leads
// nowhere, kept verbatim so the model's prompt examples stay accurate.
const linkNotFound = "Ссылка не найдена"

// Links is the nested key→link catalog the get_link tool walks.
type Links struct {
	root map[string]any
}

// LoadLinks reads the catalog from a JSON file of nested string maps.
func LoadLinks(path string) (*Links, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("links: %w", err)
	}
	var root map[string]any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("links: parse %s: %w", path, err)
	}
	return &Links{root: root}, nil
}

// Lookup walks keys through the nested maps. Any missing key or a path that
// ends on a non-string returns the not-found reply rather than an error —
// the assistant handles it conversationally.
func (l *Links) Lookup(keys []string) string {
	var current any = l.root
	for _, key := range keys {
		m, ok := current.(map[string]any)
		if !ok {
			return linkNotFound
		}
		current, ok = m[key]
		if !ok {
			return linkNotFound
		}
	}
	if s, ok := current.(string); ok {
		return s
	}
	return linkNotFound
}
