package metadata

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

// Get resolves a dot-separated "stage.field" path. The second return is false
// when any segment is missing, nil, or an empty string.
func Get(meta *Metadata, path string) (any, bool) {
	doc, err := toDocument(meta)
	if err != nil {
		return nil, false
	}
	return getFromDocument(doc, path)
}

// Set writes value at the given path, creating the stage record if needed.
// Paths outside the declared shape are rejected.
func Set(meta *Metadata, path string, value any) error {
	if !KnownPath(path) {
		return fmt.Errorf("unknown metadata path %q", path)
	}
	doc, err := toDocument(meta)
	if err != nil {
		return err
	}
	parts := strings.Split(path, ".")
	curr := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := curr[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			curr[p] = next
		}
		curr = next
	}
	curr[parts[len(parts)-1]] = value
	return fromDocument(doc, meta)
}

// MissingPaths returns the subset of required paths that resolve to absent,
// preserving the input order. The first element is the next question target.
func MissingPaths(meta *Metadata, required []string) []string {
	doc, err := toDocument(meta)
	if err != nil {
		return append([]string(nil), required...)
	}
	missing := make([]string, 0, len(required))
	for _, p := range required {
		if _, ok := getFromDocument(doc, p); !ok {
			missing = append(missing, p)
		}
	}
	return missing
}

func getFromDocument(doc map[string]any, path string) (any, bool) {
	var curr any = doc
	for _, part := range strings.Split(path, ".") {
		node, ok := curr.(map[string]any)
		if !ok {
			return nil, false
		}
		curr, ok = node[part]
		if !ok {
			return nil, false
		}
	}
	if curr == nil {
		return nil, false
	}
	if s, ok := curr.(string); ok && s == "" {
		return nil, false
	}
	return curr, true
}

func toDocument(meta *Metadata) (map[string]any, error) {
	if meta == nil {
		return map[string]any{}, nil
	}
	raw, err := sonic.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	var doc map[string]any
	if err := sonic.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode metadata document: %w", err)
	}
	return doc, nil
}

func fromDocument(doc map[string]any, meta *Metadata) error {
	raw, err := sonic.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal metadata document: %w", err)
	}
	if err := sonic.Unmarshal(raw, meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	return nil
}
