package metadata

import (
	"fmt"

	"github.com/bytedance/sonic"
	jsonpatch "github.com/evanphx/json-patch/v5"
)

// Merge deep-merges updates into meta and returns the result. Stage records
// absent from updates are left untouched; leaves present in updates overwrite
// the existing value. Both inputs are unchanged.
func Merge(meta *Metadata, updates *Metadata) (*Metadata, error) {
	if updates == nil {
		return cloneOrEmpty(meta)
	}
	base, err := marshalOrEmptyObject(meta)
	if err != nil {
		return nil, err
	}
	patch, err := marshalOrEmptyObject(updates)
	if err != nil {
		return nil, err
	}
	merged, err := jsonpatch.MergePatch(base, patch)
	if err != nil {
		return nil, fmt.Errorf("merge metadata: %w", err)
	}
	var out Metadata
	if err := sonic.Unmarshal(merged, &out); err != nil {
		return nil, fmt.Errorf("decode merged metadata: %w", err)
	}
	return &out, nil
}

func cloneOrEmpty(meta *Metadata) (*Metadata, error) {
	if meta == nil {
		return &Metadata{}, nil
	}
	raw, err := sonic.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	var out Metadata
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &out, nil
}

func marshalOrEmptyObject(meta *Metadata) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	raw, err := sonic.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return raw, nil
}
