package datasets

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// LoadSplit reads a JSON object mapping split names (e.g. "train", "val") to
// lists of "instance_sample" tokens and returns the named split.
func LoadSplit(path, name string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read split file: %w", err)
	}
	var splits map[string][]string
	if err := json.Unmarshal(data, &splits); err != nil {
		return nil, fmt.Errorf("unmarshal split file: %w", err)
	}
	tokens, ok := splits[name]
	if !ok {
		names := make([]string, 0, len(splits))
		for n := range splits {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("%w: split %q (have %v)", ErrNotFound, name, names)
	}
	for _, tok := range tokens {
		if _, _, err := SplitToken(tok); err != nil {
			return nil, err
		}
	}
	return tokens, nil
}

// WriteSplit writes splits in the format LoadSplit reads.
func WriteSplit(path string, splits map[string][]string) error {
	data, err := json.MarshalIndent(splits, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal split file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write split file: %w", err)
	}
	return nil
}
