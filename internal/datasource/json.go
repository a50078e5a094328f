package datasource

import (
	"bytes"
	"fmt"
	"os"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/viewtree/pkg/metrics"
)

// LoadJSON reads a nested tree. A top-level array is wrapped in a synthetic
// root named after the file.
func LoadJSON(path string) (Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Item{}, err
	}
	root, err := ParseJSON(data, Source{Type: SourceTypeJSON, Path: path}.Name())
	if err != nil {
		return Item{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return root, nil
}

// ParseJSON decodes a tree. rootID names the synthetic root used when data
// holds an array of roots.
func ParseJSON(data []byte, rootID string) (Item, error) {
	defer metrics.Timer(metrics.JSONParsing)()

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Item{}, ErrEmpty
	}

	var root Item
	if data[0] == '[' {
		var roots []Item
		if err := json.Unmarshal(data, &roots); err != nil {
			return Item{}, err
		}
		if len(roots) == 0 {
			return Item{}, ErrEmpty
		}
		root = Item{ID: rootID, Children: roots}
	} else if err := json.Unmarshal(data, &root); err != nil {
		return Item{}, err
	}
	root.Seal()
	return root, nil
}

// WriteJSON writes root as indented JSON.
func WriteJSON(path string, root Item) error {
	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
