package ui

import (
	"log"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

// TreeState is the persisted expand/collapse state, saved as
// tree-state.json:
//
//	{
//	  "version": 1,
//	  "expanded": {
//	    "src": true,
//	    "vendor": false
//	  }
//	}
//
// Only explicit toggles are stored; other items use the default depth rule.
// A missing or corrupt file means defaults.
type TreeState struct {
	Version  int             `json:"version"`
	Expanded map[string]bool `json:"expanded"`
}

// TreeStateVersion is the current schema version.
const TreeStateVersion = 1

const treeStateFileName = "tree-state.json"

// DefaultTreeState returns an empty state.
func DefaultTreeState() *TreeState {
	return &TreeState{Version: TreeStateVersion, Expanded: make(map[string]bool)}
}

// TreeStatePath returns the state file inside dir.
func TreeStatePath(dir string) string {
	return filepath.Join(dir, treeStateFileName)
}

// LoadTreeState reads path. An empty path disables persistence.
func LoadTreeState(path string) *TreeState {
	state := DefaultTreeState()
	if path == "" {
		return state
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return state
	}
	if err := json.Unmarshal(data, state); err != nil {
		log.Printf("warning: invalid tree state file, using defaults: %v", err)
		return DefaultTreeState()
	}
	if state.Expanded == nil {
		state.Expanded = make(map[string]bool)
	}
	return state
}

// Save writes the state to path. Errors are logged, not returned.
func (s *TreeState) Save(path string) {
	if path == "" {
		return
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		log.Printf("warning: failed to marshal tree state: %v", err)
		return
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("warning: failed to create state directory %s: %v", dir, err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Printf("warning: failed to write tree state to %s: %v", path, err)
	}
}
