package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"coordinator/pkg/effect"
	"coordinator/pkg/proto"
)

// DirStore is the file-backed local work-item store: one items.json per
// repository under the root directory, written atomically. Rendering the
// items to anything richer than JSON is out of scope here; the store is the
// sync coordinator's source of truth for the local side.
type DirStore struct {
	root string
}

var _ effect.LocalStore = (*DirStore)(nil)

// NewDirStore creates a store rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{root: dir}
}

func (s *DirStore) path(repoPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(repoPath), "items.json")
}

// ReadItems implements effect.LocalStore. A repository with no stored file
// reads as an empty set, not an error.
func (s *DirStore) ReadItems(_ context.Context, repoPath string) (proto.ItemSet, error) {
	data, err := os.ReadFile(s.path(repoPath))
	if os.IsNotExist(err) {
		return proto.ItemSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading local items for %s: %w", repoPath, err)
	}

	var items []proto.WorkItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing local items for %s: %w", repoPath, err)
	}

	set := make(proto.ItemSet, len(items))
	for _, it := range items {
		if it.Hash == "" {
			it.Hash = HashItem(it)
		}
		set[it.ID] = it
	}
	return set, nil
}

// WriteItems implements effect.LocalStore. The file is written whole via a
// temp file and rename so a crashed write never leaves a torn snapshot.
func (s *DirStore) WriteItems(_ context.Context, repoPath string, items proto.ItemSet) error {
	path := s.path(repoPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating local item dir for %s: %w", repoPath, err)
	}

	sorted := make([]proto.WorkItem, 0, len(items))
	for _, it := range items {
		sorted = append(sorted, it)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	data, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding local items for %s: %w", repoPath, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing local items for %s: %w", repoPath, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("committing local items for %s: %w", repoPath, err)
	}
	return nil
}
