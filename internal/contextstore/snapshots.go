package contextstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSnapshotProvider serves processed lesson content from a directory of
// JSON files, one file per snapshot ID.
type FileSnapshotProvider struct {
	dir string
}

// NewFileSnapshotProvider creates a provider rooted at dir.
func NewFileSnapshotProvider(dir string) *FileSnapshotProvider {
	return &FileSnapshotProvider{dir: dir}
}

// GetByID implements LessonSnapshotProvider.
func (p *FileSnapshotProvider) GetByID(_ context.Context, id string) (json.RawMessage, error) {
	// Snapshot IDs come from clients; refuse anything that could escape
	// the content directory.
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return nil, fmt.Errorf("invalid snapshot id %q", id)
	}

	data, err := os.ReadFile(filepath.Join(p.dir, id+".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", id, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("snapshot %s is not valid JSON", id)
	}
	return json.RawMessage(data), nil
}
