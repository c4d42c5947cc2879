package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FSStore keeps checkpoints as files under a single directory, one file per
// scenario. Writes go through a temp file and rename, so readers never see a
// partial checkpoint.
type FSStore struct {
	dir string
}

// NewFSStore creates the directory if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating checkpoint dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) path(scenarioID string) string {
	return filepath.Join(s.dir, scenarioID+".ckpt")
}

func (s *FSStore) Save(_ context.Context, scenarioID string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, scenarioID+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp checkpoint: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("closing checkpoint: %w", err)
	}
	if err := os.Rename(name, s.path(scenarioID)); err != nil {
		os.Remove(name)
		return fmt.Errorf("publishing checkpoint: %w", err)
	}
	return nil
}

func (s *FSStore) Load(_ context.Context, scenarioID string) ([]byte, error) {
	data, err := os.ReadFile(s.path(scenarioID))
	if os.IsNotExist(err) {
		return nil, ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	return data, nil
}

func (s *FSStore) Delete(_ context.Context, scenarioID string) error {
	err := os.Remove(s.path(scenarioID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting checkpoint: %w", err)
	}
	return nil
}
