package scheduler

import (
	"context"
	"errors"
)

// ErrNoCheckpoint is returned by Store.Load when no checkpoint exists for the
// scenario.
var ErrNoCheckpoint = errors.New("no checkpoint for scenario")

// Store persists checkpoint blobs keyed by scenario ID. Implementations must
// be safe for concurrent use.
type Store interface {
	Save(ctx context.Context, scenarioID string, data []byte) error
	Load(ctx context.Context, scenarioID string) ([]byte, error)
	Delete(ctx context.Context, scenarioID string) error
}
