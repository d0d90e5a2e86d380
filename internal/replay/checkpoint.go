package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ammcore/internal/model"
	"ammcore/internal/storage/postgres"
)

// ErrCheckpointMismatch means the engine state rebuilt from the input does
// not hash to the digest stored with the checkpoint.
var ErrCheckpointMismatch = errors.New("replay: state digest does not match checkpoint")

// CheckpointStore persists the replay position.
type CheckpointStore interface {
	Load(ctx context.Context) (model.Checkpoint, bool, error)
	Save(ctx context.Context, cp model.Checkpoint) error
}

// FileCheckpoints persists checkpoints to disk.
type FileCheckpoints struct {
	path    string
	enabled bool
}

func NewFileCheckpoints(path string, enabled bool) *FileCheckpoints {
	return &FileCheckpoints{path: path, enabled: enabled}
}

func (c *FileCheckpoints) Load(context.Context) (model.Checkpoint, bool, error) {
	if !c.enabled {
		return model.Checkpoint{}, false, nil
	}

	stat, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Checkpoint{}, false, nil
		}
		return model.Checkpoint{}, false, fmt.Errorf("stat checkpoint: %w", err)
	}
	if stat.IsDir() {
		return model.Checkpoint{}, false, fmt.Errorf("checkpoint path is a directory")
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return model.Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return model.Checkpoint{}, false, fmt.Errorf("parse checkpoint: %w", err)
	}
	return cp, true, nil
}

// Save writes the checkpoint to a temporary file and renames it into place.
func (c *FileCheckpoints) Save(_ context.Context, cp model.Checkpoint) error {
	if !c.enabled {
		return nil
	}

	dir := filepath.Dir(c.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// PostgresCheckpoints keeps the checkpoint in the replay_state row name.
type PostgresCheckpoints struct {
	store *postgres.Store
	name  string
}

func NewPostgresCheckpoints(store *postgres.Store, name string) *PostgresCheckpoints {
	return &PostgresCheckpoints{store: store, name: name}
}

func (c *PostgresCheckpoints) Load(ctx context.Context) (model.Checkpoint, bool, error) {
	return c.store.LoadState(ctx, c.name)
}

func (c *PostgresCheckpoints) Save(ctx context.Context, cp model.Checkpoint) error {
	return c.store.SaveState(ctx, c.name, cp)
}
