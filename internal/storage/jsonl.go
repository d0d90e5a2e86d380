package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ammcore/internal/model"
)

var _ Storage = (*JsonlStorage)(nil)

// JsonlStorage appends snapshots to one JSONL file and operation errors to
// another. An empty errors path drops errors.
type JsonlStorage struct {
	path       string
	errorsPath string
	mu         sync.Mutex
}

func NewJsonlStorage(path, errorsPath string) *JsonlStorage {
	return &JsonlStorage{path: path, errorsPath: errorsPath}
}

// PutSnapshotBatch appends a batch of pool snapshots as JSON lines.
func (s *JsonlStorage) PutSnapshotBatch(_ context.Context, snapshots []model.PoolSnapshot) error {
	values := make([]any, len(snapshots))
	for i := range snapshots {
		values[i] = snapshots[i]
	}
	return s.appendLines(s.path, values)
}

func (s *JsonlStorage) PutOpErrors(_ context.Context, errs []model.OpError) error {
	if s.errorsPath == "" {
		return nil
	}
	values := make([]any, len(errs))
	for i := range errs {
		values[i] = errs[i]
	}
	return s.appendLines(s.errorsPath, values)
}

func (s *JsonlStorage) appendLines(path string, values []any) error {
	if len(values) == 0 {
		return nil
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, value := range values {
		line, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
