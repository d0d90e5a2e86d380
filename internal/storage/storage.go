package storage

import (
	"context"

	"ammcore/internal/model"
)

// Storage is a sink for replay output.
type Storage interface {
	PutSnapshotBatch(ctx context.Context, snapshots []model.PoolSnapshot) error
	PutOpErrors(ctx context.Context, errs []model.OpError) error
}
