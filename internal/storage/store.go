package storage

import (
	"context"

	"reptation/internal/model"
)

// Store persists runs, their block results and their latest checkpoint.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns every run, newest first.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveBlocks(ctx context.Context, runID string, blocks []model.BlockRecord) error
	GetBlocks(ctx context.Context, runID string) ([]model.BlockRecord, bool, error)
	// SaveCheckpoint replaces the stored checkpoint of a run.
	SaveCheckpoint(ctx context.Context, checkpoint model.CheckpointRecord) error
	GetCheckpoint(ctx context.Context, runID string) (model.CheckpointRecord, bool, error)
}
