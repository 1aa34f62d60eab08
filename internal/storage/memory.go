package storage

import (
	"context"
	"errors"
	"sync"

	"reptation/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	blocks      map[string][]model.BlockRecord
	checkpoints map[string]model.CheckpointRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.blocks = make(map[string][]model.BlockRecord)
	s.checkpoints = make(map[string]model.CheckpointRecord)
	return nil
}

func cloneRun(run model.RunRecord) model.RunRecord {
	run.Estimates = append([]model.Estimate(nil), run.Estimates...)
	return run
}

func cloneBlocks(blocks []model.BlockRecord) []model.BlockRecord {
	copied := make([]model.BlockRecord, len(blocks))
	for i, b := range blocks {
		b.Path = b.Path.Clone()
		b.Center = b.Center.Clone()
		copied[i] = b
	}
	return copied
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	return cloneRun(run), true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, cloneRun(run))
	}
	sortRunsNewestFirst(runs)
	return runs, nil
}

func (s *MemoryStore) SaveBlocks(_ context.Context, runID string, blocks []model.BlockRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.blocks[runID] = cloneBlocks(blocks)
	return nil
}

func (s *MemoryStore) GetBlocks(_ context.Context, runID string) ([]model.BlockRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blocks, ok := s.blocks[runID]
	if !ok {
		return nil, false, nil
	}
	return cloneBlocks(blocks), true, nil
}

func (s *MemoryStore) SaveCheckpoint(_ context.Context, checkpoint model.CheckpointRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	checkpoint.Payload = append([]byte(nil), checkpoint.Payload...)
	s.checkpoints[checkpoint.RunID] = checkpoint
	return nil
}

func (s *MemoryStore) GetCheckpoint(_ context.Context, runID string) (model.CheckpointRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	checkpoint, ok := s.checkpoints[runID]
	if !ok {
		return model.CheckpointRecord{}, false, nil
	}
	checkpoint.Payload = append([]byte(nil), checkpoint.Payload...)
	return checkpoint, true, nil
}
