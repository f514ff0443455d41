package storage

import (
	"context"
	"errors"
	"sync"
)

// MemoryStore is a Store which keeps all records in memory
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]Run
	generations map[string][]GenerationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]Run)
	s.generations = make(map[string][]GenerationRecord)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	if run.ID == "" {
		return errors.New("run id is required")
	}
	run.Config = append([]byte(nil), run.Config...)
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return Run{}, false, errors.New("store is not initialized")
	}
	run, ok := s.runs[id]
	if !ok {
		return Run{}, false, nil
	}
	run.Config = append([]byte(nil), run.Config...)
	return run, true, nil
}

func (s *MemoryStore) AppendGeneration(_ context.Context, record GenerationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	if _, ok := s.runs[record.RunID]; !ok {
		return errors.New("unknown run " + record.RunID)
	}
	s.generations[record.RunID] = append(s.generations[record.RunID], record)
	return nil
}

func (s *MemoryStore) ListGenerations(_ context.Context, runID string) ([]GenerationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errors.New("store is not initialized")
	}
	records := s.generations[runID]
	out := make([]GenerationRecord, len(records))
	copy(out, records)
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
