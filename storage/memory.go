package storage

import (
	"context"
	"errors"
	"sync"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	populations map[string]map[int]PopulationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.populations = make(map[string]map[int]PopulationRecord)
	return nil
}

func (s *MemoryStore) SavePopulation(_ context.Context, rec PopulationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	byGen, ok := s.populations[rec.RunID]
	if !ok {
		byGen = make(map[int]PopulationRecord)
		s.populations[rec.RunID] = byGen
	}
	rec.SchemaVersion = CurrentSchemaVersion
	rec.Genomes = cloneGenomes(rec.Genomes)
	byGen[rec.Generation] = rec
	return nil
}

func (s *MemoryStore) LatestPopulation(_ context.Context, runID string) (PopulationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return PopulationRecord{}, false, errors.New("store is not initialized")
	}
	var (
		latest PopulationRecord
		found  bool
	)
	for gen, rec := range s.populations[runID] {
		if !found || gen > latest.Generation {
			latest, found = rec, true
		}
	}
	if !found {
		return PopulationRecord{}, false, nil
	}
	latest.Genomes = cloneGenomes(latest.Genomes)
	return latest, true, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
