package storage

import (
	"context"
	"sort"
	"sync"

	"nevo/internal/neat"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]RunRecord
	genomes     map[string]GenomeRecord
	history     map[string][]float64
	telemetry   map[string][]neat.Telemetry
	speciesHist map[string][]neat.SpeciesSnapshot
	lineage     map[string][]LineageEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]RunRecord)
	s.genomes = make(map[string]GenomeRecord)
	s.history = make(map[string][]float64)
	s.telemetry = make(map[string][]neat.Telemetry)
	s.speciesHist = make(map[string][]neat.SpeciesSnapshot)
	s.lineage = make(map[string][]LineageEntry)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

func (s *MemoryStore) SaveGenome(_ context.Context, record GenomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.genomes[record.ID] = record
	return nil
}

func (s *MemoryStore) GetGenome(_ context.Context, id string) (GenomeRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.genomes[id]
	return record, ok, nil
}

func (s *MemoryStore) SaveFitnessHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[runID] = append([]float64(nil), history...)
	return nil
}

func (s *MemoryStore) GetFitnessHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]float64(nil), history...), true, nil
}

func (s *MemoryStore) SaveTelemetry(_ context.Context, runID string, entries []neat.Telemetry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.telemetry[runID] = append([]neat.Telemetry(nil), entries...)
	return nil
}

func (s *MemoryStore) GetTelemetry(_ context.Context, runID string) ([]neat.Telemetry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.telemetry[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]neat.Telemetry(nil), entries...), true, nil
}

func (s *MemoryStore) SaveSpeciesHistory(_ context.Context, runID string, history []neat.SpeciesSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]neat.SpeciesSnapshot, 0, len(history))
	for _, snap := range history {
		copied = append(copied, neat.SpeciesSnapshot{
			Generation: snap.Generation,
			Species:    append([]neat.SpeciesRecord(nil), snap.Species...),
			Created:    append([]int(nil), snap.Created...),
			Extinct:    append([]int(nil), snap.Extinct...),
			Turnover:   snap.Turnover,
		})
	}
	s.speciesHist[runID] = copied
	return nil
}

func (s *MemoryStore) GetSpeciesHistory(_ context.Context, runID string) ([]neat.SpeciesSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.speciesHist[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]neat.SpeciesSnapshot, 0, len(history))
	for _, snap := range history {
		copied = append(copied, neat.SpeciesSnapshot{
			Generation: snap.Generation,
			Species:    append([]neat.SpeciesRecord(nil), snap.Species...),
			Created:    append([]int(nil), snap.Created...),
			Extinct:    append([]int(nil), snap.Extinct...),
			Turnover:   snap.Turnover,
		})
	}
	return copied, true, nil
}

func (s *MemoryStore) SaveLineage(_ context.Context, runID string, lineage []LineageEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]LineageEntry, 0, len(lineage))
	for _, entry := range lineage {
		entry.Parents = append([]int(nil), entry.Parents...)
		copied = append(copied, entry)
	}
	s.lineage[runID] = copied
	return nil
}

func (s *MemoryStore) GetLineage(_ context.Context, runID string) ([]LineageEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lineage, ok := s.lineage[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]LineageEntry, 0, len(lineage))
	for _, entry := range lineage {
		entry.Parents = append([]int(nil), entry.Parents...)
		copied = append(copied, entry)
	}
	return copied, true, nil
}
