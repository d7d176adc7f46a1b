// Package storage persists genome populations so a run can be resumed.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pthm-cable/sweepers/components"
)

// PopulationRecord is one generation's population snapshot for a run.
type PopulationRecord struct {
	SchemaVersion int                 `json:"schema_version"`
	RunID         string              `json:"run_id"`
	Generation    int                 `json:"generation"`
	Genomes       []components.Genome `json:"genomes"`
	SavedAt       time.Time           `json:"saved_at"`
}

// Store saves and restores population snapshots.
type Store interface {
	Init(ctx context.Context) error
	// SavePopulation stores rec, replacing any record with the same run and generation.
	SavePopulation(ctx context.Context, rec PopulationRecord) error
	// LatestPopulation returns the highest-generation record for runID.
	LatestPopulation(ctx context.Context, runID string) (PopulationRecord, bool, error)
	Close() error
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.NewString()
}

func cloneGenomes(in []components.Genome) []components.Genome {
	out := make([]components.Genome, len(in))
	for i, g := range in {
		out[i] = g.Clone()
	}
	return out
}
