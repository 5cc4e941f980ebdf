package storage

import (
	"context"
	"time"

	"nevo/internal/genome"
	"nevo/internal/neat"
)

// VersionedRecord tags persisted payloads with schema and codec versions.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// NewVersionedRecord stamps the current versions.
func NewVersionedRecord() VersionedRecord {
	return VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

// RunRecord describes one evolution run.
type RunRecord struct {
	VersionedRecord
	ID         string    `json:"id"`
	Label      string    `json:"label,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Iterations int       `json:"iterations"`
	// Error is the best dataset error; Converged is false when no valid best
	// genome was found and Error is meaningless.
	Error     float64       `json:"error"`
	Converged bool          `json:"converged"`
	Duration  time.Duration `json:"duration"`
}

// GenomeRecord persists one genome snapshot with its run context.
type GenomeRecord struct {
	VersionedRecord
	ID       string          `json:"id"`
	RunID    string          `json:"run_id,omitempty"`
	Score    float64         `json:"score"`
	Snapshot genome.Snapshot `json:"snapshot"`
}

// LineageEntry records one genome's parentage.
type LineageEntry struct {
	GenomeID int   `json:"genome_id"`
	Parents  []int `json:"parents,omitempty"`
	Depth    int   `json:"depth"`
}

// Store defines persistence operations for evolution runs and their
// artifacts.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]RunRecord, error)
	SaveGenome(ctx context.Context, record GenomeRecord) error
	GetGenome(ctx context.Context, id string) (GenomeRecord, bool, error)
	SaveFitnessHistory(ctx context.Context, runID string, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SaveTelemetry(ctx context.Context, runID string, entries []neat.Telemetry) error
	GetTelemetry(ctx context.Context, runID string) ([]neat.Telemetry, bool, error)
	SaveSpeciesHistory(ctx context.Context, runID string, history []neat.SpeciesSnapshot) error
	GetSpeciesHistory(ctx context.Context, runID string) ([]neat.SpeciesSnapshot, bool, error)
	SaveLineage(ctx context.Context, runID string, lineage []LineageEntry) error
	GetLineage(ctx context.Context, runID string) ([]LineageEntry, bool, error)
}
