package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"nevo/internal/genome"
	"nevo/internal/neat"
)

const runIndexFile = "run_index.json"

// RunArtifacts is everything one evolution run leaves on disk.
type RunArtifacts struct {
	RunID          string                 `json:"run_id"`
	Label          string                 `json:"label,omitempty"`
	CreatedAtUTC   string                 `json:"created_at_utc"`
	Iterations     int                    `json:"iterations"`
	FinalError     float64                `json:"final_error"`
	Converged      bool                   `json:"converged"`
	FitnessHistory []float64              `json:"fitness_history"`
	Telemetry      []neat.Telemetry       `json:"telemetry,omitempty"`
	SpeciesHistory []neat.SpeciesSnapshot `json:"species_history,omitempty"`
	Lineage        []neat.LineageRecord   `json:"lineage,omitempty"`
	BestSnapshot   *genome.Snapshot       `json:"best_snapshot,omitempty"`
}

// RunIndexEntry is one line of the cross-run index.
type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Label        string  `json:"label,omitempty"`
	Iterations   int     `json:"iterations"`
	FinalError   float64 `json:"final_error"`
	Converged    bool    `json:"converged"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

// TelemetryRow flattens one telemetry entry for CSV export.
type TelemetryRow struct {
	Generation        int     `csv:"generation"`
	Best              float64 `csv:"best"`
	Species           int     `csv:"species"`
	MeanCompat        float64 `csv:"mean_compat"`
	VarCompat         float64 `csv:"var_compat"`
	StructuralEntropy float64 `csv:"structural_entropy"`
	MeanNodes         float64 `csv:"mean_nodes"`
	MeanConns         float64 `csv:"mean_conns"`
	MeanDepth         float64 `csv:"mean_depth"`
	EvalMillis        float64 `csv:"eval_ms"`
}

// LineageRow flattens one parentage record for CSV export. Parents are
// semicolon-joined because CSV cells hold a single value.
type LineageRow struct {
	GenomeID int    `csv:"genome_id"`
	Depth    int    `csv:"depth"`
	Parents  string `csv:"parents"`
}

// SpeciesRow flattens one species record for CSV export.
type SpeciesRow struct {
	Generation int     `csv:"generation"`
	SpeciesID  int     `csv:"species_id"`
	Size       int     `csv:"size"`
	BestScore  float64 `csv:"best_score"`
	MeanScore  float64 `csv:"mean_score"`
	Age        int     `csv:"age"`
}

// WriteRunArtifacts lays the run directory out under baseDir: JSON payloads,
// flattened CSV exports and a statistical summary.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}
	// Runs that never produced a valid network report an infinite error,
	// which JSON cannot carry. Converged stays false for those.
	if math.IsInf(artifacts.FinalError, 0) || math.IsNaN(artifacts.FinalError) {
		artifacts.FinalError = 0
		artifacts.Converged = false
	}

	runDir := filepath.Join(baseDir, artifacts.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "run.json"), artifacts); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "fitness_history.json"), artifacts.FitnessHistory); err != nil {
		return "", err
	}
	if artifacts.BestSnapshot != nil {
		if err := writeJSON(filepath.Join(runDir, "best_genome.json"), artifacts.BestSnapshot); err != nil {
			return "", err
		}
	}
	if err := writeJSON(filepath.Join(runDir, "summary.json"), Summarize(artifacts)); err != nil {
		return "", err
	}

	if len(artifacts.Telemetry) > 0 {
		if err := writeTelemetryCSV(filepath.Join(runDir, "telemetry.csv"), artifacts.Telemetry); err != nil {
			return "", err
		}
	}
	if len(artifacts.SpeciesHistory) > 0 {
		if err := writeSpeciesCSV(filepath.Join(runDir, "species.csv"), artifacts.SpeciesHistory); err != nil {
			return "", err
		}
	}
	if len(artifacts.Lineage) > 0 {
		if err := writeLineageCSV(filepath.Join(runDir, "lineage.csv"), artifacts.Lineage); err != nil {
			return "", err
		}
	}

	return runDir, nil
}

func writeTelemetryCSV(path string, entries []neat.Telemetry) error {
	rows := make([]TelemetryRow, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, TelemetryRow{
			Generation:        entry.Generation,
			Best:              entry.Best,
			Species:           entry.SpeciesCount,
			MeanCompat:        entry.Diversity.MeanCompat,
			VarCompat:         entry.Diversity.VarCompat,
			StructuralEntropy: entry.Diversity.StructuralEntropy,
			MeanNodes:         entry.Complexity.MeanNodes,
			MeanConns:         entry.Complexity.MeanConns,
			MeanDepth:         entry.Lineage.MeanDepth,
			EvalMillis:        entry.Perf.EvalMillis,
		})
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return gocsv.MarshalFile(&rows, file)
}

func writeSpeciesCSV(path string, history []neat.SpeciesSnapshot) error {
	rows := make([]SpeciesRow, 0, len(history))
	for _, snap := range history {
		for _, sp := range snap.Species {
			rows = append(rows, SpeciesRow{
				Generation: snap.Generation,
				SpeciesID:  sp.ID,
				Size:       sp.Size,
				BestScore:  sp.BestScore,
				MeanScore:  sp.MeanScore,
				Age:        sp.Age,
			})
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return gocsv.MarshalFile(&rows, file)
}

func writeLineageCSV(path string, records []neat.LineageRecord) error {
	rows := make([]LineageRow, 0, len(records))
	for _, rec := range records {
		parents := make([]string, 0, len(rec.Parents))
		for _, p := range rec.Parents {
			parents = append(parents, strconv.Itoa(p))
		}
		rows = append(rows, LineageRow{
			GenomeID: rec.GenomeID,
			Depth:    rec.Depth,
			Parents:  strings.Join(parents, ";"),
		})
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return gocsv.MarshalFile(&rows, file)
}

// ReadTelemetryCSV loads a flattened telemetry export back.
func ReadTelemetryCSV(path string) ([]TelemetryRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var rows []TelemetryRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// AppendRunIndex upserts one entry into baseDir's run_index.json.
func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}
	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}
	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the index entries, newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAtUTC > entries[j].CreatedAtUTC
	})
	return entries, nil
}

// ReadRunArtifacts loads a run directory's primary payload.
func ReadRunArtifacts(baseDir, runID string) (RunArtifacts, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, "run.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return RunArtifacts{}, false, nil
		}
		return RunArtifacts{}, false, err
	}
	var artifacts RunArtifacts
	if err := json.Unmarshal(data, &artifacts); err != nil {
		return RunArtifacts{}, false, err
	}
	return artifacts, true, nil
}

// ExportRun copies a run directory's files into outDir.
func ExportRun(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	src := filepath.Join(baseDir, runID)
	entries, err := os.ReadDir(src)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := copyFile(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
