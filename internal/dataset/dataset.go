// Package dataset loads and generates supervised training sets for the
// evolution engine.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"nevo/internal/genome"
)

// Load reads a CSV training set. The header names input columns "in_*" and
// output columns "out_*"; inputs must precede outputs.
func Load(path string) ([]genome.Sample, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read dataset header: %w", err)
	}

	inputs, outputs := 0, 0
	for i, name := range header {
		name = strings.TrimSpace(name)
		switch {
		case strings.HasPrefix(name, "in"):
			if outputs > 0 {
				return nil, fmt.Errorf("column %d: input column after outputs", i)
			}
			inputs++
		case strings.HasPrefix(name, "out"):
			outputs++
		default:
			return nil, fmt.Errorf("column %d: name %q must start with in or out", i, name)
		}
	}
	if inputs == 0 || outputs == 0 {
		return nil, fmt.Errorf("dataset needs at least one input and one output column")
	}

	var samples []genome.Sample
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		if len(record) != inputs+outputs {
			return nil, fmt.Errorf("row %d: %d fields, want %d", row, len(record), inputs+outputs)
		}
		values := make([]float64, len(record))
		for i, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", row, i, err)
			}
			values[i] = v
		}
		samples = append(samples, genome.Sample{
			Input:  values[:inputs],
			Output: values[inputs:],
		})
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("dataset %s has no rows", path)
	}
	return samples, nil
}

// Write stores a training set as CSV with in_*/out_* header columns.
func Write(path string, samples []genome.Sample) error {
	if len(samples) == 0 {
		return fmt.Errorf("dataset is empty")
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := make([]string, 0, len(samples[0].Input)+len(samples[0].Output))
	for i := range samples[0].Input {
		header = append(header, fmt.Sprintf("in_%d", i))
	}
	for i := range samples[0].Output {
		header = append(header, fmt.Sprintf("out_%d", i))
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, sample := range samples {
		record := make([]string, 0, len(header))
		for _, v := range sample.Input {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		for _, v := range sample.Output {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// XOR is the canonical two-input parity set.
func XOR() []genome.Sample {
	return []genome.Sample{
		{Input: []float64{0, 0}, Output: []float64{0}},
		{Input: []float64{0, 1}, Output: []float64{1}},
		{Input: []float64{1, 0}, Output: []float64{1}},
		{Input: []float64{1, 1}, Output: []float64{0}},
	}
}

// Sine samples a scaled sine wave at uniformly random points.
func Sine(count int, seed int64) []genome.Sample {
	if count <= 0 {
		count = 100
	}
	rng := rand.New(rand.NewSource(seed))
	samples := make([]genome.Sample, count)
	for i := range samples {
		x := rng.Float64() * 2 * math.Pi
		samples[i] = genome.Sample{
			Input:  []float64{x / (2 * math.Pi)},
			Output: []float64{(math.Sin(x) + 1) / 2},
		}
	}
	return samples
}

// Builtin resolves a named generated dataset.
func Builtin(name string, seed int64) ([]genome.Sample, bool) {
	switch name {
	case "xor":
		return XOR(), true
	case "sine":
		return Sine(100, seed), true
	default:
		return nil, false
	}
}
