package storage

import (
	"encoding/json"
	"errors"

	"nevo/internal/neat"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeRun(run RunRecord) ([]byte, error) {
	return json.Marshal(run)
}

func DecodeRun(data []byte) (RunRecord, error) {
	var run RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return RunRecord{}, err
	}
	return run, nil
}

func EncodeGenomeRecord(record GenomeRecord) ([]byte, error) {
	return json.Marshal(record)
}

func DecodeGenomeRecord(data []byte) (GenomeRecord, error) {
	var record GenomeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return GenomeRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return GenomeRecord{}, err
	}
	return record, nil
}

func EncodeFitnessHistory(history []float64) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeFitnessHistory(data []byte) ([]float64, error) {
	var history []float64
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func EncodeTelemetry(entries []neat.Telemetry) ([]byte, error) {
	return json.Marshal(entries)
}

func DecodeTelemetry(data []byte) ([]neat.Telemetry, error) {
	var entries []neat.Telemetry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func EncodeSpeciesHistory(history []neat.SpeciesSnapshot) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeSpeciesHistory(data []byte) ([]neat.SpeciesSnapshot, error) {
	var history []neat.SpeciesSnapshot
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func EncodeLineage(lineage []LineageEntry) ([]byte, error) {
	return json.Marshal(lineage)
}

func DecodeLineage(data []byte) ([]LineageEntry, error) {
	var lineage []LineageEntry
	if err := json.Unmarshal(data, &lineage); err != nil {
		return nil, err
	}
	return lineage, nil
}

func checkVersion(v VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
