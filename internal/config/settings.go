package config

import (
	"fmt"

	"gopkg.in/ini.v1"
)

// Settings mirrors the evolution settings file. Sections map onto engine
// options at the CLI boundary; zero values mean "use the engine default".
type Settings struct {
	Neat       NeatSettings       `ini:"neat"`
	Genome     GenomeSettings     `ini:"genome"`
	Speciation SpeciationSettings `ini:"speciation"`
	Telemetry  TelemetrySettings  `ini:"telemetry"`
}

type NeatSettings struct {
	PopSize        int     `ini:"pop_size"`
	Elitism        int     `ini:"elitism"`
	Provenance     int     `ini:"provenance"`
	MutationRate   float64 `ini:"mutation_rate"`
	MutationAmount int     `ini:"mutation_amount"`
	Selection      string  `ini:"selection"`
	Equal          bool    `ini:"equal"`
	Growth         float64 `ini:"growth"`
	MaxNodes       int     `ini:"max_nodes"`
	MaxConns       int     `ini:"max_conns"`
	MaxGates       int     `ini:"max_gates"`
	Workers        int     `ini:"workers"`
	Seed           int64   `ini:"seed"`
}

type GenomeSettings struct {
	EnforceAcyclic bool    `ini:"enforce_acyclic"`
	MinHidden      int     `ini:"min_hidden"`
	ReenableProb   float64 `ini:"reenable_prob"`
}

type SpeciationSettings struct {
	Enabled             bool    `ini:"enabled"`
	CompatThreshold     float64 `ini:"compatibility_threshold"`
	ExcessCoefficient   float64 `ini:"excess_coefficient"`
	DisjointCoefficient float64 `ini:"disjoint_coefficient"`
	WeightCoefficient   float64 `ini:"weight_coefficient"`
	TargetSpecies       int     `ini:"target_species"`
	StagnationWindow    int     `ini:"stagnation_window"`
	AgeGrace            int     `ini:"age_grace"`
	AgePenalty          float64 `ini:"age_penalty"`
	KernelSharing       bool    `ini:"kernel_sharing"`
	SharingSigma        float64 `ini:"sharing_sigma"`
}

// TelemetrySettings shapes the per-generation records. Select whitelists
// sections by key; Complexity and Performance are shorthand that add the
// "complexity" and "perf" keys to that whitelist.
type TelemetrySettings struct {
	HistoryLimit    int      `ini:"history_limit"`
	ExtendedHistory bool     `ini:"extended_history"`
	Complexity      bool     `ini:"complexity"`
	Performance     bool     `ini:"performance"`
	Select          []string `ini:"select,omitempty,allowshadow"`
}

// LoadSettings parses an INI settings file.
func LoadSettings(path string) (Settings, error) {
	file, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true}, path)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings %s: %w", path, err)
	}

	var s Settings
	if err := file.Section("neat").MapTo(&s.Neat); err != nil {
		return Settings{}, fmt.Errorf("parse [neat]: %w", err)
	}
	if err := file.Section("genome").MapTo(&s.Genome); err != nil {
		return Settings{}, fmt.Errorf("parse [genome]: %w", err)
	}
	if err := file.Section("speciation").MapTo(&s.Speciation); err != nil {
		return Settings{}, fmt.Errorf("parse [speciation]: %w", err)
	}
	if err := file.Section("telemetry").MapTo(&s.Telemetry); err != nil {
		return Settings{}, fmt.Errorf("parse [telemetry]: %w", err)
	}
	return s, nil
}
