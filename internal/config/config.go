package config

import "log"

// Config carries the process-level knobs that genome and engine construction
// read. It is threaded explicitly through constructors so tests stay
// independent; there is no package-level mutable singleton.
type Config struct {
	// Warnings enables soft warnings for no-op conditions such as unknown
	// mutation operators or empty candidate sets.
	Warnings bool

	// Float32Weights rounds every activation through float32 precision,
	// matching evaluation behavior on reduced-precision backends.
	Float32Weights bool

	// NodePooling recycles removed nodes through an arena free list.
	NodePooling bool

	// SlabPooling recycles released slab arrays through the typed-array pool.
	SlabPooling bool

	// PoolMaxPerKey bounds the retained arrays per (kind, length) pool key.
	PoolMaxPerKey int

	// DeterministicChainMode forces the add-node operator to always extend
	// one canonical input-to-output chain. Used to verify exact depth growth.
	DeterministicChainMode bool

	// SlabGrowthFactor is the geometric capacity growth applied when a slab
	// rebuild needs more room than the current allocation provides.
	SlabGrowthFactor float64

	// AsyncChunkSize is the default connection count processed per slice of
	// a cooperative slab rebuild.
	AsyncChunkSize int

	// Logf receives soft warnings when Warnings is set. Defaults to
	// log.Printf when nil.
	Logf func(format string, args ...any)
}

// Default returns the configuration used when callers pass nil. Pooling is an
// opt-in; both pools stay off until enabled.
func Default() *Config {
	return &Config{
		Warnings:         false,
		PoolMaxPerKey:    4,
		SlabGrowthFactor: 2.0,
		AsyncChunkSize:   512,
	}
}

// Warnf emits a soft warning when warnings are enabled.
func (c *Config) Warnf(format string, args ...any) {
	if c == nil || !c.Warnings {
		return
	}
	logf := c.Logf
	if logf == nil {
		logf = log.Printf
	}
	logf("warn: "+format, args...)
}

// OrDefault returns c, or the default configuration when c is nil.
func (c *Config) OrDefault() *Config {
	if c == nil {
		return Default()
	}
	if c.PoolMaxPerKey <= 0 {
		c.PoolMaxPerKey = 4
	}
	if c.SlabGrowthFactor <= 1 {
		c.SlabGrowthFactor = 2.0
	}
	if c.AsyncChunkSize <= 0 {
		c.AsyncChunkSize = 512
	}
	return c
}
