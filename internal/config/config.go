// Package config loads the arena's initialization parameters from a JWCC
// (JSON-with-comments) file, layering defaults, a global user config, a
// project config file, and explicit overrides.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/heaplattice/heapstore/pkg/arena"
)

// Config carries every arena initialization parameter, plus telemetry and
// sampling knobs that apply after init.
type Config struct {
	GlobalSize   int64    `json:"global_size"`
	HeapSize     int64    `json:"heap_size"`
	DepTablePow  int      `json:"dep_table_pow"`
	HashTablePow int      `json:"hash_table_pow"`
	ShmDirs      []string `json:"shm_dirs,omitempty"`
	ShmMinAvail  int64    `json:"shm_min_avail"`
	LogLevel     int      `json:"log_level"`
	SampleRate   float64  `json:"sample_rate"`
	WorkerCount  int      `json:"worker_count,omitempty"`
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".heapstore.json"

// DefaultConfig returns the configuration used when no file or override
// supplies a value: a modest single-process arena with sampling off.
func DefaultConfig() Config {
	return Config{
		GlobalSize:   1 << 26, // 64 MiB
		HeapSize:     1 << 24, // 16 MiB
		DepTablePow:  16,
		HashTablePow: 16,
		ShmDirs:      []string{"/dev/shm", "/tmp"},
		ShmMinAvail:  1 << 20,
		LogLevel:     0,
		SampleRate:   0,
	}
}

// ToOptions converts Config into the arena.Options Init expects: the two
// power-of-two fields become the corresponding slot/dep capacities, and
// ShmDirs/ShmMinAvail pass through as the anonymous-mapping fallback
// candidates. GlobalSize is informational only: Init sizes the mapping
// from the other three fields directly and GlobalSize is never consulted.
func (c Config) ToOptions() arena.Options {
	return arena.Options{
		Candidates:   c.ShmDirs,
		MinFreeBytes: uint64(c.ShmMinAvail),
		SlotCapacity: uint64(1) << uint(c.HashTablePow),
		DepCapacity:  uint64(1) << uint(c.DepTablePow),
		HeapBytes:    uint64(c.HeapSize),
	}
}

func mergeConfig(base, overlay Config) Config {
	if overlay.GlobalSize != 0 {
		base.GlobalSize = overlay.GlobalSize
	}
	if overlay.HeapSize != 0 {
		base.HeapSize = overlay.HeapSize
	}
	if overlay.DepTablePow != 0 {
		base.DepTablePow = overlay.DepTablePow
	}
	if overlay.HashTablePow != 0 {
		base.HashTablePow = overlay.HashTablePow
	}
	if len(overlay.ShmDirs) > 0 {
		base.ShmDirs = overlay.ShmDirs
	}
	if overlay.ShmMinAvail != 0 {
		base.ShmMinAvail = overlay.ShmMinAvail
	}
	if overlay.LogLevel != 0 {
		base.LogLevel = overlay.LogLevel
	}
	if overlay.SampleRate != 0 {
		base.SampleRate = overlay.SampleRate
	}
	if overlay.WorkerCount != 0 {
		base.WorkerCount = overlay.WorkerCount
	}
	return base
}

func validateConfig(c Config) error {
	if c.HashTablePow <= 0 {
		return errHashTablePow
	}
	if c.DepTablePow <= 0 {
		return errDepTablePow
	}
	if c.HeapSize <= 0 {
		return errHeapSizeZero
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return errSampleRange
	}
	if c.LogLevel < 0 || c.LogLevel > 2 {
		return errLogLevelRange
	}
	return nil
}

// FormatConfig renders cfg as indented JSON.
func FormatConfig(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("config: format: %w", err)
	}
	return string(data), nil
}
