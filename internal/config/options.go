// Package config holds the engine's open-time configuration (spec §6).
// Precedence, low to high: built-in defaults < optional YAML file <
// explicit Options set by the caller/CLI flags.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Options mirrors every key spec §6 lists as "recognized at open."
type Options struct {
	DataDir    string `yaml:"data_dir"`
	SingleFile bool   `yaml:"single_file"`

	ReadOnly        bool    `yaml:"read_only"`
	CreateIfMissing bool    `yaml:"create_if_missing"`
	WALSize         int64   `yaml:"wal_size"`
	AutoCheckpoint  bool    `yaml:"auto_checkpoint"`
	CheckpointRatio float64 `yaml:"checkpoint_threshold"`

	LockFile        bool `yaml:"lock_file"`
	RequireLocking  bool `yaml:"require_locking"`

	MVCC bool `yaml:"mvcc"`

	GCIntervalMs   int64 `yaml:"gc_interval_ms"`
	GCRetentionMs  int64 `yaml:"gc_retention_ms"`
	GCMaxChainDepth int  `yaml:"gc_max_chain_depth"`

	CacheEnabled bool `yaml:"cache_enabled"`

	// Vector* configures internal/vectorstore (spec §4.10). VectorDimensions
	// of 0 leaves the store unconfigured until the first SetNodeVector call,
	// which fixes the dimensionality from that call's vector length.
	VectorDimensions         uint32  `yaml:"vector_dimensions"`
	VectorMetric             string  `yaml:"vector_metric"` // "cosine" | "l2" | "dot"
	VectorRowGroupSize       uint32  `yaml:"vector_row_group_size"`
	VectorFragmentTargetSize uint32  `yaml:"vector_fragment_target_size"`
	VectorNormalize          bool    `yaml:"vector_normalize"`
}

// Default returns the engine's built-in defaults.
func Default() Options {
	return Options{
		CreateIfMissing: true,
		WALSize:         64 << 20, // 64 MiB cap on a transaction's staged WAL bytes; past it Stage fails with WAL_BUFFER_FULL and no checkpoint is forced
		AutoCheckpoint:  true,
		CheckpointRatio: 0.5,
		LockFile:        true,
		RequireLocking:  true,
		MVCC:            true,
		GCIntervalMs:    30_000,
		GCRetentionMs:   5 * 60_000,
		GCMaxChainDepth: 64,

		VectorMetric:             "cosine",
		VectorRowGroupSize:       1024,
		VectorFragmentTargetSize: 64 << 10,
	}
}

// LoadFile reads a YAML config file and overlays it onto Default().
func LoadFile(path string) (Options, error) {
	opts := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &opts); err != nil {
		return opts, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return opts, nil
}

// Validate checks internal consistency of the options.
func (o Options) Validate() error {
	if o.CheckpointRatio <= 0 || o.CheckpointRatio > 1 {
		return fmt.Errorf("config: checkpoint_threshold must be in (0,1], got %v", o.CheckpointRatio)
	}
	if o.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	if o.WALSize <= 0 {
		return fmt.Errorf("config: wal_size must be positive")
	}
	if o.VectorDimensions > 0 {
		switch o.VectorMetric {
		case "cosine", "l2", "dot":
		default:
			return fmt.Errorf("config: vector_metric must be one of cosine|l2|dot, got %q", o.VectorMetric)
		}
		if o.VectorRowGroupSize == 0 {
			return fmt.Errorf("config: vector_row_group_size must be positive")
		}
		if o.VectorFragmentTargetSize == 0 {
			return fmt.Errorf("config: vector_fragment_target_size must be positive")
		}
	}
	return nil
}
