// Package config loads and defaults the daemon's config.json (§6).
package config

import (
	"encoding/json"
	"hash/fnv"
	"os"
	"path/filepath"

	"dario.cat/mergo"
)

// IndexingConfig holds the indexing batch settings (§6). They are read from
// config.json's top-level "indexing" object, not from a nested
// daemon.services.indexing path.
type IndexingConfig struct {
	BatchSize     int `json:"batch_size"`
	BatchTimeoutS int `json:"batch_timeout_s"`
}

// SessionContinuityConfig holds the bridge settings (§6). They are read from
// config.json's top-level "sessionContinuity" object, not from a nested
// daemon.services.sessionContinuity path.
type SessionContinuityConfig struct {
	BridgeRetentionDays int  `json:"bridgeRetentionDays"`
	AutoHandoff         bool `json:"autoHandoff"`
}

// RhythmPattern names a contemplation cadence (§6, open question 1). The
// value is loaded and defaulted, but nothing reads it: the daemon schedules
// the contemplation cycle at IntervalMs whatever the pattern.
type RhythmPattern string

const (
	RhythmNatural     RhythmPattern = "natural"
	RhythmFocused     RhythmPattern = "focused"
	RhythmExploratory RhythmPattern = "exploratory"
)

// ContemplationConfig holds the contemplation settings (§6). They are read
// from config.json's top-level "contemplation" object, not from a nested
// consciousness.contemplationIntegration path.
type ContemplationConfig struct {
	IntervalMs    int           `json:"intervalMs"`
	RhythmPattern RhythmPattern `json:"rhythmPattern"`
	DepthLevel    float64       `json:"depthLevel"`
}

// SchedulerConfig maps scheduler.* (§6).
type SchedulerConfig struct {
	MaxWorkers int `json:"max_workers"`
}

// StorageConfig maps storage.* (§6).
type StorageConfig struct {
	ChromaDimensions int `json:"chroma_dimensions"`
}

// Config is the root config.json shape.
type Config struct {
	HomeDir          string                  `json:"home_dir"`
	Indexing         IndexingConfig          `json:"indexing"`
	SessionContinuity SessionContinuityConfig `json:"sessionContinuity"`
	Contemplation    ContemplationConfig     `json:"contemplation"`
	Scheduler        SchedulerConfig         `json:"scheduler"`
	Storage          StorageConfig           `json:"storage"`
}

// DefaultConfig returns the spec's documented defaults (§6).
func DefaultConfig() *Config {
	return &Config{
		HomeDir: defaultHomeDir(),
		Indexing: IndexingConfig{
			BatchSize:     10,
			BatchTimeoutS: 5,
		},
		SessionContinuity: SessionContinuityConfig{
			BridgeRetentionDays: 30,
			AutoHandoff:         true,
		},
		Contemplation: ContemplationConfig{
			IntervalMs:    300000,
			RhythmPattern: RhythmNatural,
			DepthLevel:    0.5,
		},
		Scheduler: SchedulerConfig{
			MaxWorkers: 4,
		},
		Storage: StorageConfig{
			ChromaDimensions: 768,
		},
	}
}

func defaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".memoryd"
	}
	return filepath.Join(home, ".memoryd")
}

// LoadResult distinguishes "loaded an existing file" from "bootstrapped
// defaults because none existed yet."
type LoadResult struct {
	Config       *Config
	SourcePath   string
	Bootstrapped bool
	// Generation identifies this config's content for the Storage
	// Orchestrator's at-most-once extraction guarantee (§4.5): it changes
	// whenever config.json's bytes change, so a reconfiguration opens a
	// fresh extraction window for every (source_id, content_hash) pair.
	Generation int
}

// generationOf derives a stable, small config generation id from raw
// config bytes.
func generationOf(data []byte) int {
	h := fnv.New32a()
	h.Write(data)
	return int(h.Sum32())
}

// isMinimalJSON treats empty/unparseable content as "nothing here yet" so
// callers can tell a fresh bootstrap from a real load.
func isMinimalJSON(data []byte) bool {
	var v map[string]any
	if err := json.Unmarshal(data, &v); err != nil {
		return true
	}
	return len(v) == 0
}

// Load reads path, merging defaults over anything the file leaves unset via
// mergo, matching the teacher daemon's config-bootstrap pattern. If path
// does not exist, defaults are written there and Bootstrapped is true.
func Load(path string) (*LoadResult, error) {
	defaults := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		defaultData, marshalErr := json.Marshal(defaults)
		if marshalErr != nil {
			return nil, marshalErr
		}
		if writeErr := writeJSON(path, defaults); writeErr != nil {
			return nil, writeErr
		}
		return &LoadResult{Config: defaults, SourcePath: path, Bootstrapped: true, Generation: generationOf(defaultData)}, nil
	}
	if err != nil {
		return nil, err
	}

	bootstrapped := isMinimalJSON(data)

	loaded := &Config{}
	if !bootstrapped {
		if err := json.Unmarshal(data, loaded); err != nil {
			return nil, err
		}
	}

	if err := mergo.Merge(loaded, defaults); err != nil {
		return nil, err
	}

	return &LoadResult{Config: loaded, SourcePath: path, Bootstrapped: bootstrapped, Generation: generationOf(data)}, nil
}

func writeJSON(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
