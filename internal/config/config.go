// Package config loads the engine's tuning knobs (buffer pool size,
// replacer history length, B+tree fanout) from a YAML document, the
// same file format the teacher's test fixtures use.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/relstore/relstore/internal/disk"
)

// EngineConfig holds everything needed to bring up a storage engine
// instance: a disk manager, a buffer pool, and a B+tree's fanout.
type EngineConfig struct {
	PageSize        int    `yaml:"page_size"`
	PoolFrames      int    `yaml:"pool_frames"`
	ReplacerK       int    `yaml:"replacer_k"`
	InternalMaxSize uint32 `yaml:"internal_max_size"`
	LeafMaxSize     uint32 `yaml:"leaf_max_size"`
}

// Default returns the engine's built-in tuning, used when no config
// file is given.
func Default() EngineConfig {
	return EngineConfig{
		PageSize:        disk.PageSize,
		PoolFrames:      64,
		ReplacerK:       2,
		InternalMaxSize: 128,
		LeafMaxSize:     128,
	}
}

// Load reads and validates an EngineConfig from a YAML file at path.
// Fields the file leaves out keep their default values; a field the
// file sets explicitly, even to zero, is kept as given.
func Load(path string) (EngineConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return EngineConfig{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that cfg describes a usable engine: a page size
// matching the on-disk layout every page format in this module assumes,
// a strictly positive pool size and replacer K, an internal max size of
// at least 2, and a leaf max size of at least 1.
func (cfg EngineConfig) Validate() error {
	if cfg.PageSize != disk.PageSize {
		return fmt.Errorf("page_size must be %d, got %d", disk.PageSize, cfg.PageSize)
	}
	if cfg.PoolFrames <= 0 {
		return fmt.Errorf("pool_frames must be positive, got %d", cfg.PoolFrames)
	}
	if cfg.ReplacerK <= 0 {
		return fmt.Errorf("replacer_k must be positive, got %d", cfg.ReplacerK)
	}
	if cfg.InternalMaxSize < 2 {
		return fmt.Errorf("internal_max_size must be at least 2, got %d", cfg.InternalMaxSize)
	}
	if cfg.LeafMaxSize < 1 {
		return fmt.Errorf("leaf_max_size must be at least 1, got %d", cfg.LeafMaxSize)
	}
	return nil
}
