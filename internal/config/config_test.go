package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/relstore/relstore/internal/disk"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() failed validation: %v", err)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	body := "pool_frames: 16\nreplacer_k: 3\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PoolFrames != 16 {
		t.Errorf("pool_frames = %d, want 16", cfg.PoolFrames)
	}
	if cfg.ReplacerK != 3 {
		t.Errorf("replacer_k = %d, want 3", cfg.ReplacerK)
	}
	if cfg.PageSize != disk.PageSize {
		t.Errorf("page_size = %d, want the default %d", cfg.PageSize, disk.PageSize)
	}
	if cfg.InternalMaxSize != Default().InternalMaxSize {
		t.Errorf("internal_max_size = %d, want the default %d", cfg.InternalMaxSize, Default().InternalMaxSize)
	}
}

func TestLoad_RejectsWrongPageSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	if err := os.WriteFile(path, []byte("page_size: 512\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to reject a page_size that doesn't match disk.PageSize")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error loading a missing file")
	}
}

func TestValidate_RejectsNonPositiveFields(t *testing.T) {
	cases := []struct {
		name string
		cfg  EngineConfig
	}{
		{"pool_frames", EngineConfig{PageSize: disk.PageSize, PoolFrames: 0, ReplacerK: 1, InternalMaxSize: 2, LeafMaxSize: 1}},
		{"replacer_k", EngineConfig{PageSize: disk.PageSize, PoolFrames: 1, ReplacerK: 0, InternalMaxSize: 2, LeafMaxSize: 1}},
		{"internal_max_size", EngineConfig{PageSize: disk.PageSize, PoolFrames: 1, ReplacerK: 1, InternalMaxSize: 1, LeafMaxSize: 1}},
		{"leaf_max_size", EngineConfig{PageSize: disk.PageSize, PoolFrames: 1, ReplacerK: 1, InternalMaxSize: 2, LeafMaxSize: 0}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if err := c.cfg.Validate(); err == nil {
				t.Fatalf("expected %s to fail validation", c.name)
			}
		})
	}
}
