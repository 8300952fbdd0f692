package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Chunking.IntervalSecs != 30 {
		t.Errorf("expected default chunk interval 30, got %d", cfg.Chunking.IntervalSecs)
	}
	if cfg.Matching.TopChunks != 3 {
		t.Errorf("expected default top chunks 3, got %d", cfg.Matching.TopChunks)
	}
	if cfg.Provider.APIKeyEnv != "RAG_PROVIDER_API_KEY" {
		t.Errorf("unexpected default api key env %q", cfg.Provider.APIKeyEnv)
	}
}

func TestSaveAndLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Course.Institute = "MIT"
	cfg.Course.Course = "CS101"
	cfg.Chunking.IntervalSecs = 45

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Course.Institute != "MIT" || loaded.Course.Course != "CS101" {
		t.Errorf("course not preserved: %+v", loaded.Course)
	}
	if loaded.Chunking.IntervalSecs != 45 {
		t.Errorf("expected interval 45, got %d", loaded.Chunking.IntervalSecs)
	}
}

func TestLoad_PartialFileGetsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "course:\n  institute: ETH\n  course: PHYS1\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Course.Institute != "ETH" {
		t.Errorf("expected institute ETH, got %q", cfg.Course.Institute)
	}
	if cfg.Embedder.Model != "text-embedding-3-small" {
		t.Errorf("expected default embedder model, got %q", cfg.Embedder.Model)
	}
}
