package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProviderConfig configures the remote RAG provider.
type ProviderConfig struct {
	BaseURL           string `yaml:"base_url"`
	APIKeyEnv         string `yaml:"api_key_env"`
	Model             string `yaml:"model"`
	TimeoutSecs       int    `yaml:"timeout_secs"`
	MaxUploadWaitSecs int    `yaml:"max_upload_wait_secs"`
	PollIntervalSecs  int    `yaml:"poll_interval_secs"`
	MaxUploadAttempts int    `yaml:"max_upload_attempts"`
	QueryTimeoutSecs  int    `yaml:"query_timeout_secs"`
}

// EmbedderConfig configures the OpenAI-compatible embedding service.
type EmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// ChunkingConfig configures transcript windowing.
type ChunkingConfig struct {
	IntervalSecs int    `yaml:"interval_secs"`
	OutputDir    string `yaml:"output_dir"`
}

// CourseConfig identifies the course all operations apply to.
type CourseConfig struct {
	Institute string `yaml:"institute"`
	Course    string `yaml:"course"`
}

// MatchingConfig tunes answer-to-chunk matching.
type MatchingConfig struct {
	TopChunks int     `yaml:"top_chunks"`
	Threshold float64 `yaml:"threshold"`
}

// PathsConfig locates the shared persisted files.
type PathsConfig struct {
	RegistryFile string `yaml:"registry_file"`
	QueryLogFile string `yaml:"query_log_file"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Provider ProviderConfig `yaml:"provider"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Chunking ChunkingConfig `yaml:"chunking"`
	Course   CourseConfig   `yaml:"course"`
	Matching MatchingConfig `yaml:"matching"`
	Paths    PathsConfig    `yaml:"paths"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/lecture-rag/config.yaml.
// If neither exists, it writes defaults to ~/.config/lecture-rag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "lecture-rag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Provider.APIKeyEnv == "" {
		cfg.Provider.APIKeyEnv = "RAG_PROVIDER_API_KEY"
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = "rag-answer-1"
	}
	if cfg.Provider.TimeoutSecs == 0 {
		cfg.Provider.TimeoutSecs = 60
	}
	if cfg.Provider.MaxUploadWaitSecs == 0 {
		cfg.Provider.MaxUploadWaitSecs = 300
	}
	if cfg.Provider.PollIntervalSecs == 0 {
		cfg.Provider.PollIntervalSecs = 2
	}
	if cfg.Provider.MaxUploadAttempts == 0 {
		cfg.Provider.MaxUploadAttempts = 4
	}
	if cfg.Provider.QueryTimeoutSecs == 0 {
		cfg.Provider.QueryTimeoutSecs = 120
	}
	if cfg.Embedder.APIKeyEnv == "" {
		cfg.Embedder.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedder.Model == "" {
		cfg.Embedder.Model = "text-embedding-3-small"
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = 30
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 32
	}
	if cfg.Chunking.IntervalSecs == 0 {
		cfg.Chunking.IntervalSecs = 30
	}
	if cfg.Chunking.OutputDir == "" {
		cfg.Chunking.OutputDir = "chunks"
	}
	if cfg.Matching.TopChunks == 0 {
		cfg.Matching.TopChunks = 3
	}
	if cfg.Matching.Threshold == 0 {
		cfg.Matching.Threshold = 0.3
	}
	if cfg.Paths.RegistryFile == "" {
		cfg.Paths.RegistryFile = "store_registry.json"
	}
	if cfg.Paths.QueryLogFile == "" {
		cfg.Paths.QueryLogFile = "query_log.jsonl"
	}
}
