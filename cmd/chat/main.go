package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"lecture-rag/internal/config"
	"lecture-rag/internal/domain"
	"lecture-rag/internal/embedding"
	"lecture-rag/internal/logging"
	"lecture-rag/internal/matcher"
	"lecture-rag/internal/provider"
	"lecture-rag/internal/query"
	"lecture-rag/internal/registry"
	"lecture-rag/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath   string
		scope     string
		lectureID string
		topChunks int
		threshold float64
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/lecture-rag/config.yaml if not provided)")
	flag.StringVar(&scope, "scope", "course", "Chunk matching scope: course (all lectures) or lecture (one lecture)")
	flag.StringVar(&lectureID, "lecture-id", "", "Lecture to scope matching to (required with --scope lecture)")
	flag.IntVar(&topChunks, "top-chunks", 0, "Number of chunk references per answer (overrides config)")
	flag.Float64Var(&threshold, "threshold", -1, "Minimum cosine similarity for a chunk reference, 0 disables filtering (overrides config)")
	flag.Parse()

	log, err := logging.New(os.Getenv("LOG_MODE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	var cfg *config.AppConfig
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}

	if topChunks <= 0 {
		topChunks = cfg.Matching.TopChunks
	}
	threshold = resolveThreshold(threshold, cfg.Matching.Threshold)

	candidates, err := loadCandidates(cfg, scope, lectureID)
	if err != nil {
		log.Fatal("could not load embedded chunks", "error", err)
	}

	reg, err := registry.Open(cfg.Paths.RegistryFile)
	if err != nil {
		log.Fatal("registry open failed", "path", cfg.Paths.RegistryFile, "error", err)
	}
	prov, err := provider.NewClient(provider.Config{
		BaseURL:   cfg.Provider.BaseURL,
		APIKeyEnv: cfg.Provider.APIKeyEnv,
		Model:     cfg.Provider.Model,
		Timeout:   time.Duration(cfg.Provider.TimeoutSecs) * time.Second,
	})
	if err != nil {
		log.Fatal("provider init failed", "error", err)
	}
	queryLog, err := query.NewLogger(cfg.Paths.QueryLogFile)
	if err != nil {
		log.Fatal("query log init failed", "path", cfg.Paths.QueryLogFile, "error", err)
	}

	// Queries still work without local embeddings; answers just
	// carry no chunk references.
	var m domain.Matcher
	if len(candidates) > 0 {
		embedder, err := embedding.NewClient(embedding.Config{
			BaseURL:   cfg.Embedder.BaseURL,
			APIKeyEnv: cfg.Embedder.APIKeyEnv,
			Model:     cfg.Embedder.Model,
			Timeout:   time.Duration(cfg.Embedder.TimeoutSecs) * time.Second,
		})
		if err != nil {
			log.Warn("embedder unavailable, continuing without chunk matching", "error", err)
		} else {
			cm := matcher.New(embedder, candidates)
			log.Info("chunk matcher ready", "candidates", cm.CandidateCount())
			m = cm
		}
	} else {
		log.Warn("no embedded chunks found, answers will carry no chunk references", "dir", cfg.Chunking.OutputDir)
	}

	engine := query.NewEngine(query.Config{
		Registry:  reg,
		Provider:  prov,
		Matcher:   m,
		QueryLog:  queryLog,
		Log:       log,
		Institute: cfg.Course.Institute,
		Course:    cfg.Course.Course,
		Model:     cfg.Provider.Model,
		TopK:      topChunks,
		Threshold: threshold,
		Timeout:   time.Duration(cfg.Provider.QueryTimeoutSecs) * time.Second,
	})

	program := tea.NewProgram(tui.New(engine, cfg.Course.Institute, cfg.Course.Course), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		log.Fatal("chat session failed", "error", err)
	}
}

// resolveThreshold keeps an explicit --threshold 0 meaningful: only
// the negative sentinel falls back to the configured value.
func resolveThreshold(flagValue, configValue float64) float64 {
	if flagValue < 0 {
		return configValue
	}
	return flagValue
}

func loadCandidates(cfg *config.AppConfig, scope, lectureID string) ([]domain.CachedChunk, error) {
	switch scope {
	case "course":
		return embedding.LoadCourse(cfg.Chunking.OutputDir)
	case "lecture":
		if lectureID == "" {
			return nil, fmt.Errorf("%w: --scope lecture requires --lecture-id", domain.ErrConfiguration)
		}
		return embedding.LoadCollection(filepath.Join(cfg.Chunking.OutputDir, lectureID+"_chunks"))
	default:
		return nil, fmt.Errorf("%w: unknown scope %q (want course or lecture)", domain.ErrConfiguration, scope)
	}
}
