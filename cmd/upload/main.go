package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"lecture-rag/internal/chunker"
	"lecture-rag/internal/config"
	"lecture-rag/internal/embedding"
	"lecture-rag/internal/logging"
	"lecture-rag/internal/provider"
	"lecture-rag/internal/registry"
	"lecture-rag/internal/storemanager"
	"lecture-rag/internal/transcript"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath       string
		lectureID     string
		transcriptArg string
		formatArg     string
		chunkInterval int
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/lecture-rag/config.yaml if not provided)")
	flag.StringVar(&lectureID, "lecture-id", "", "Unique identifier for the lecture (auto-generated if omitted)")
	flag.StringVar(&transcriptArg, "transcript", "", "Path to transcript file (.vtt, .txt, or .csv)")
	flag.StringVar(&formatArg, "format", "auto", "Transcript format: auto, vtt, txt, or csv")
	flag.IntVar(&chunkInterval, "chunk-interval", 0, "Chunk interval in seconds (overrides config)")
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

	if transcriptArg == "" {
		log.Fatal("no transcript file specified (use --transcript)")
	}
	format, err := transcript.ParseFormat(formatArg)
	if err != nil {
		log.Fatal("invalid format", "error", err)
	}
	interval := cfg.Chunking.IntervalSecs
	if chunkInterval > 0 {
		interval = chunkInterval
	}
	if lectureID == "" {
		lectureID = autoLectureID(cfg.Course.Course, transcriptArg)
		log.Info("auto-generated lecture id", "lecture_id", lectureID)
	}

	content, err := os.ReadFile(transcriptArg)
	if err != nil {
		log.Fatal("could not read transcript", "path", transcriptArg, "error", err)
	}
	utterances, err := transcript.Parse(string(content), format)
	if err != nil {
		log.Fatal("transcript parse failed", "path", transcriptArg, "error", err)
	}
	log.Info("transcript parsed", "utterances", len(utterances))

	chunks := chunker.NewWindowChunker(interval).Chunk(utterances, lectureID)
	if len(chunks) == 0 {
		log.Fatal("transcript produced no chunks")
	}
	log.Info("chunking complete", "chunks", len(chunks), "interval_secs", interval)

	chunkDir := filepath.Join(cfg.Chunking.OutputDir, lectureID+"_chunks")
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		log.Fatal("could not create chunk directory", "dir", chunkDir, "error", err)
	}
	docs := make([]storemanager.Document, 0, len(chunks))
	for _, ch := range chunks {
		path := filepath.Join(chunkDir, ch.DocumentName())
		if err := os.WriteFile(path, []byte(ch.Text), 0o644); err != nil {
			log.Fatal("could not write chunk file", "path", path, "error", err)
		}
		docs = append(docs, storemanager.Document{Name: ch.DocumentName(), Content: []byte(ch.Text)})
	}

	ctx := context.Background()

	embedder, err := embedding.NewClient(embedding.Config{
		BaseURL:   cfg.Embedder.BaseURL,
		APIKeyEnv: cfg.Embedder.APIKeyEnv,
		Model:     cfg.Embedder.Model,
		Timeout:   time.Duration(cfg.Embedder.TimeoutSecs) * time.Second,
	})
	if err != nil {
		log.Fatal("embedder init failed", "error", err)
	}
	store := embedding.NewStore(chunkDir, embedder, cfg.Embedder.BatchSize, log)
	vectors, err := store.EnsureEmbedded(ctx, chunks)
	if err != nil {
		// cached and newly persisted chunks stay queryable
		log.Warn("some chunks could not be embedded", "embedded", len(vectors), "total", len(chunks), "error", err)
	} else {
		log.Info("embeddings ensured", "vectors", len(vectors))
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
	reg, err := registry.Open(cfg.Paths.RegistryFile)
	if err != nil {
		log.Fatal("registry open failed", "path", cfg.Paths.RegistryFile, "error", err)
	}

	manager := storemanager.New(prov, log, storemanager.Options{
		PollInterval: time.Duration(cfg.Provider.PollIntervalSecs) * time.Second,
		MaxWait:      time.Duration(cfg.Provider.MaxUploadWaitSecs) * time.Second,
		MaxAttempts:  cfg.Provider.MaxUploadAttempts,
	})

	// Use the registered store when one exists. On a registry miss,
	// search the provider by display name before creating, so a run
	// whose uploads all failed can be retried against the same store.
	// Registration waits until an upload goes ACTIVE.
	storeID := ""
	needsRegistration := false
	if rec, err := reg.Lookup(cfg.Course.Institute, cfg.Course.Course); err == nil {
		storeID = rec.StoreID
		log.Info("using registered store", "store_id", storeID)
	} else {
		displayName := storeDisplayName(cfg.Course.Institute, cfg.Course.Course)
		info, _, err := manager.EnsureStore(ctx, displayName)
		if err != nil {
			log.Fatal("store resolution failed", "error", err)
		}
		storeID = info.ID
		needsRegistration = true
	}

	results := manager.UploadDocuments(ctx, storeID, docs)

	succeeded, failed := 0, 0
	for _, r := range results {
		if r.State == storemanager.StateActive {
			succeeded++
			continue
		}
		failed++
		log.Error("document not uploaded", "document", r.Document, "state", r.State, "error", r.Err)
	}
	log.Info("upload finished", "succeeded", succeeded, "failed", failed)

	if succeeded > 0 && needsRegistration {
		rec, err := reg.GetOrCreate(cfg.Course.Institute, cfg.Course.Course, func() (string, error) {
			return storeID, nil
		})
		if err != nil {
			log.Fatal("registry update failed", "error", err)
		}
		log.Info("store registered", "institute", rec.Institute, "course", rec.Course, "store_id", rec.StoreID)
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func autoLectureID(course, transcriptPath string) string {
	base := strings.TrimSuffix(filepath.Base(transcriptPath), filepath.Ext(transcriptPath))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, base)
	prefix := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(course), " ", "-"))
	if prefix == "" {
		prefix = "lecture"
	}
	return fmt.Sprintf("%s_%s_%s", prefix, base, uuid.NewString()[:8])
}

func storeDisplayName(institute, course string) string {
	if strings.TrimSpace(institute) == "" {
		return course + "_RAG"
	}
	return institute + "_" + course + "_RAG"
}
