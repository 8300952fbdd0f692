package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"lecture-rag/internal/config"
	"lecture-rag/internal/logging"
	"lecture-rag/internal/provider"
	"lecture-rag/internal/query"
	"lecture-rag/internal/registry"
)

const usage = `Usage: stores [--config path] <command> [args]

Commands:
  list                                    List all remote document stores
  docs <store_id>                         List documents in a store
  delete <store_id>                       Delete a store and its registry entries
  delete-all                              Delete every remote store (asks for confirmation)
  registry                                Show the local store registry
  register <institute> <course> <id>      Point a course at an existing store
  clear-registry                          Remove every registry entry (asks for confirmation)
  log [n]                                 Show the n most recent queries (default 10)
  log-stats                               Show query log statistics
  clear-log                               Remove the query log
`

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

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

	reg, err := registry.Open(cfg.Paths.RegistryFile)
	if err != nil {
		log.Fatal("registry open failed", "path", cfg.Paths.RegistryFile, "error", err)
	}

	ctx := context.Background()
	cmd, rest := args[0], args[1:]

	// Registry and log commands do not need provider credentials.
	switch cmd {
	case "registry":
		exit(runRegistry(reg))
	case "register":
		exit(runRegister(reg, rest))
	case "clear-registry":
		exit(runClearRegistry(reg))
	case "log":
		exit(runLog(cfg.Paths.QueryLogFile, rest))
	case "log-stats":
		exit(runLogStats(cfg.Paths.QueryLogFile))
	case "clear-log":
		exit(runClearLog(cfg.Paths.QueryLogFile))
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

	switch cmd {
	case "list":
		exit(runList(ctx, prov))
	case "docs":
		exit(runDocs(ctx, prov, rest))
	case "delete":
		exit(runDelete(ctx, prov, reg, rest))
	case "delete-all":
		exit(runDeleteAll(ctx, prov, reg))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		flag.Usage()
		os.Exit(2)
	}
}

func exit(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func runList(ctx context.Context, prov *provider.Client) error {
	stores, err := prov.ListStores(ctx)
	if err != nil {
		return err
	}
	if len(stores) == 0 {
		fmt.Println("No document stores found.")
		return nil
	}
	for _, s := range stores {
		fmt.Printf("%s  %-30s  %d active document(s)\n", s.ID, s.DisplayName, s.ActiveDocuments)
	}
	return nil
}

func runDocs(ctx context.Context, prov *provider.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: stores docs <store_id>")
	}
	docs, err := prov.ListDocuments(ctx, args[0])
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("Store has no documents.")
		return nil
	}
	for _, d := range docs {
		fmt.Printf("%-12s  %s\n", d.State, d.Name)
	}
	return nil
}

func runDelete(ctx context.Context, prov *provider.Client, reg *registry.Registry, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: stores delete <store_id>")
	}
	storeID := args[0]
	if err := prov.DeleteStore(ctx, storeID); err != nil {
		return err
	}
	removed, err := reg.RemoveByStoreID(storeID)
	if err != nil {
		return fmt.Errorf("store deleted, but registry cleanup failed: %w", err)
	}
	fmt.Printf("Deleted store %s (%d registry entr%s removed).\n", storeID, removed, plural(removed, "y", "ies"))
	return nil
}

func runDeleteAll(ctx context.Context, prov *provider.Client, reg *registry.Registry) error {
	stores, err := prov.ListStores(ctx)
	if err != nil {
		return err
	}
	if len(stores) == 0 {
		fmt.Println("No document stores to delete.")
		return nil
	}
	fmt.Printf("This will delete %d store(s) and cannot be undone.\n", len(stores))
	if !confirm("Type DELETE ALL to proceed: ", "DELETE ALL") {
		fmt.Println("Aborted.")
		return nil
	}
	for _, s := range stores {
		if err := prov.DeleteStore(ctx, s.ID); err != nil {
			return fmt.Errorf("deleting %s: %w", s.ID, err)
		}
		if _, err := reg.RemoveByStoreID(s.ID); err != nil {
			return fmt.Errorf("registry cleanup for %s: %w", s.ID, err)
		}
		fmt.Printf("Deleted %s (%s).\n", s.ID, s.DisplayName)
	}
	return nil
}

func runRegistry(reg *registry.Registry) error {
	records, err := reg.List()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("Registry is empty.")
		return nil
	}
	for _, r := range records {
		fmt.Printf("%-20s  %-25s  %s  (registered %s)\n",
			r.Institute, r.Course, r.StoreID, r.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runRegister(reg *registry.Registry, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: stores register <institute> <course> <store_id>")
	}
	rec, err := reg.Register(args[0], args[1], args[2])
	if err != nil {
		return err
	}
	fmt.Printf("Registered %s / %s -> %s\n", rec.Institute, rec.Course, rec.StoreID)
	return nil
}

func runClearRegistry(reg *registry.Registry) error {
	if !confirm("Type CLEAR to remove every registry entry: ", "CLEAR") {
		fmt.Println("Aborted.")
		return nil
	}
	if err := reg.Clear(); err != nil {
		return err
	}
	fmt.Println("Registry cleared.")
	return nil
}

func runLog(path string, args []string) error {
	n := 10
	if len(args) == 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return fmt.Errorf("usage: stores log [n]")
		}
		n = v
	} else if len(args) > 1 {
		return fmt.Errorf("usage: stores log [n]")
	}
	queryLog, err := query.NewLogger(path)
	if err != nil {
		return err
	}
	records, err := queryLog.Recent(n)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("Query log is empty.")
		return nil
	}
	for _, r := range records {
		fmt.Printf("[%s] %s / %s (%.2fs)\n  Q: %s\n  A: %s\n",
			r.Timestamp.Format("2006-01-02 15:04:05"), r.Institute, r.Course,
			r.ResponseSeconds, r.Query, firstLine(r.Answer))
	}
	return nil
}

func runLogStats(path string) error {
	queryLog, err := query.NewLogger(path)
	if err != nil {
		return err
	}
	stats, err := queryLog.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("Total queries:     %d\n", stats.TotalQueries)
	fmt.Printf("Avg response time: %.2fs\n", stats.AvgResponseSeconds)
	fmt.Printf("Courses queried:   %s\n", strings.Join(stats.Courses, ", "))
	return nil
}

func runClearLog(path string) error {
	queryLog, err := query.NewLogger(path)
	if err != nil {
		return err
	}
	if !confirm("Type CLEAR to remove the query log: ", "CLEAR") {
		fmt.Println("Aborted.")
		return nil
	}
	if err := queryLog.Clear(); err != nil {
		return err
	}
	fmt.Println("Query log cleared.")
	return nil
}

func confirm(prompt, expected string) bool {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(line) == expected
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
