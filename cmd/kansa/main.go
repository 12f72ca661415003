// Package main is the kansa CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/hyperjump/kansa/internal/app"
	"github.com/hyperjump/kansa/internal/cli"
	"github.com/hyperjump/kansa/internal/config"
	"github.com/hyperjump/kansa/internal/embedding"
	"github.com/hyperjump/kansa/internal/extract"
	"github.com/hyperjump/kansa/internal/fileid"
	"github.com/hyperjump/kansa/internal/guideline"
	"github.com/hyperjump/kansa/internal/models"
	"github.com/hyperjump/kansa/internal/storage"
	"github.com/hyperjump/kansa/internal/watcher"
	"github.com/hyperjump/kansa/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kansa/config.yaml"

// exitFindings is the exit status of analyze -fail-on-findings when the document is not compliant.
const exitFindings = 2

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory takes precedence if it exists. Returns the config and the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "analyze":
		runAnalyze()
	case "index":
		runIndex()
	case "search":
		runSearch()
	case "rules":
		runRules()
	case "watch":
		runWatch()
	case "history":
		runHistory()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kansa version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// setup loads the config and creates the logger shared by every command.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		exitf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		exitf("Failed to create logger: %v", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.String("mode", cfg.Analysis.Mode))
	return cfg, logger
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseFormat(s)
	if err != nil {
		exitf("%v", err)
	}
	return format
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse sees them. The flag package stops at the
// first non-flag argument, so "kansa analyze note.txt -mode hybrid" would otherwise
// leave -mode unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 1 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// buildQuery joins positional args with spaces so multi-word queries work with or
// without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// textExtractor reads the plain text of a document file.
type textExtractor interface {
	Extract(path string) (string, error)
}

// readDocument builds a therapy document from path, or from stdin when path is "-".
func readDocument(ex textExtractor, stdin io.Reader, path, discipline, documentType string) (models.TherapyDocument, error) {
	doc := models.TherapyDocument{Discipline: discipline, DocumentType: documentType}
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return doc, fmt.Errorf("failed to read stdin: %w", err)
		}
		doc.ID = "stdin:" + fileid.ContentChecksum(data)[:12]
		doc.Text = string(data)
		return doc, nil
	}
	text, err := ex.Extract(path)
	if err != nil {
		return doc, fmt.Errorf("failed to read %s: %w", path, err)
	}
	doc.ID = fileid.DocumentID(path)
	doc.Text = text
	return doc, nil
}

func runAnalyze() {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	mode := fs.String("mode", "", "analysis mode: rules, retrieval or hybrid (default from config)")
	discipline := fs.String("discipline", "", "therapy discipline: pt, ot or slp (default from config)")
	docType := fs.String("type", "", "document type, e.g. progress_note (default: classified or any)")
	maxIterations := fs.Int("max-iterations", 0, "generation budget for retrieval (default from config)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	failOnFindings := fs.Bool("fail-on-findings", false, "exit with status 2 when the document is not compliant")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() != 1 {
		fmt.Println("Usage: kansa analyze [flags] <file|->")
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()
	if *mode != "" {
		cfg.Analysis.Mode = *mode
	}
	if *maxIterations > 0 {
		cfg.Generation.MaxIterations = *maxIterations
	}
	if err := cfg.Validate(); err != nil {
		exitf("Invalid options: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	components, err := app.New(ctx, cfg, logger)
	if err != nil {
		exitf("Failed to initialize: %v", err)
	}
	defer components.Close()

	doc, err := readDocument(components.Extractor, os.Stdin, fs.Arg(0), *discipline, *docType)
	if err != nil {
		exitf("%v", err)
	}
	result, err := components.Service.Analyze(ctx, doc)
	if err != nil {
		exitf("Analysis failed: %v", err)
	}
	components.WriteMetrics()
	if err := cli.WriteResult(os.Stdout, result, format); err != nil {
		exitf("Output failed: %v", err)
	}
	if *failOnFindings && !result.IsCompliant {
		components.Close()
		os.Exit(exitFindings)
	}
}

// openGuidelines loads the guideline index without building the rest of the application.
func openGuidelines(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*guideline.Index, func() error) {
	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		exitf("Failed to create embedder: %v", err)
	}
	index, err := app.OpenGuidelines(ctx, cfg, embedder, extract.NewExtractor(), logger)
	if err != nil {
		_ = embedder.Close()
		exitf("%v", err)
	}
	closeAll := func() error {
		return errors.Join(index.Close(), embedder.Close())
	}
	return index, closeAll
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	rebuild := fs.Bool("rebuild", false, "discard the cached index and rebuild from sources")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()
	if len(cfg.Guidelines.Sources) == 0 {
		exitf("No guideline sources configured (guidelines.sources)")
	}
	if *rebuild {
		if err := os.RemoveAll(cfg.Guidelines.CacheDir); err != nil {
			exitf("Failed to clear guideline cache: %v", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	index, closeAll := openGuidelines(ctx, cfg, logger)
	defer closeAll()

	state := "loaded from cache"
	if index.Rebuilt() {
		state = "rebuilt"
	}
	fmt.Printf("Guideline index %s: %d chunk(s) from %d source(s) in %s\n",
		state, index.Size(), len(cfg.Guidelines.Sources), index.CacheDir())
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	limit := fs.Int("limit", 0, "number of guideline passages (default: guidelines.top_k)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	query := buildQuery(fs.Args())
	if query == "" {
		fmt.Println("Usage: kansa search [flags] <query>")
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()
	k := *limit
	if k <= 0 {
		k = cfg.Guidelines.TopK
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	index, closeAll := openGuidelines(ctx, cfg, logger)
	defer closeAll()

	hits := index.Search(ctx, query, k)
	if err := cli.WriteGuidelineHits(os.Stdout, query, hits, format); err != nil {
		exitf("Output failed: %v", err)
	}
}

func runRules() {
	fs := flag.NewFlagSet("rules", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	check := fs.Bool("check", false, "exit with status 1 when any rule record was rejected")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*outputFormat)

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()

	set, _, err := app.LoadRules(cfg, logger, nil)
	if err != nil {
		exitf("%v", err)
	}
	if err := cli.WriteRules(os.Stdout, set.Rules, set.Problems, format); err != nil {
		exitf("Output failed: %v", err)
	}
	if *check && len(set.Problems) > 0 {
		os.Exit(1)
	}
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	existing := fs.Bool("existing", false, "analyze files already present in the inbox at startup")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	format := parseFormat(*outputFormat)

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()
	dirs := append([]string(nil), cfg.Watch.Directories...)
	for _, arg := range fs.Args() {
		abs, err := filepath.Abs(arg)
		if err != nil {
			exitf("Invalid directory %q: %v", arg, err)
		}
		dirs = append(dirs, abs)
	}
	if len(dirs) == 0 {
		exitf("No inbox directories: set watch.directories or pass them as arguments")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	components, err := app.New(ctx, cfg, logger)
	if err != nil {
		exitf("Failed to initialize: %v", err)
	}
	defer components.Close()

	handler := func(ctx context.Context, path string) {
		doc, err := readDocument(components.Extractor, nil, path, cfg.Watch.Discipline, cfg.Watch.DocumentType)
		if err != nil {
			logger.Warn("Cannot read inbox document", zap.String("path", path), zap.Error(err))
			return
		}
		result, err := components.Service.Analyze(ctx, doc)
		if err != nil {
			logger.Warn("Inbox analysis failed", zap.String("path", path), zap.Error(err))
			return
		}
		components.WriteMetrics()
		if format == cli.OutputText {
			fmt.Printf("== %s\n", path)
		}
		if err := cli.WriteResult(os.Stdout, result, format); err != nil {
			logger.Warn("Output failed", zap.Error(err))
		}
	}

	w := watcher.New(dirs, cfg.Watch.Extensions, cfg.Watch.RecursiveOrDefault(), handler,
		watcher.WithLogger(logger.Named("watcher")))
	if err := w.Start(ctx); err != nil {
		exitf("Failed to start watcher: %v", err)
	}
	if *existing {
		w.SyncExistingFiles()
	}
	logger.Info("Watching inbox", zap.Strings("directories", w.Directories()), zap.String("mode", cfg.Analysis.Mode))

	<-ctx.Done()
	logger.Info("Shutting down...")
	w.Stop()
}

func runHistory() {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	limit := fs.Int("limit", 20, "number of analyses to list")
	offset := fs.Int("offset", 0, "number of analyses to skip")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	format := parseFormat(*outputFormat)

	cfg, logger := setup(*configPath, false)
	defer logger.Sync()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		exitf("Failed to open history: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if fs.NArg() > 0 {
		result, err := store.GetAnalysis(ctx, fs.Arg(0))
		if err != nil {
			exitf("%v", err)
		}
		if err := cli.WriteResult(os.Stdout, result, format); err != nil {
			exitf("Output failed: %v", err)
		}
		return
	}

	records, err := store.ListAnalyses(ctx, *offset, *limit)
	if err != nil {
		exitf("List failed: %v", err)
	}
	total, err := store.CountAnalyses(ctx)
	if err != nil {
		exitf("Count failed: %v", err)
	}
	if err := cli.WriteHistory(os.Stdout, records, total, format); err != nil {
		exitf("Output failed: %v", err)
	}
}

// statusResponse describes the configured components without loading any model.
type statusResponse struct {
	Mode            string `json:"mode"`
	Rules           int    `json:"rules"`
	RuleProblems    int    `json:"rule_problems"`
	RulesError      string `json:"rules_error,omitempty"`
	GuidelineSource int    `json:"guideline_sources"`
	CacheBytes      *int64 `json:"guideline_cache_bytes,omitempty"`
	Analyses        int64  `json:"analyses"`
	Embedding       string `json:"embedding"`
	Generation      string `json:"generation"`
	MaxIterations   int    `json:"max_iterations"`
	DatabasePath    string `json:"database_path"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*outputFormat)

	cfg, logger := setup(*configPath, false)
	defer logger.Sync()

	status := statusResponse{
		Mode:            cfg.Analysis.Mode,
		GuidelineSource: len(cfg.Guidelines.Sources),
		Embedding:       cfg.Embedding.Provider + "/" + cfg.Embedding.Model,
		Generation:      cfg.Generation.Provider + "/" + cfg.Generation.Model,
		MaxIterations:   cfg.Generation.MaxIterations,
		DatabasePath:    cfg.Storage.DatabasePath,
	}
	if set, _, err := app.LoadRules(cfg, zap.NewNop(), nil); err != nil {
		status.RulesError = err.Error()
	} else {
		status.Rules = len(set.Rules)
		status.RuleProblems = len(set.Problems)
	}
	if n, err := storage.DiskUsageBytes(cfg.Guidelines.CacheDir); err == nil {
		status.CacheBytes = &n
	}
	if store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath); err == nil {
		status.Analyses, _ = store.CountAnalyses(context.Background())
		_ = store.Close()
	}

	if format == cli.OutputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			exitf("Output failed: %v", err)
		}
		return
	}
	fmt.Printf("mode:               %s\n", status.Mode)
	if status.RulesError != "" {
		fmt.Printf("rules:              unavailable (%s)\n", status.RulesError)
	} else {
		fmt.Printf("rules:              %d   # %d rejected record(s)\n", status.Rules, status.RuleProblems)
	}
	fmt.Printf("guideline_sources:  %d\n", status.GuidelineSource)
	if status.CacheBytes != nil {
		fmt.Printf("guideline_cache:    %d bytes\n", *status.CacheBytes)
	}
	fmt.Printf("analyses:           %d   # stored in history\n", status.Analyses)
	fmt.Println()
	fmt.Println("# configuration")
	fmt.Printf("embedding:          %s\n", status.Embedding)
	fmt.Printf("generation:         %s\n", status.Generation)
	fmt.Printf("max_iterations:     %d\n", status.MaxIterations)
	fmt.Printf("database_path:      %s\n", status.DatabasePath)
}

func printUsage() {
	fmt.Println(`kansa - Therapy documentation compliance analyzer

Usage:
  kansa analyze [flags] <file|->   Analyze a therapy document (- reads stdin)
  kansa index [flags]              Build or reuse the guideline index
  kansa search [flags] <query>     Search the guideline index
  kansa rules [flags]              List loaded compliance rules and rejected records
  kansa watch [flags] [dir...]     Analyze documents as they arrive in inbox directories
  kansa history [flags] [id]       List past analyses or show one
  kansa status [flags]             Show configuration and store status
  kansa version                    Show version
  kansa help                       Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/kansa/config.yaml, or ./config.yaml if present)
  --debug            Enable debug logging
  --output string    Output format: text or json (default: text)

Analyze Flags:
  --mode string            rules, retrieval or hybrid (default from analysis.mode)
  --discipline string      pt, ot or slp (default from analysis.default_discipline)
  --type string            Document type, e.g. progress_note
  --max-iterations int     Generation budget for the retrieval loop
  --fail-on-findings       Exit with status 2 when findings are reported

Index Flags:
  --rebuild          Discard the cached index first

Search Flags:
  --limit int        Number of passages (default: guidelines.top_k)

Rules Flags:
  --check            Exit with status 1 when any rule record was rejected

Watch Flags:
  --existing         Also analyze files already in the inbox

History Flags:
  --limit int        Number of analyses (default: 20)
  --offset int       Number of analyses to skip

Examples:
  kansa analyze note.txt
  kansa analyze --mode hybrid --discipline ot eval.pdf
  cat note.txt | kansa analyze --output json -
  kansa index --rebuild
  kansa search "maintenance therapy skilled need"
  kansa rules --check
  kansa watch --existing ~/inbox
  kansa history
  kansa status --output json`)
}
