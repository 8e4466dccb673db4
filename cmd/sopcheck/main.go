// File path: cmd/sopcheck/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/auditkit/sopcheck/internal/api"
	"github.com/auditkit/sopcheck/internal/common"
	"github.com/auditkit/sopcheck/internal/extractor"
	"github.com/auditkit/sopcheck/internal/indexer"
	"github.com/auditkit/sopcheck/internal/llm"
	"github.com/auditkit/sopcheck/internal/pipeline"
	"github.com/auditkit/sopcheck/internal/reasoner"
	"github.com/auditkit/sopcheck/internal/render"
	"github.com/auditkit/sopcheck/internal/retriever"
	"github.com/auditkit/sopcheck/internal/sop"
	"github.com/auditkit/sopcheck/internal/sqlite"
	"github.com/auditkit/sopcheck/internal/vector"
)

func main() {
	logger := common.Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := godotenv.Load(); err != nil {
		logger.Warn("sopcheck: .env file not loaded", "error", err)
	} else {
		logger.Info("sopcheck: environment loaded from .env")
	}

	sopPath := flag.String("sop", "", "path to the SOP text file to evaluate")
	regulatory := flag.String("regulatory", "", "regulatory corpus: a directory or comma-separated text files")
	mode := flag.String("mode", pipeline.ModeFull, "run mode: full (re-extract and index) or incremental (reuse index)")
	outDir := flag.String("out", "out", "directory for the rendered report")
	dbPath := flag.String("db", "", "path to the SQLite catalog database (overrides SOPCHECK_DB_PATH)")
	storeKind := flag.String("store", defaultStoreKind(), "vector index backend: sqlite or chroma")
	serveAddr := flag.String("serve", "", "listen address; when set, serve the HTTP API instead of running once")
	flag.Parse()

	cfg, err := pipeline.LoadConfig()
	if err != nil {
		logger.Error("sopcheck: pipeline config load failed", "error", err)
		fmt.Println("config error:", err)
		os.Exit(1)
	}

	store, catalog, err := openStore(ctx, *storeKind, *dbPath)
	if err != nil {
		logger.Error("sopcheck: vector store unavailable", "backend", *storeKind, "error", err)
		fmt.Println("store error:", err)
		os.Exit(1)
	}
	defer store.Close()

	provider := llm.NewProvider()
	logger.Info("sopcheck: llm provider ready", "provider", provider.Name())

	extractorOpts := []extractor.Option{}
	if strings.HasPrefix(provider.Name(), "openai") {
		extractorOpts = append(extractorOpts, extractor.WithClassifier(extractor.NewLLMClassifier(provider)))
	} else {
		logger.Warn("sopcheck: no reasoning model configured; clause classification disabled")
	}

	runner := pipeline.NewRunner(
		sop.NewSegmenter(),
		extractor.New(extractorOpts...),
		indexer.New(store, provider),
		retriever.New(store, provider, cfg.Floor(), cfg.TopK),
		reasoner.New(provider),
		store,
		cfg.Workers,
	)

	if trimmed := strings.TrimSpace(*serveAddr); trimmed != "" {
		serve(trimmed, runner)
		return
	}

	if strings.TrimSpace(*sopPath) == "" {
		fmt.Println("usage: sopcheck -sop <file> -regulatory <dir|files> [-mode full|incremental] [-out dir]")
		os.Exit(2)
	}
	runOnce(ctx, runner, catalog, *sopPath, *regulatory, *mode, *outDir)
}

func serve(addr string, runner *pipeline.Runner) {
	logger := common.Logger()
	server := api.NewServer(runner)
	logger.Info("sopcheck: server listening", "addr", addr, "health", "/healthz")
	fmt.Printf("Serving on %s\n", addr)
	if err := http.ListenAndServe(addr, server); err != nil {
		logger.Error("sopcheck: server stopped", "error", err)
		fmt.Println("server stopped:", err)
	}
}

func runOnce(ctx context.Context, runner *pipeline.Runner, catalog *sqlite.Store, sopPath, regulatory, mode, outDir string) {
	logger := common.Logger()

	sopText, err := os.ReadFile(filepath.Clean(sopPath))
	if err != nil {
		logger.Error("sopcheck: sop file unreadable", "path", sopPath, "error", err)
		fmt.Println("sop file error:", err)
		os.Exit(1)
	}
	docs, err := loadDocuments(regulatory)
	if err != nil {
		logger.Error("sopcheck: regulatory corpus unreadable", "source", regulatory, "error", err)
		fmt.Println("regulatory corpus error:", err)
		os.Exit(1)
	}

	runID := uuid.NewString()
	if catalog != nil {
		if err := catalog.RecordRun(ctx, runID, mode); err != nil {
			logger.Warn("sopcheck: run audit record failed", "error", err)
		}
	}

	built, err := runner.Run(ctx, pipeline.Input{
		RunID:     runID,
		SOPText:   string(sopText),
		Documents: docs,
		Mode:      mode,
	})
	if err != nil {
		if catalog != nil {
			if auditErr := catalog.FinishRun(ctx, runID, "failed", err.Error(), ""); auditErr != nil {
				logger.Warn("sopcheck: run audit close failed", "error", auditErr)
			}
		}
		logger.Error("sopcheck: run failed", "run", runID, "error", err)
		fmt.Println("run failed:", err)
		os.Exit(1)
	}

	reportJSON, err := render.JSON(built)
	if err != nil {
		logger.Error("sopcheck: report serialization failed", "error", err)
		fmt.Println("report error:", err)
		os.Exit(1)
	}
	if catalog != nil {
		if err := catalog.FinishRun(ctx, runID, "succeeded", "", string(reportJSON)); err != nil {
			logger.Warn("sopcheck: run audit close failed", "error", err)
		}
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		logger.Error("sopcheck: output directory", "path", outDir, "error", err)
		fmt.Println("output error:", err)
		os.Exit(1)
	}
	mdPath := filepath.Join(outDir, "report.md")
	jsonPath := filepath.Join(outDir, "report.json")
	if err := os.WriteFile(mdPath, []byte(render.Markdown(built)), 0o644); err != nil {
		fmt.Println("write report.md:", err)
		os.Exit(1)
	}
	if err := os.WriteFile(jsonPath, reportJSON, 0o644); err != nil {
		fmt.Println("write report.json:", err)
		os.Exit(1)
	}

	fmt.Printf("Run %s complete: %d sections, %d compliant / %d partial / %d non-compliant / %d n.a.\n",
		built.RunID, len(built.Sections),
		built.Summary.Compliant, built.Summary.PartiallyCompliant,
		built.Summary.NonCompliant, built.Summary.NotApplicable)
	for _, w := range built.Warnings {
		fmt.Printf("warning [%s %s]: %s\n", w.Scope, w.RefID, w.Message)
	}
	fmt.Println("Report written to", mdPath, "and", jsonPath)
}

// openStore selects the vector index backend. SQLite is the durable default;
// Chroma serves deployments with a running server. The catalog handle is
// returned separately because run audit rows exist only in SQLite.
func openStore(ctx context.Context, kind, dbPath string) (vector.Store, *sqlite.Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "sqlite":
		cfg := sqlite.LoadConfig()
		if trimmed := strings.TrimSpace(dbPath); trimmed != "" {
			cfg.Path = trimmed
		}
		store, err := sqlite.OpenWithConfig(cfg)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case "chroma":
		cfg, err := vector.LoadConfig()
		if err != nil {
			return nil, nil, err
		}
		store, err := vector.NewChroma(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", kind)
	}
}

func defaultStoreKind() string {
	if kind := strings.TrimSpace(os.Getenv("SOPCHECK_STORE")); kind != "" {
		return kind
	}
	return "sqlite"
}

// loadDocuments reads the regulatory corpus: every .txt/.md file when given a
// directory, or the listed files. Document ids are file names without
// extension, so re-runs address the same content identically.
func loadDocuments(source string) ([]extractor.Document, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil
	}
	var paths []string
	if info, err := os.Stat(source); err == nil && info.IsDir() {
		entries, err := os.ReadDir(source)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(entry.Name())) {
			case ".txt", ".md":
				paths = append(paths, filepath.Join(source, entry.Name()))
			}
		}
		sort.Strings(paths)
	} else {
		for _, part := range strings.Split(source, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				paths = append(paths, trimmed)
			}
		}
	}
	docs := make([]extractor.Document, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, err
		}
		name := filepath.Base(path)
		docs = append(docs, extractor.Document{
			ID:   strings.TrimSuffix(name, filepath.Ext(name)),
			Text: string(data),
		})
	}
	return docs, nil
}
