// Command datcomagent is the query-time orchestration engine's CLI
// entry point: a single `query` subcommand that routes one question
// through the workflow engine and prints the answer. Grounded on the
// teacher's cmd/PromptPipe/main.go ordered-startup pattern (logger
// init, env config load, flag parse, module wiring, run), collapsed
// from a multi-service daemon into a single one-shot invocation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/BTreeMap/datcomagent/internal/agent"
	"github.com/BTreeMap/datcomagent/internal/chatclient"
	"github.com/BTreeMap/datcomagent/internal/config"
	"github.com/BTreeMap/datcomagent/internal/datcom"
	"github.com/BTreeMap/datcomagent/internal/embedclient"
	"github.com/BTreeMap/datcomagent/internal/router"
	"github.com/BTreeMap/datcomagent/internal/tools"
	"github.com/BTreeMap/datcomagent/internal/vectorstore"
	"github.com/BTreeMap/datcomagent/internal/workflow"
	"github.com/BTreeMap/datcomagent/internal/workflowstate"
)

// defaultQueryDeadline matches spec §5's total per-query deadline.
const defaultQueryDeadline = 300 * time.Second

func main() {
	initializeLogger()

	if len(os.Args) < 2 || os.Args[1] != "query" {
		fmt.Fprintln(os.Stderr, "usage: datcomagent query \"<text>\" [--collection C] [--top-k N] [--retrieve-only] [--debug]")
		os.Exit(2)
	}

	flags := parseQueryFlags(os.Args[2:])

	cfg, err := config.Load()
	if err != nil {
		slog.Error("datcomagent: configuration error", "error", err)
		os.Exit(workflowstate.ExitCode(err))
	}

	if flags.debug {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	if flags.query == "" {
		fmt.Fprintln(os.Stderr, "datcomagent: missing required query text")
		os.Exit(2)
	}

	topK := cfg.DefaultTopK
	if flags.topK > 0 {
		topK = flags.topK
	}

	engine, err := buildEngine(cfg, flags.collection)
	if err != nil {
		slog.Error("datcomagent: failed to build engine", "error", err)
		os.Exit(4)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultQueryDeadline)
	defer cancel()

	if flags.retrieveOnly {
		runRetrieveOnly(ctx, engine, flags.query, flags.collection, topK)
		return
	}

	state, err := engine.Run(ctx, flags.query, flags.collection)
	if err != nil {
		slog.Error("datcomagent: run failed", "error", err)
		os.Exit(workflowstate.ExitCode(err))
	}

	fmt.Println(state.Generation)
}

type queryFlags struct {
	query        string
	collection   string
	topK         int
	retrieveOnly bool
	debug        bool
}

func parseQueryFlags(args []string) queryFlags {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	collection := fs.String("collection", "", "document collection to restrict retrieval to")
	topK := fs.Int("top-k", 0, "override DEFAULT_TOP_K for this query")
	retrieveOnly := fs.Bool("retrieve-only", false, "only run retrieval and print matches, skip generation")
	debug := fs.Bool("debug", false, "enable debug logging to stderr")

	var positional []string
	for _, a := range args {
		if len(a) > 0 && a[0] == '-' {
			continue
		}
		positional = append(positional, a)
	}

	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, "datcomagent:", err)
		os.Exit(2)
	}

	query := ""
	if len(positional) > 0 {
		query = positional[0]
	}

	return queryFlags{
		query:        query,
		collection:   *collection,
		topK:         *topK,
		retrieveOnly: *retrieveOnly,
		debug:        *debug,
	}
}

// initializeLogger mirrors the teacher's plain stdout text handler,
// defaulting to info level (debug is opted into via --debug).
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
}

// engineDeps bundles the wired components a run needs, so
// buildEngine's callers (the normal path and --retrieve-only) can
// reach the store/embed client directly without re-wiring.
type engineDeps struct {
	workflow *workflow.Engine
	store    vectorstore.Store
	embed    *embedclient.Client
}

func buildEngine(cfg *config.Config, defaultCollection string) (*engineDeps, error) {
	store, err := openStore(cfg.VectorDBURL)
	if err != nil {
		return nil, workflowstate.StoreError("main.buildEngine", err)
	}

	httpClient := &http.Client{Timeout: 120 * time.Second}
	embed := embedclient.New(cfg.EmbedAPIBase, cfg.EmbedAPIKey, cfg.EmbedModel, cfg.EmbedBatchSize, httpClient)
	chat := chatclient.New(cfg.ChatAPIBase, cfg.ChatAPIKey, cfg.ChatModel, cfg.Temperature)

	registry := tools.New()
	tools.RegisterRetrievalTools(registry, store, embed, chat, cfg.ContentMaxLength, defaultCollection)
	tools.RegisterCalculator(registry)
	tools.RegisterDatcomTools(registry)

	reasoningAgent := agent.New(chat, registry, cfg.AgentMaxIters)
	pipeline := datcom.New(chat)
	intentRouter := router.New(chat)

	eng := workflow.New(intentRouter, pipeline, reasoningAgent)
	return &engineDeps{workflow: eng, store: store, embed: embed}, nil
}

func (e *engineDeps) Run(ctx context.Context, question, collection string) (*workflowstate.WorkflowState, error) {
	return e.workflow.Run(ctx, question, collection)
}

// openStore picks the Vector Store Adapter backend by DSN scheme:
// postgres://... uses the pgvector-backed store; anything else is
// treated as a SQLite file path, matching the teacher's dual-backend
// store selection in internal/store.
func openStore(dsn string) (vectorstore.Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return vectorstore.NewPostgresStore(vectorstore.WithDSN(dsn))
	}
	return vectorstore.NewSQLiteStore(vectorstore.WithDSN(dsn))
}

func runRetrieveOnly(ctx context.Context, engine *engineDeps, query, collection string, topK int) {
	vec, err := engine.embed.EmbedQuery(ctx, query)
	if err != nil {
		slog.Error("datcomagent: embedding failed", "error", err)
		os.Exit(4)
	}
	if collection == "" {
		collections, err := engine.store.ListCollections(ctx)
		if err != nil || len(collections) == 0 {
			fmt.Fprintln(os.Stderr, "datcomagent: no collections available")
			os.Exit(4)
		}
		collection = collections[0].Name
	}
	docs, err := engine.store.SimilaritySearch(ctx, collection, vec, topK)
	if err != nil {
		slog.Error("datcomagent: retrieval failed", "error", err)
		os.Exit(4)
	}
	for i, d := range docs {
		fmt.Printf("[%d] similarity=%.4f collection=%s\n%s\n\n", i+1, d.Similarity, d.Collection, d.Content)
	}
}
