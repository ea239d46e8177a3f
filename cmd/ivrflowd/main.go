package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kylasweb/ivrflow/internal/engine"
	"github.com/kylasweb/ivrflow/internal/flow"
	"github.com/kylasweb/ivrflow/internal/logging"
	"github.com/kylasweb/ivrflow/internal/nodes"
	"github.com/kylasweb/ivrflow/internal/session"
	"github.com/kylasweb/ivrflow/internal/store"
	"github.com/kylasweb/ivrflow/internal/streaming"
	"github.com/kylasweb/ivrflow/pkg/schema"
)

func main() {
	validateOnly := flag.Bool("validate", false, "validate workflow files and exit")
	runID := flag.String("run", "", "simulate a call through the given workflow id")
	flag.Parse()

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	registry, loaded, err := loadWorkflows(cfg.WorkflowsDir, logger)
	if err != nil {
		logger.Error("workflow loading failed", "error", err)
		os.Exit(1)
	}
	logger.Info("workflows loaded", "count", loaded, "dir", cfg.WorkflowsDir)

	if *validateOnly {
		return
	}
	if *runID == "" {
		fmt.Println("nothing to do: pass -validate or -run <workflow-id>")
		return
	}

	if err := simulate(cfg, registry, *runID, logger); err != nil {
		logger.Error("simulation failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(logging.NewCorrelationHandler(inner))
	slog.SetDefault(logger)
	return logger
}

// loadWorkflows parses every *.json under dir into the registry. A file that
// fails validation is reported and skipped; the rest still load.
func loadWorkflows(dir string, logger *slog.Logger) (*flow.Registry, int, error) {
	loader, err := flow.NewLoader()
	if err != nil {
		return nil, 0, err
	}
	registry := flow.NewRegistry(loader)

	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, 0, err
	}

	loaded := 0
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read workflow file", "path", path, "error", err)
			continue
		}
		def, err := registry.Put(raw)
		if err != nil {
			logger.Warn("workflow rejected", "path", path, "error", err)
			continue
		}
		logger.Info("workflow registered",
			"id", def.ID(), "version", def.Version(), "nodes", def.Len())
		loaded++
	}
	return registry, loaded, nil
}

// simulate drives one interactive session through the workflow, with the
// terminal standing in for every collaborator.
func simulate(cfg Config, registry *flow.Registry, workflowID string, logger *slog.Logger) error {
	sim := newSimulator(bufio.NewScanner(os.Stdin))

	catalog := nodes.NewCatalog()
	err := nodes.RegisterBuiltins(catalog, nodes.Collaborators{
		NLU:        sim,
		Verifier:   sim,
		Detector:   sim,
		Telephony:  sim,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}, nil)
	if err != nil {
		return err
	}

	sessions, err := buildSessionStore(cfg)
	if err != nil {
		return err
	}
	archiver, err := buildArchiver(cfg)
	if err != nil {
		return err
	}

	hub := streaming.NewMemoryHub()
	eng := engine.New(engine.Config{
		MaxSteps:              cfg.MaxSteps,
		SessionTTL:            cfg.sessionTTL(),
		NodeTimeout:           cfg.nodeTimeout(),
		MaxConcurrentSessions: cfg.MaxSessions,
	}, registry, catalog, sessions, archiver, hub, logger)

	ctx := context.Background()
	events, unsubscribe, err := eng.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		return err
	}
	defer unsubscribe()

	s, err := eng.StartSession(ctx, engine.StartRequest{
		WorkflowID: workflowID,
		CallID:     fmt.Sprintf("sim-%d", time.Now().Unix()),
	})
	if err != nil {
		return err
	}
	fmt.Printf("session %s started on %s\n", s.ID, workflowID)

	for ev := range events {
		fmt.Printf("  [%s] node=%s payload=%v\n", ev.EventType, ev.NodeID, ev.Payload)
		switch ev.EventType {
		case schema.EventSessionCompleted, schema.EventSessionAbandoned, schema.EventSessionFailed:
			final, err := eng.GetSession(ctx, s.ID)
			if err != nil {
				return err
			}
			fmt.Printf("final status: %s after %d steps\n", final.Status, final.Steps)
			return eng.Shutdown(ctx)
		}
	}
	return nil
}

func buildSessionStore(cfg Config) (session.Store, error) {
	switch cfg.SessionStore {
	case "", "memory":
		return session.NewMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return session.NewRedisStore(client, cfg.sessionTTL()), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.SessionStore)
	}
}

func buildArchiver(cfg Config) (store.Archiver, error) {
	if cfg.ArchivePath == "" {
		return store.NewMemoryArchiver(), nil
	}
	archiver, err := store.NewLibSQLArchiver("file:" + cfg.ArchivePath)
	if err != nil {
		return nil, err
	}
	if err := archiver.Migrate(context.Background()); err != nil {
		return nil, err
	}
	return archiver, nil
}
