// Package main provides the orchestra HTTP server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/config"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/dispatch"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/envstore"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/gitrepo"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/jobs"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/llm"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/metrics"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/server"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/session"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/transcript"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/workflow"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()
	slog.SetDefault(logger)

	logger.Info("starting orchestra-server", "port", cfg.ServerPort)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := transcript.NewClient(ctx, transcript.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		cancel()
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := store.InitSchema(ctx); err != nil {
		cancel()
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	if *wipeDB || os.Getenv("ORCHESTRA_WIPE_DB") == "true" {
		if err := store.WipeData(ctx); err != nil {
			cancel()
			logger.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
	}
	cancel()
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	collector := metrics.NewCollector()
	store.SetMetrics(collector)

	model, err := llm.NewModel(context.Background(), cfg, collector)
	if err != nil {
		logger.Error("failed to initialize LLM backend", "error", err)
		os.Exit(1)
	}

	var policy session.EvictionPolicy = session.NoExpiry{}
	if cfg.SessionTTL > 0 {
		policy = session.TTL(cfg.SessionTTL)
	}
	sessions := session.NewStore(policy)

	envs := envstore.New(cfg.UploadDir)

	runner := jobs.NewRunner(store, sessions, model, envs, cfg.OutputDir, cfg.JobTimeout, logger, collector)

	providers := []workflow.Provider{
		&workflow.Chat{Model: model, MaxTokens: cfg.ChatMaxTokens},
		&workflow.RepoAnalysis{Fetcher: gitrepo.NewFetcher(cfg.GitHubToken), Model: model},
		&workflow.ConfigGeneration{Jobs: runner},
		&workflow.DeployValidation{Model: model, MaxTokens: cfg.ChatMaxTokens},
	}

	dispatcher := dispatch.NewDispatcher(store, sessions, providers, logger, collector)

	srv := server.New(":"+cfg.ServerPort, dispatcher, store, runner, envs, sessions, cfg.SessionTTL, logger, collector)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(runCtx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("draining generation jobs...")
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer drainCancel()
	if err := runner.Shutdown(drainCtx); err != nil {
		logger.Warn("jobs still running at shutdown", "error", err)
	}

	logger.Info("server stopped")
}
