package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/szaher/mdtboard/internal/config"
	"github.com/szaher/mdtboard/internal/discussion"
	"github.com/szaher/mdtboard/internal/export"
	"github.com/szaher/mdtboard/internal/llm"
	"github.com/szaher/mdtboard/internal/participant"
	"github.com/szaher/mdtboard/internal/session"
	"github.com/szaher/mdtboard/internal/telemetry"
)

// app holds the wired collaborators shared by the run and serve commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	store    *session.Store
	engine   *discussion.Engine
	registry *participant.Registry
	client   llm.Client
	exporter *export.FileExporter
	pg       *export.PGArchive
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := telemetry.NewLogger(os.Stderr, parseLevel(cfg.LogLevel))

	base, err := llm.NewClientForEngine(llm.Engine(cfg.Model.Engine), cfg.Model.BaseURL)
	if err != nil {
		return nil, err
	}
	client := llm.NewRetryClient(base, cfg.Model.MaxRetries, cfg.Model.RetryDelay(), logger)

	registry, err := participant.NewRegistry(cfg.Discussion.SpecialtyRegistry, logger)
	if err != nil {
		return nil, err
	}

	scorer, err := discussion.NewScorer(cfg.Discussion.QualityFormula)
	if err != nil {
		return nil, err
	}

	metrics := telemetry.NewMetrics()
	store := session.NewStore(cfg.Session.Timeout(), session.WithLogger(logger))

	exporter := export.NewFileExporter(cfg.Export.Dir, logger)
	var archiver discussion.Archiver = exporter
	var pg *export.PGArchive
	if cfg.Export.PostgresURL != "" {
		pg, err = export.NewPGArchive(ctx, cfg.Export.PostgresURL, logger)
		if err != nil {
			return nil, err
		}
		archiver = multiArchiver{exporter, pg}
	}

	decision := participant.NewDecision(client, modelParams(cfg))
	engine := discussion.NewEngine(store,
		discussion.NewAggregator(decision, logger), scorer, archiver, metrics, logger,
		discussion.EngineOptions{
			Scheduler: discussion.SchedulerOptions{
				MaxRounds:            cfg.Discussion.MaxRounds,
				InterventionsEnabled: cfg.Discussion.InterventionEnabled,
				PerCallTimeout:       cfg.Discussion.PerCallTimeout(),
			},
			DigestWindow:           cfg.Discussion.DigestWindow,
			ContributionCharBudget: cfg.Discussion.ContributionCharBudget,
		})

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		store:    store,
		engine:   engine,
		registry: registry,
		client:   client,
		exporter: exporter,
		pg:       pg,
	}, nil
}

// buildParticipants satisfies the server's roster builder.
func (a *app) buildParticipants(specialties []string, custom map[string]string) ([]participant.Participant, error) {
	return participant.Build(a.registry, specialties, custom, a.client, modelParams(a.cfg))
}

func (a *app) shutdown(ctx context.Context) {
	if err := a.engine.Shutdown(ctx); err != nil {
		a.logger.Warn("engine shutdown", "error", err)
	}
	if err := a.store.StopSweeper(ctx); err != nil {
		a.logger.Warn("sweeper shutdown", "error", err)
	}
	if a.pg != nil {
		a.pg.Close()
	}
}

func modelParams(cfg *config.Config) participant.ModelParams {
	return participant.ModelParams{
		Model:       cfg.Model.Name,
		Temperature: cfg.Model.Temperature,
		MaxTokens:   cfg.Model.MaxTokens,
	}
}

func parseLevel(s string) slog.Level {
	if logLevel != "" {
		s = logLevel
	}
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// multiArchiver fans one record out to several archivers.
type multiArchiver []discussion.Archiver

func (m multiArchiver) Save(ctx context.Context, rec *discussion.Record) error {
	for _, a := range m {
		if err := a.Save(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// shutdownTimeout bounds graceful teardown across commands.
const shutdownTimeout = 30 * time.Second

func boundedShutdown(a *app) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.shutdown(ctx)
}
