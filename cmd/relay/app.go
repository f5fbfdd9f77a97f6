package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Orion-Gemini/ORION-WEBCAM/internal/bot"
	cmdpkg "github.com/Orion-Gemini/ORION-WEBCAM/internal/commander"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/config"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/control"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/conversation"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/db"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/dummy"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/logging"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/proxy"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/relay"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/telegram"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/web"
)

const sweepInterval = time.Minute

// app holds the wiring shared by every front-end command.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	database *sql.DB
	memory   *conversation.MemoryStore
	recorder relay.Recorder
	service  *relay.Service
}

func newApp(cmd *cobra.Command, envFile, role string) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}

	var store conversation.Store
	switch cfg.History.Store {
	case config.StoreSQLite:
		database, err := db.OpenDB(cfg.History.DBPath)
		if err != nil {
			return nil, err
		}
		if err := db.InitSchema(database); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to init schema: %w", err)
		}
		a.database = database
		a.recorder = &db.EventLog{DB: database}
		store = conversation.NewSQLiteStore(database, cfg.History.TTL())
	default:
		a.memory = conversation.NewMemoryStore(cfg.History.TTL())
		store = a.memory
	}

	dispatcher, err := newDispatcher(cfg.Proxy, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []relay.Option{
		relay.WithMaxHistory(cfg.History.MaxMessages),
		relay.WithLogger(logger),
	}
	if a.recorder != nil {
		opts = append(opts, relay.WithRecorder(a.recorder))
	}
	a.service = relay.NewService(dispatcher, store, opts...)

	if a.database != nil {
		if _, err := db.LogEvent(cmd.Context(), a.database, db.EventProcessStarted, "", map[string]any{
			"role":     role,
			"pid":      os.Getpid(),
			"provider": cfg.Proxy.Provider,
			"model":    cfg.Proxy.Model,
		}); err != nil {
			logger.Warn("failed to log process.started", "error", err)
		}
	}
	logger.Info("relay starting",
		"role", role,
		"provider", cfg.Proxy.Provider,
		"model", cfg.Proxy.Model,
		"store", cfg.History.Store,
		"max_history", cfg.History.MaxMessages,
	)
	return a, nil
}

func newDispatcher(cfg config.ProxyConfig, logger *slog.Logger) (relay.Dispatcher, error) {
	switch cfg.Provider {
	case config.ProviderProxy:
		return proxy.NewClient(cfg.URL, cfg.Model, cfg.Policy(),
			proxy.WithAuthToken(cfg.Token),
			proxy.WithLogger(logger),
		), nil
	case config.ProviderDummy:
		return dummy.NewDispatcher(cfg.DummyScript)
	default:
		return nil, fmt.Errorf("unsupported proxy provider: %s", cfg.Provider)
	}
}

func newCommander(cfg config.TelegramConfig) (cmdpkg.Commander, error) {
	switch cfg.Commander {
	case config.CommanderTelegram:
		return telegram.NewClient(cfg.APIBase, cfg.Token, cfg.RequestTimeout()), nil
	case config.CommanderDummy:
		return dummy.NewCommander(cfg.DummyPollScript, cfg.DummySendScript, cfg.DummyEditScript)
	default:
		return nil, fmt.Errorf("unsupported commander: %s", cfg.Commander)
	}
}

func (a *app) Close() {
	if a.database != nil {
		_ = a.database.Close()
	}
}

// run executes the front-ends concurrently until ctx is canceled or one of
// them fails. The in-memory store is swept in the background.
func (a *app) run(ctx context.Context, frontends ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range frontends {
		g.Go(func() error {
			return fn(gctx)
		})
	}
	if a.memory != nil && a.memory.TTL > 0 {
		g.Go(func() error {
			a.sweep(gctx)
			return nil
		})
	}
	return g.Wait()
}

func (a *app) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.memory.Sweep(); n > 0 {
				a.logger.Debug("expired sessions removed", "count", n)
			}
		}
	}
}

func (a *app) runBot(ctx context.Context) error {
	commander, err := newCommander(a.cfg.Telegram)
	if err != nil {
		return err
	}
	opts := []bot.Option{bot.WithLogger(a.logger)}
	if a.recorder != nil {
		opts = append(opts, bot.WithRecorder(a.recorder))
	}
	b := bot.New(commander, a.service, bot.Config{
		PollTimeout: a.cfg.Telegram.TimeoutSeconds,
		Sleep:       time.Duration(a.cfg.Telegram.SleepSeconds) * time.Second,
		Concurrency: a.cfg.Telegram.Concurrency,
	}, opts...)
	return b.Run(ctx)
}

func (a *app) runWeb(ctx context.Context) error {
	srv := web.NewServer(a.service, web.Options{
		Addr:         a.cfg.Web.Addr,
		StaticDir:    a.cfg.Web.StaticDir,
		MaxBodyBytes: a.cfg.Web.MaxBodyBytes,
		WriteTimeout: control.WorstCase(a.cfg.Proxy.Policy()) + 30*time.Second,
		SessionTTL:   a.cfg.History.TTL(),
		Logger:       a.logger,
	})
	return srv.ListenAndServe(ctx)
}
