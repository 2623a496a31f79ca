package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/madariss5/BLACKSKYMD-sub006/internal/bot"
	"github.com/madariss5/BLACKSKYMD-sub006/internal/config"
	"github.com/madariss5/BLACKSKYMD-sub006/internal/connection"
	"github.com/madariss5/BLACKSKYMD-sub006/internal/creds"
	"github.com/madariss5/BLACKSKYMD-sub006/internal/database"
	"github.com/madariss5/BLACKSKYMD-sub006/internal/profile"
	"github.com/madariss5/BLACKSKYMD-sub006/internal/protocol"
	"github.com/madariss5/BLACKSKYMD-sub006/internal/store"
	"github.com/madariss5/BLACKSKYMD-sub006/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/blacksky.yaml", "path to config file")
	logLevel := flag.String("log-level", "info", "log level (debug|info|warn|error)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(*logLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("starting blackskyd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"gateway_url", cfg.Gateway.URL,
		"profiles", len(cfg.Profiles),
		"store_backend", cfg.Store.Backend,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Stats persistence backend
	statsStore, cleanup, err := buildStatsStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to set up stats store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Credential store
	credStore, err := creds.NewFileStore(cfg.Credentials.Dir)
	if err != nil {
		logger.Error("failed to set up credential store", "error", err)
		os.Exit(1)
	}

	// Identity profiles
	profiles := make([]profile.Profile, len(cfg.Profiles))
	for i, p := range cfg.Profiles {
		profiles[i] = profile.Profile{
			Name:          p.Name,
			Fingerprint:   p.Fingerprint,
			CredentialRef: p.CredentialRef,
		}
	}
	registry := profile.NewRegistry(profiles)

	// Gateway client
	client := protocol.NewClient(protocol.ClientConfig{
		URL:               cfg.Gateway.URL,
		Origin:            cfg.Gateway.Origin,
		ConnectTimeout:    cfg.Gateway.ConnectTimeout,
		KeepAliveInterval: cfg.Gateway.KeepAliveInterval,
		QueryTimeout:      cfg.Gateway.QueryTimeout,
		RetryRequestDelay: cfg.Gateway.RetryRequestDelay,
	}, logger)

	// Connection supervisor
	supCfg := connection.DefaultSupervisorConfig()
	supCfg.RateLimitWindow = cfg.Connection.RateLimitWindow
	supCfg.RateLimitBaseDelay = cfg.Connection.RateLimitBaseDelay
	supCfg.RateLimitMaxDelay = cfg.Connection.RateLimitMaxDelay
	supCfg.ReconnectBaseDelay = cfg.Connection.ReconnectBaseDelay
	supCfg.ReconnectMaxDelay = cfg.Connection.ReconnectMaxDelay
	supCfg.DegradeThreshold = cfg.Connection.DegradeThreshold
	supCfg.RecoveryTime = cfg.Connection.RecoveryTime
	supCfg.MaxQRAttempts = cfg.Connection.MaxQRAttempts
	supCfg.PersistInterval = cfg.Connection.PersistInterval

	sup := connection.NewSupervisor(supCfg, registry, statsStore, credStore, client, logger)

	// Command bot
	chatBot := bot.NewBot(bot.BotConfig{CommandPrefix: cfg.Bot.CommandPrefix}, sup, logger)

	// Status server
	statusServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Status.Port),
		Handler: createStatusHandler(cfg, sup, chatBot),
	}
	go func() {
		logger.Info("starting status server", "port", cfg.Status.Port, "path", cfg.Status.Path)
		if err := statusServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("status server error", "error", err)
		}
	}()

	// Start the supervisor, then the bot that consumes its sessions
	if err := sup.Start(ctx); err != nil {
		logger.Error("failed to start connection supervisor", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		sup.Stop(shutdownCtx)
	}()

	if err := chatBot.Start(ctx); err != nil {
		logger.Error("failed to start command bot", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		chatBot.Stop(shutdownCtx)
	}()

	logger.Info("blackskyd running",
		"instance_id", cfg.Instance.ID,
		"status_url", fmt.Sprintf("http://localhost:%d%s", cfg.Status.Port, cfg.Status.Path),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	// Graceful shutdown of status server; components stop via defers
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	statusServer.Shutdown(shutdownCtx)

	logger.Info("blackskyd stopped")
}

// buildStatsStore creates the configured stats backend. The returned
// cleanup releases backend resources.
func buildStatsStore(ctx context.Context, cfg *config.BotConfig, logger *slog.Logger) (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		logger.Info("connecting to database",
			"host", cfg.Store.Postgres.Host,
			"port", cfg.Store.Postgres.Port,
			"database", cfg.Store.Postgres.Name,
		)
		pool, err := database.Connect(ctx, cfg.Store.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		st := store.NewPostgresStore(pool, logger)
		if err := st.Init(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("init stats schema: %w", err)
		}
		return st, pool.Close, nil
	default:
		st, err := store.NewFileStore(cfg.Store.Path, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open stats file: %w", err)
		}
		return st, func() {}, nil
	}
}

// createStatusHandler serves liveness plus a JSON status snapshot.
func createStatusHandler(cfg *config.BotConfig, sup *connection.Supervisor, chatBot *bot.Bot) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc(cfg.Status.Path, func(w http.ResponseWriter, r *http.Request) {
		snapshot := struct {
			Instance   string                     `json:"instance"`
			Version    string                     `json:"version"`
			Supervisor connection.SupervisorStats `json:"supervisor"`
			Bot        bot.BotStats               `json:"bot"`
		}{
			Instance:   cfg.Instance.ID,
			Version:    version.Version,
			Supervisor: sup.Stats(),
			Bot:        chatBot.Stats(),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snapshot)
	})

	return mux
}

// parseLogLevel maps the -log-level flag to a slog level.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
