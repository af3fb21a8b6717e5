package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oxiglade/cica/internal/app"
	"github.com/oxiglade/cica/internal/backend"
	"github.com/oxiglade/cica/internal/channels"
	"github.com/oxiglade/cica/internal/channels/telegram"
	"github.com/oxiglade/cica/internal/clock"
	"github.com/oxiglade/cica/internal/config"
	"github.com/oxiglade/cica/internal/cron"
	"github.com/oxiglade/cica/internal/logger"
	"github.com/oxiglade/cica/internal/metrics"
	"github.com/oxiglade/cica/internal/sessions"
	"github.com/oxiglade/cica/internal/usertask"
	"github.com/oxiglade/cica/internal/workspace"
)

var (
	serveConfigPath string
	serveLogLevel   string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the assistant bridge (main command)",
	Long: `Start Cica with the specified configuration. This initializes the
logger, workspace, channels, cron scheduler and per-user task manager, and
handles graceful shutdown.`,
	Run: serveHandler,
}

func serveHandler(cmd *cobra.Command, args []string) {
	if err := config.LoadEnvOptional("./.env"); err != nil {
		fmt.Printf("Failed to load .env file: %v\n", err)
		os.Exit(1)
	}

	configPath := serveConfigPath
	if configPath == "" {
		configPath = "./config.toml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Println("Configuration validation failed:")
		for _, e := range errs {
			fmt.Printf("  - %v\n", e)
		}
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	log.Info("starting cica",
		logger.Field{Key: "version", Value: Version},
		logger.Field{Key: "git_commit", Value: GitCommit},
		logger.Field{Key: "config", Value: configPath},
		logger.Field{Key: "workspace", Value: cfg.Workspace.Path})

	ws := workspace.New(cfg.Workspace)
	if err := ws.EnsureDir(); err != nil {
		log.Error("failed to prepare workspace", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	m := metrics.New("cica")
	if cfg.Metrics.Listen != "" {
		go func() {
			log.Info("metrics listener started", logger.Field{Key: "addr", Value: cfg.Metrics.Listen})
			if err := m.Serve(ctx, cfg.Metrics.Listen); err != nil {
				log.Error("metrics listener failed", err)
			}
		}()
	}

	sessionStore, err := sessions.Load(ws.SessionsFile())
	if err != nil {
		log.Error("failed to load session store", err)
		os.Exit(1)
	}

	invoker := backend.NewClaudeCLI(backend.ClaudeConfig{
		Binary:     cfg.Backend.Claude.Binary,
		Model:      cfg.Backend.Claude.Model,
		WorkingDir: ws.Path(),
	}, log)

	registry := channels.NewRegistry()
	if cfg.Channels.Telegram.Enabled {
		registry.Register(telegram.New(telegram.Config{
			Token:        cfg.Channels.Telegram.Token,
			AllowedUsers: cfg.Channels.Telegram.AllowedUsers,
			SendTimeout:  time.Duration(cfg.Channels.Telegram.SendTimeoutSeconds) * time.Second,
		}, log))
	}

	clk := clock.NewSystem()
	tasks := usertask.New(clk, time.Duration(cfg.Debounce.WindowMillis)*time.Millisecond, log, m)

	application := app.New(log, tasks, invoker, sessionStore, registry)

	var cronSvc *cron.Service
	if cfg.Cron.Enabled {
		store, err := cron.LoadStore(ws.JobsFile())
		if err != nil {
			log.Error("failed to load job store", err)
			os.Exit(1)
		}
		cronSvc = cron.NewService(clk, store, cron.Config{
			TickInterval: time.Duration(cfg.Cron.TickIntervalSeconds) * time.Second,
		}, invoker, application.DeliverResult, application.BuildJobContext, log, m)
		application.SetCron(cronSvc)
		cronSvc.Start(ctx)
	}

	channelsDone := make(chan struct{})
	go func() {
		application.StartChannels(ctx)
		close(channelsDone)
	}()

	sig := <-sigChan
	log.Info("shutdown signal received", logger.Field{Key: "signal", Value: sig.String()})

	cancel()
	if cronSvc != nil {
		// Lets in-flight job executions finish and persist themselves.
		cronSvc.Stop()
	}
	<-channelsDone

	log.Info("cica stopped")
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to config file (default ./config.toml)")
	serveCmd.Flags().StringVarP(&serveLogLevel, "log-level", "l", "", "Override log level (debug, info, warn, error)")
}
