package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sylvia_browser_agent/internal/api"
	"sylvia_browser_agent/internal/appinfo"
	"sylvia_browser_agent/internal/automation"
	"sylvia_browser_agent/internal/command"
	"sylvia_browser_agent/internal/config"
	"sylvia_browser_agent/internal/llm"
	"sylvia_browser_agent/internal/notify"
	"sylvia_browser_agent/internal/page"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("agent", flag.ExitOnError)
	showVersion := fs.Bool("version", false, "print version and exit")
	port := fs.Int("port", 0, "HTTP port (overrides PORT)")
	fs.Parse(args)

	if *showVersion {
		fmt.Println(appinfo.Display())
		return nil
	}

	cfg := config.FromEnv()
	if *port > 0 {
		cfg.Port = *port
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	client := llm.New(llm.Settings{
		OpenAIKey:          cfg.OpenAIKey,
		GeminiKey:          cfg.GeminiKey,
		AnthropicKey:       cfg.AnthropicKey,
		OpenRouterKey:      cfg.OpenRouterKey,
		DefaultProvider:    cfg.Provider,
		DefaultModel:       cfg.Model,
		DefaultTemperature: cfg.Temperature,
	})

	registry, err := command.NewRegistry()
	if err != nil {
		return fmt.Errorf("load command registry: %w", err)
	}
	runner := command.NewRunner(registry, client)
	fetcher := page.NewFetcher()

	var store automation.Store = automation.NewMemoryStore()
	var results automation.ResultLog = automation.NewMemoryResultLog()
	if cfg.RedisURL != "" {
		redisClient, err := automation.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		if store, err = automation.NewRedisStore(redisClient); err != nil {
			return err
		}
		if results, err = automation.NewRedisResultLog(redisClient); err != nil {
			return err
		}
		logger.Info("using redis persistence")
	}

	var notifier automation.Notifier
	if cfg.SMTP.Enabled() {
		notifier = notify.NewMailer(cfg.SMTP)
		logger.Info("email run reports enabled", "server", cfg.SMTP.Server)
	}

	hub := automation.NewHub()
	scheduler, err := automation.NewScheduler(automation.SchedulerOptions{
		Store:        store,
		Log:          results,
		Fetcher:      fetcher,
		Runner:       runner,
		Hub:          hub,
		Notifier:     notifier,
		Logger:       logger,
		TickInterval: cfg.TickInterval,
		RunTimeout:   cfg.RunTimeout,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler.Start(ctx)

	server := api.NewServer(api.Options{
		Client:    client,
		Registry:  registry,
		Runner:    runner,
		Store:     store,
		Results:   results,
		Scheduler: scheduler,
		Hub:       hub,
		Logger:    logger,
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(ctx, cfg.Port)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", "error", err)
	}

	select {
	case <-scheduler.Done():
	case <-shutdownCtx.Done():
		logger.Warn("scheduler did not stop before deadline")
	}
	return nil
}
