// Package main is the entry point for the sirchat server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sirchat/config"
	"sirchat/internal/app"
	"sirchat/internal/logging"
	"sirchat/internal/providers"
	"sirchat/internal/providers/groq"
	"sirchat/internal/providers/openai"
	"sirchat/internal/version"
)

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	result, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := result.Config

	if _, err := logging.Setup(os.Stdout, cfg.Logging.Format, cfg.Logging.Level); err != nil {
		slog.Error("failed to configure logging", "error", err)
		os.Exit(1)
	}

	slog.Info("starting sirchat",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
		"config_file", result.Source,
	)

	factory := providers.NewProviderFactory()
	factory.Add(groq.Registration)
	factory.Add(openai.Registration)

	application, err := app.New(context.Background(), app.Config{
		AppConfig: result,
		Factory:   factory,
	})
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := application.Shutdown(ctx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := application.Start(":" + cfg.Server.Port); err != nil {
		slog.Error("server failed", "error", err)
		_ = application.Shutdown(context.Background())
		os.Exit(1)
	}
	// Start returns as soon as shutdown begins; wait for storage to close
	<-done
}
