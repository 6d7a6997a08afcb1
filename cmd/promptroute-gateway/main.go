// Command promptroute-gateway runs the HTTP Gateway (SPEC_FULL.md §4.9) in
// front of a single Engine instance, grounded on the teacher's
// cmd/llm-router/main.go Application/Run/setupLogger shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/promptroute/internal/config"
	"github.com/tributary-ai/promptroute/internal/engine"
	"github.com/tributary-ai/promptroute/internal/gateway"
)

// Application wires configuration, engine, and gateway together.
type Application struct {
	config  *config.Config
	gateway *gateway.Gateway
	logger  *logrus.Logger
}

// NewApplication loads configuration from configPath and constructs the
// Engine and Gateway.
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logrus.New()
	if err := setupLogger(logger, cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	eng := engine.New(engine.RuntimeConfig{
		ConfigPath:      cfg.Engine.ConfigPath,
		OpenAIAPIKey:    cfg.Engine.OpenAIAPIKey,
		AnthropicAPIKey: cfg.Engine.AnthropicAPIKey,
		GoogleAPIKey:    cfg.Engine.GoogleAPIKey,
		Environment:     cfg.Engine.Environment,
		SDKVersion:      cfg.Engine.SDKVersion,
		Logger:          logger,
	})

	gw, err := gateway.New(cfg, eng, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	return &Application{config: cfg, gateway: gw, logger: logger}, nil
}

// Run starts the gateway and blocks until a shutdown signal arrives or the
// server fails to start.
func (app *Application) Run() error {
	app.logger.Info("starting promptroute gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		if err := app.gateway.Start(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("gateway failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case sig := <-sigChan:
		app.logger.WithField("signal", sig.String()).Info("shutdown signal received")
	}

	app.logger.Info("starting graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := app.gateway.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("gateway shutdown failed: %w", err)
	}

	app.logger.Info("graceful shutdown completed")
	return nil
}

func setupLogger(logger *logrus.Logger, cfg config.LoggingConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	default:
		return fmt.Errorf("invalid log format: %s", cfg.Format)
	}

	switch cfg.Output {
	case "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", cfg.Output, err)
		}
		logger.SetOutput(file)
	}
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
	fmt.Fprintf(os.Stderr, "  OPENAI_API_KEY          OpenAI API key\n")
	fmt.Fprintf(os.Stderr, "  ANTHROPIC_API_KEY       Anthropic API key\n")
	fmt.Fprintf(os.Stderr, "  GOOGLE_API_KEY          Google API key\n")
	fmt.Fprintf(os.Stderr, "  PROMPTROUTE_PORT        Server port (default: 8080)\n")
	fmt.Fprintf(os.Stderr, "  PROMPTROUTE_CONFIG      Path to the routing configuration document\n")
	fmt.Fprintf(os.Stderr, "  PROMPTROUTE_LOG_LEVEL   Log level (debug,info,warn,error,fatal)\n")
	fmt.Fprintf(os.Stderr, "  PROMPTROUTE_LOG_FORMAT  Log format (json,text)\n")
	fmt.Fprintf(os.Stderr, "  PROMPTROUTE_JWT_SECRET  JWT signing secret\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  %s --config configs/gateway.yaml\n", os.Args[0])
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to the gateway configuration file")
		showHelp   = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	app, err := NewApplication(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "application error: %v\n", err)
		os.Exit(1)
	}
}
