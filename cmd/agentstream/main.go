// Package main is the entry point for the agentstream chat server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentstream/config"
	"github.com/hupe1980/agentstream/internal/server"
	"github.com/hupe1980/agentstream/logging"
	"github.com/hupe1980/agentstream/model"
	"github.com/hupe1980/agentstream/model/anthropic"
	"github.com/hupe1980/agentstream/model/openai"
	"github.com/hupe1980/agentstream/observability"
	"github.com/hupe1980/agentstream/tool"
)

func main() {
	configPath := flag.String("config", os.Getenv("AGENTSTREAM_CONFIG"), "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LoggerConfig())

	m, err := newModel(cfg.Model)
	if err != nil {
		logger.Error("failed to create model", "error", err)
		os.Exit(1)
	}

	mws := []model.Middleware{
		observability.NewLoggingMiddleware(logger.WithComponent("model"), observability.LogLevelStandard),
	}
	if cfg.Server.MetricsEnabled {
		mws = append(mws, observability.NewMetrics().Middleware())
		logger.Info("prometheus metrics enabled", "endpoint", cfg.Server.MetricsEndpoint)
	}
	mws = append(mws, model.NewRetryMiddleware(model.RetryConfig{MaxRetries: cfg.Model.MaxRetries}))

	srv := server.New(model.Wrap(m, mws...), tool.MustNewSet(server.NewCurrentTimeTool(nil)), &server.Config{
		MetricsEnabled:    cfg.Server.MetricsEnabled,
		MetricsEndpoint:   cfg.Server.MetricsEndpoint,
		BodyLimit:         cfg.Server.BodyLimit,
		MaxConcurrentRuns: cfg.Server.MaxConcurrentRuns,
		MaxSteps:          cfg.Agent.MaxSteps,
		MaxParallelTools:  cfg.Agent.MaxParallelTools,
		System:            cfg.Agent.System,
		Logger:            logger,
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	info := m.Info()
	logger.Info("starting server", "address", cfg.Server.Addr, "provider", info.Provider, "model", info.ModelID)

	if err := srv.Start(cfg.Server.Addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("server stopped gracefully")
		} else {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}
}

func newModel(cfg config.ModelConfig) (model.LanguageModel, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			if cfg.Temperature != nil {
				o.Temperature = *cfg.Temperature
			}
			if cfg.MaxOutputTokens != nil {
				o.MaxCompletionTokens = *cfg.MaxOutputTokens
			}
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
			if cfg.Model != "" {
				o.Model = sdkanthropic.Model(cfg.Model)
			}
			if cfg.Temperature != nil {
				o.Temperature = *cfg.Temperature
			}
			if cfg.MaxOutputTokens != nil {
				o.MaxTokens = *cfg.MaxOutputTokens
			}
		}), nil
	case "mock":
		// Scripted replies, streamed from the generate path.
		return model.Wrap(model.NewMockModel(), model.SimulateStreaming()), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
