// Package server provides the HTTP surface of the agentstream binary.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"path"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/agentstream"
	"github.com/hupe1980/agentstream/agent"
	"github.com/hupe1980/agentstream/config"
	"github.com/hupe1980/agentstream/logging"
	"github.com/hupe1980/agentstream/model"
	"github.com/hupe1980/agentstream/tool"
)

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	MetricsEnabled  bool
	MetricsEndpoint string
	BodyLimit       string
	// Gatherer backs the metrics endpoint. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	MaxConcurrentRuns int64
	MaxSteps          int
	MaxParallelTools  int
	System            string

	Logger *logging.PipelineLogger
}

// New creates a new HTTP server serving chat requests with m and tools.
func New(m model.LanguageModel, tools *tool.Set, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelError, Output: io.Discard})
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			level := slog.LevelInfo
			if v.Error != nil {
				level = slog.LevelError
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.Slog().LogAttrs(context.Background(), level, "http.request", attrs...)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	bodyLimit := cfg.BodyLimit
	if bodyLimit == "" {
		bodyLimit = config.DefaultBodyLimit
	}
	e.Use(middleware.BodyLimit(bodyLimit))

	handler := &Handler{
		streamer: agentstream.New(func(o *agentstream.Options) {
			o.MaxConcurrentRuns = cfg.MaxConcurrentRuns
			o.Logger = logger
			o.OnError = func(error) string { return "An error occurred." }
		}),
		model:       m,
		tools:       tools,
		instruction: agent.NewInstructionFromTemplate(cfg.System, nil),
		maxSteps:    cfg.MaxSteps,
		maxParallel: cfg.MaxParallelTools,
		logger:      logger.WithComponent("http"),
	}

	e.GET("/health", handler.Health)

	if cfg.MetricsEnabled {
		metricsPath := "/metrics"
		if cfg.MetricsEndpoint != "" {
			metricsPath = path.Clean(cfg.MetricsEndpoint)
		}

		gatherer := cfg.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}

		e.GET(metricsPath, echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	e.POST("/api/chat", handler.Chat)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
