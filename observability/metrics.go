package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/model"
	"github.com/hupe1980/agentstream/stream"
)

// MetricsOptions configures Metrics.
type MetricsOptions struct {
	// Registerer receives the collectors. Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	Namespace  string
}

// Metrics holds the Prometheus collectors for model calls.
type Metrics struct {
	calls         *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	firstPart     *prometheus.HistogramVec
	tokens        *prometheus.CounterVec
	finishReasons *prometheus.CounterVec
	parts         *prometheus.CounterVec
}

// NewMetrics registers the collectors. Registering twice on the same
// registerer panics, as with promauto.
func NewMetrics(optFns ...func(o *MetricsOptions)) *Metrics {
	opts := MetricsOptions{
		Registerer: prometheus.DefaultRegisterer,
		Namespace:  "agentstream",
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	f := promauto.With(opts.Registerer)

	return &Metrics{
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "model_calls_total",
			Help:      "Model calls by outcome (ok, error, cancelled, abandoned).",
		}, []string{"provider", "model", "mode", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Model call duration, until the stream ended for streaming calls.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"provider", "model", "mode"}),
		firstPart: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Name:      "model_stream_first_part_seconds",
			Help:      "Time until the first canonical part of a stream.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"provider", "model"}),
		tokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "model_tokens_total",
			Help:      "Tokens reported by model calls.",
		}, []string{"provider", "model", "type"}),
		finishReasons: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "model_finish_reasons_total",
			Help:      "Unified finish reasons of completed calls.",
		}, []string{"provider", "model", "reason"}),
		parts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "model_stream_parts_total",
			Help:      "Canonical stream parts by type.",
		}, []string{"provider", "model", "type"}),
	}
}

// Middleware returns the metrics middleware.
func (m *Metrics) Middleware() model.Middleware {
	return model.Middleware{
		WrapGenerate: func(ctx context.Context, call model.Call) (*model.GenerateResult, error) {
			info := call.Model.Info()
			start := time.Now()

			res, err := call.DoGenerate(ctx)

			m.duration.WithLabelValues(info.Provider, info.ModelID, "generate").Observe(time.Since(start).Seconds())
			o := outcome{Err: err}
			if res != nil {
				o.FinishReason = res.FinishReason.Unified
				o.Usage = res.Usage
			}
			m.record(info, "generate", o)

			return res, err
		},
		WrapStream: func(ctx context.Context, call model.Call) (*model.StreamResult, error) {
			info := call.Model.Info()
			start := time.Now()

			res, err := call.DoStream(ctx)
			if err != nil {
				m.duration.WithLabelValues(info.Provider, info.ModelID, "stream").Observe(time.Since(start).Seconds())
				m.record(info, "stream", outcome{Err: err})
				return nil, err
			}

			first := true
			src := observe(res.Stream, func(p stream.Part) {
				if first {
					first = false
					m.firstPart.WithLabelValues(info.Provider, info.ModelID).Observe(time.Since(start).Seconds())
				}
				m.parts.WithLabelValues(info.Provider, info.ModelID, string(p.Type())).Inc()
			}, func(o outcome) {
				m.duration.WithLabelValues(info.Provider, info.ModelID, "stream").Observe(time.Since(start).Seconds())
				m.record(info, "stream", o)
			})

			return &model.StreamResult{Stream: src}, nil
		},
	}
}

func (m *Metrics) record(info model.Info, mode string, o outcome) {
	m.calls.WithLabelValues(info.Provider, info.ModelID, mode, o.label()).Inc()

	if o.Err != nil {
		return
	}

	if o.FinishReason != "" || o.label() == "ok" {
		reason, err := core.ParseFinishReason(o.FinishReason)
		label := string(reason)
		switch {
		case err != nil:
			label = "invalid"
		case !reason.IsDefined():
			label = "undefined"
		}
		m.finishReasons.WithLabelValues(info.Provider, info.ModelID, label).Inc()
	}

	m.tokens.WithLabelValues(info.Provider, info.ModelID, "input").Add(float64(o.Usage.InputTokens))
	m.tokens.WithLabelValues(info.Provider, info.ModelID, "output").Add(float64(o.Usage.OutputTokens))
	if o.Usage.ReasoningTokens > 0 {
		m.tokens.WithLabelValues(info.Provider, info.ModelID, "reasoning").Add(float64(o.Usage.ReasoningTokens))
	}
	if o.Usage.CachedInputTokens > 0 {
		m.tokens.WithLabelValues(info.Provider, info.ModelID, "cached_input").Add(float64(o.Usage.CachedInputTokens))
	}
}
