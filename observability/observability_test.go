package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/internal/testutil"
	"github.com/hupe1980/agentstream/logging"
	"github.com/hupe1980/agentstream/model"
	"github.com/hupe1980/agentstream/stream"
)

func testLogger(buf *bytes.Buffer) *logging.PipelineLogger {
	return logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "json", Output: buf})
}

func drain(t *testing.T, m model.LanguageModel) error {
	t.Helper()

	res, err := m.DoStream(context.Background(), model.CallOptions{Prompt: core.Prompt{core.UserMessage("hello there")}})
	if err != nil {
		return err
	}

	for _, err := range res.Stream {
		if err != nil {
			return err
		}
	}

	return nil
}

func textStep() model.MockStep {
	return model.MockStep{Parts: testutil.NewStepBuilder().Text("hi").Usage(3, 4).Finish("stop").Parts()}
}

func TestLoggingMiddleware_Stream(t *testing.T) {
	buf := &bytes.Buffer{}
	m := model.Wrap(model.NewMockModel(textStep()), NewLoggingMiddleware(testLogger(buf), LogLevelVerbose))

	require.NoError(t, drain(t, m))

	out := buf.String()
	assert.Contains(t, out, `"msg":"model.call.start"`)
	assert.Contains(t, out, `"mode":"stream"`)
	assert.Contains(t, out, `"last_user_message":"hello there"`)
	assert.Contains(t, out, `"finish_reason":"stop"`)
	assert.Contains(t, out, `"msg":"model.call.finish"`)
	assert.Contains(t, out, `"token_count":7`)
}

func TestLoggingMiddleware_MinimalOmitsDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	m := model.Wrap(model.NewMockModel(textStep()), NewLoggingMiddleware(testLogger(buf), LogLevelMinimal))

	require.NoError(t, drain(t, m))

	out := buf.String()
	assert.NotContains(t, out, "message_count")
	assert.NotContains(t, out, "last_user_message")
}

func TestLoggingMiddleware_StreamFailure(t *testing.T) {
	buf := &bytes.Buffer{}
	boom := errors.New("reset")
	m := model.Wrap(model.NewMockModel(model.MockStep{StreamErr: boom}), NewLoggingMiddleware(testLogger(buf), LogLevelStandard))

	err := drain(t, m)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, buf.String(), `"msg":"model.call.failed"`)
}

func TestLoggingMiddleware_CancellationIsNotAFailure(t *testing.T) {
	buf := &bytes.Buffer{}
	m := model.Wrap(model.NewMockModel(model.MockStep{Err: context.Canceled}), NewLoggingMiddleware(testLogger(buf), LogLevelStandard))

	err := drain(t, m)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, buf.String(), `"msg":"model.call.cancelled"`)
	assert.NotContains(t, buf.String(), `"level":"ERROR"`)
}

func TestLoggingMiddleware_Generate(t *testing.T) {
	buf := &bytes.Buffer{}
	m := model.Wrap(model.NewMockModel(textStep()), NewLoggingMiddleware(testLogger(buf), LogLevelStandard))

	_, err := m.DoGenerate(context.Background(), model.CallOptions{})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"mode":"generate"`)
	assert.Contains(t, buf.String(), `"msg":"model.call.finish"`)
}

func TestMetricsMiddleware_Stream(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(func(o *MetricsOptions) { o.Registerer = reg })
	m := model.Wrap(model.NewMockModel(textStep()), metrics.Middleware())

	require.NoError(t, drain(t, m))

	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.calls.WithLabelValues("mock", "mock-model", "stream", "ok")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.finishReasons.WithLabelValues("mock", "mock-model", "stop")))
	assert.Equal(t, 3.0, promtest.ToFloat64(metrics.tokens.WithLabelValues("mock", "mock-model", "input")))
	assert.Equal(t, 4.0, promtest.ToFloat64(metrics.tokens.WithLabelValues("mock", "mock-model", "output")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.parts.WithLabelValues("mock", "mock-model", string(stream.TypeTextDelta))))
	assert.Equal(t, 1, promtest.CollectAndCount(metrics.firstPart))
}

func TestMetricsMiddleware_Outcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(func(o *MetricsOptions) {
		o.Registerer = reg
		o.Namespace = "test"
	})
	mock := model.NewMockModel(
		model.MockStep{Err: errors.New("down")},
		model.MockStep{Err: context.Canceled},
		textStep(),
	)
	m := model.Wrap(mock, metrics.Middleware())

	assert.Error(t, drain(t, m))
	assert.Error(t, drain(t, m))

	// Break off after the first event.
	res, err := m.DoStream(context.Background(), model.CallOptions{})
	require.NoError(t, err)
	for range res.Stream {
		break
	}

	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.calls.WithLabelValues("mock", "mock-model", "stream", "error")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.calls.WithLabelValues("mock", "mock-model", "stream", "cancelled")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.calls.WithLabelValues("mock", "mock-model", "stream", "abandoned")))
}

func TestMetricsMiddleware_Generate(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(func(o *MetricsOptions) { o.Registerer = reg })
	m := model.Wrap(model.NewMockModel(textStep()), metrics.Middleware())

	_, err := m.DoGenerate(context.Background(), model.CallOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.calls.WithLabelValues("mock", "mock-model", "generate", "ok")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.finishReasons.WithLabelValues("mock", "mock-model", "stop")))
}

func TestMiddlewaresDoNotAlterStream(t *testing.T) {
	reg := prometheus.NewRegistry()
	base := model.NewMockModel(textStep())
	m := model.Wrap(base,
		NewLoggingMiddleware(testLogger(&bytes.Buffer{}), LogLevelStandard),
		NewMetrics(func(o *MetricsOptions) { o.Registerer = reg }).Middleware(),
	)

	res, err := m.DoStream(context.Background(), model.CallOptions{})
	require.NoError(t, err)

	var parts []stream.Part
	for ev, err := range res.Stream {
		require.NoError(t, err)
		parts = append(parts, ev.Part)
	}

	assert.Equal(t, textStep().Parts, parts)
}
