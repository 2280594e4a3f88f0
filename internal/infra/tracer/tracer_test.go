package tracer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"shiplink/internal/infra/config"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: false})
	require.NoError(t, err)
	defer shutdown(context.Background())

	_, ok := otel.GetTracerProvider().(noop.TracerProvider)
	assert.True(t, ok, "expected noop provider, got %T", otel.GetTracerProvider())
}

func TestSetupExporters(t *testing.T) {
	for _, exp := range []string{"noop", "", "stdout", "stderr"} {
		t.Run(exp, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: exp})
			require.NoError(t, err)
			assert.NoError(t, shutdown(context.Background()))
		})
	}
}

func TestSetupUnsupportedExporter(t *testing.T) {
	_, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "zipkin"})
	assert.Error(t, err)
}

func TestClientSpanRecordsStatus(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	_, ok := StartClientSpan(context.Background(), "rpc.getProfile", StringAttr("rpc.method", "getProfile"), Int64Attr("rpc.id", 1))
	SetOK(ok)
	ok.End()

	_, failed := StartClientSpan(context.Background(), "rpc.rename")
	RecordError(failed, errors.New("invalid name"))
	failed.End()

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Len(t, spans[0].Attributes(), 2)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "invalid name", spans[1].Status().Description)
}

func TestAttrHelpers(t *testing.T) {
	assert.Equal(t, "key", string(StringAttr("key", "v").Key))
	assert.Equal(t, int64(42), IntAttr("count", 42).Value.AsInt64())
	assert.Equal(t, int64(7), Int64Attr("id", 7).Value.AsInt64())
}
