package telemetry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.CacheLookup("fourmolu", true)
	m.CacheLookup("fourmolu", true)
	m.CacheLookup("fourmolu", false)
	m.ObserveRun("fourmolu", 120*time.Millisecond, nil)
	m.ObserveRun("hlint", time.Second, errors.New("exit 1"))
	m.FileWritten("nixfmt")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.lookups.WithLabelValues("fourmolu", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookups.WithLabelValues("fourmolu", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invocations.WithLabelValues("fourmolu", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invocations.WithLabelValues("hlint", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.written.WithLabelValues("nixfmt")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.duration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.CacheLookup("nixfmt", true)
	m.ObserveRun("nixfmt", time.Millisecond, nil)
	m.FileWritten("nixfmt")
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestWriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.CacheLookup("hlint", true)

	path := filepath.Join(t.TempDir(), "groom.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `groom_cache_lookups_total{result="hit",tool="hlint"} 1`)
	assert.Contains(t, string(data), "# HELP groom_cache_lookups_total")
}

func TestStartTracing(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	path := filepath.Join(t.TempDir(), "trace.json")
	shutdown, err := StartTracing(path)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "format.file")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Name":"format.file"`)
	assert.Contains(t, string(data), "groom")
}

func TestStartTracingBadPath(t *testing.T) {
	_, err := StartTracing(filepath.Join(t.TempDir(), "missing", "trace.json"))
	assert.Error(t, err)
}
