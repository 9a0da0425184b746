package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordProcessStats(t *testing.T) {
	require.Equal(t, ProcessStats{}, RecordProcessStats(context.Background(), 0))

	stats := RecordProcessStats(context.Background(), os.Getpid())
	require.GreaterOrEqual(t, stats.Processes, 1)
}

func TestSetupFromEnvWithoutConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	tel, err := SetupFromEnv(context.Background(), "test")
	require.NoError(t, err)
	require.Nil(t, tel.TracerProvider)
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestSetupOnlyEnabledSignals(t *testing.T) {
	tel, err := Setup(context.Background(), "test", Config{})
	require.NoError(t, err)
	require.Nil(t, tel.TracerProvider)
	require.Nil(t, tel.MeterProvider)

	_, err = Setup(context.Background(), "test", Config{
		Traces: Endpoint{URL: "http://127.0.0.1:4318/v1/traces", Protocol: "carrier-pigeon"},
	})
	require.ErrorContains(t, err, `unknown otlp protocol "carrier-pigeon"`)
}

func TestEndpointProtocol(t *testing.T) {
	p, err := Endpoint{}.protocol()
	require.NoError(t, err)
	require.Equal(t, ProtocolHTTP, p)

	p, err = Endpoint{Protocol: ProtocolGRPC}.protocol()
	require.NoError(t, err)
	require.Equal(t, ProtocolGRPC, p)
}

func TestLogHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newLogHandler(&buf, slog.LevelInfo, true))
	logger.Debug("hidden")
	logger.Info("joined tournament", "tournament", "Daily Cup")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "joined tournament")
	require.Contains(t, out, "tournament=")
	require.Contains(t, out, "Daily Cup")
	require.NotContains(t, out, "\x1b[")
}
