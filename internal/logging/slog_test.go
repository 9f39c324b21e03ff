package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

func TestSetup_FileOnly_NoStdout(t *testing.T) {
	// Capture stdout to verify nothing is written there
	origStdout := captureStdout(t)

	var fileBuf bytes.Buffer
	m := NewSlogManager()
	m.Setup(&fileBuf, "info", nil)
	m.Logger().Info("hello file")

	stdout := origStdout()

	assert.Contains(t, fileBuf.String(), "hello file", "log should appear in file")
	// The "Logging initialized" message from Setup also goes to file, not stdout
	assert.Empty(t, stdout, "nothing should be written to stdout when file is provided")
}

func TestSetup_NoFile_WritesToStdout(t *testing.T) {
	origStdout := captureStdout(t)

	m := NewSlogManager()
	m.Setup(nil, "info", nil)
	m.Logger().Info("hello console")

	stdout := origStdout()

	assert.Contains(t, stdout, "hello console", "log should appear on stdout")
}

func TestSetup_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(&buf, "debug", nil)

	m.Logger().Debug("debug msg")
	m.Logger().Info("info msg")

	output := buf.String()
	assert.Contains(t, output, "debug msg")
	assert.Contains(t, output, "info msg")
}

func TestSetup_InfoLevel_FiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(&buf, "info", nil)

	m.Logger().Debug("should be filtered")
	m.Logger().Info("should appear")

	output := buf.String()
	assert.NotContains(t, output, "should be filtered")
	assert.Contains(t, output, "should appear")
}

func TestSetup_ReplacesLogger(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	m := NewSlogManager()

	m.Setup(&buf1, "info", nil)
	m.Logger().Info("first")

	m.Setup(&buf2, "info", nil)
	m.Logger().Info("second")

	assert.Contains(t, buf1.String(), "first")
	assert.NotContains(t, buf1.String(), "second", "old file should not receive new logs")
	assert.Contains(t, buf2.String(), "second")
}

func TestLogger_DefaultBeforeSetup(t *testing.T) {
	m := NewSlogManager()
	logger := m.Logger()
	assert.Equal(t, slog.Default(), logger)
}

func TestFlush_NilProvider(t *testing.T) {
	m := NewSlogManager()
	err := m.Flush(context.Background())
	assert.NoError(t, err)
}

func TestWriteLog_AllLevels(t *testing.T) {
	levels := []struct {
		level    string
		contains string
	}{
		{"debug", "debug message"},
		{"info", "info message"},
		{"warn", "warn message"},
		{"error", "error message"},
		{"unknown", "unknown message"}, // defaults to info
	}

	for _, tt := range levels {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			m := NewSlogManager()
			m.Setup(&buf, "debug", nil)

			m.WriteLog("testFunc", tt.level+" message", tt.level)

			output := buf.String()
			assert.Contains(t, output, tt.contains)
			assert.Contains(t, output, "testFunc")
		})
	}
}

func TestWriteLog_NilLogger(t *testing.T) {
	m := NewSlogManager()
	// Should not panic
	m.WriteLog("fn", "data", "info")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"invalid", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestFanout_SkipsNilAndDisabled(t *testing.T) {
	var info, debug bytes.Buffer
	f := newFanout(
		nil,
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	require.Len(t, f, 2)
	assert.True(t, f.Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, newFanout().Enabled(context.Background(), slog.LevelError))

	logger := slog.New(f)
	logger.Debug("heartbeat", "sysid", 1)
	logger.Info("link up", "endpoint", "autopilot")

	assert.NotContains(t, info.String(), "heartbeat")
	assert.Contains(t, info.String(), "endpoint=autopilot")
	assert.Contains(t, debug.String(), "sysid=1")
}

func TestFanout_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	f := newFanout(slog.NewTextHandler(&buf, nil))

	slog.New(f.WithAttrs([]slog.Attr{slog.String("endpoint", "qgc")})).Info("forwarded")
	slog.New(f.WithGroup("hil")).Info("sensor", "xacc", 0.5)

	assert.Contains(t, buf.String(), "endpoint=qgc")
	assert.Contains(t, buf.String(), "hil.xacc=0.5")
	assert.Equal(t, f, f.WithGroup(""))
}

func TestFlush_WithProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider() // no exporter, just validates non-nil path
	m := NewSlogManager()

	var buf bytes.Buffer
	m.Setup(&buf, "info", provider)

	err := m.Flush(context.Background())
	assert.NoError(t, err)
}

// errorHandler is a slog.Handler that always returns an error from Handle.
type errorHandler struct {
	slog.Handler
}

func (h *errorHandler) Handle(_ context.Context, _ slog.Record) error {
	return errors.New("handler error")
}

func (h *errorHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func TestFanout_HandlerErrorDoesNotStopOthers(t *testing.T) {
	var buf bytes.Buffer
	spy := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	f := newFanout(&errorHandler{}, spy, &errorHandler{})
	err := f.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelWarn, "graylog unreachable", 0))

	assert.Contains(t, buf.String(), "graylog unreachable")
	require.Error(t, err)
	assert.Len(t, err.(interface{ Unwrap() []error }).Unwrap(), 2)
}

func TestSetup_WithOTelProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider()

	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(&buf, "info", provider)

	m.Logger().Info("otel integrated")
	assert.Contains(t, buf.String(), "otel integrated")
}

// captureStdout redirects os.Stdout to a pipe and returns a function
// that restores stdout and returns what was captured.
func captureStdout(t *testing.T) func() string {
	t.Helper()

	r, w, err := osPipe()
	require.NoError(t, err)

	origStdout := osStdout
	osStdout = w

	return func() string {
		w.Close()
		osStdout = origStdout
		var buf bytes.Buffer
		buf.ReadFrom(r)
		r.Close()
		return buf.String()
	}
}

func TestSetup_ExtraHandlersReceiveRecords(t *testing.T) {
	var file, extra bytes.Buffer
	m := NewSlogManager()
	m.Setup(&file, "info", nil, slog.NewJSONHandler(&extra, nil))

	m.Logger().Info("link up", "endpoint", "autopilot")

	assert.Contains(t, file.String(), "link up")
	assert.Contains(t, extra.String(), `"endpoint":"autopilot"`)
}

func TestNewGelfHandler_ShipsOverUDP(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	h, closer, err := NewGelfHandler(conn.LocalAddr().String(), "info")
	require.NoError(t, err)
	defer closer.Close()

	slog.New(h).Info("gelf record")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 8192)
	n, _, err := conn.ReadFrom(buf)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestContextHandler_StampsBridgeState(t *testing.T) {
	var buf bytes.Buffer
	state := BridgeContext{Vehicle: "Pixhawk 4", Mode: "Stopped/Normal"}
	logger := slog.New(NewContextHandler(slog.NewTextHandler(&buf, nil), ContextFunc(func() BridgeContext {
		return state
	})))

	logger.Info("first")
	state.Mode, state.Autopilot = "Running/HIL", "connected"
	logger.Info("second")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `vehicle="Pixhawk 4" mode=Stopped/Normal`)
	assert.NotContains(t, lines[0], "autopilot=")
	assert.Contains(t, lines[1], "mode=Running/HIL autopilot=connected")
}

func TestContextHandler_WithAttrsKeepsSource(t *testing.T) {
	var buf bytes.Buffer
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), ContextFunc(func() BridgeContext {
		return BridgeContext{Autopilot: "error(timeout)"}
	}))

	slog.New(h.WithAttrs([]slog.Attr{slog.String("endpoint", "autopilot")})).Warn("link down")
	assert.Contains(t, buf.String(), "endpoint=autopilot autopilot=error(timeout)")
	assert.Same(t, h, h.WithGroup(""))
}

func TestContextHandler_NilSource(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewContextHandler(slog.NewTextHandler(&buf, nil), nil)).Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
	assert.NotContains(t, buf.String(), "vehicle=")
}
