package xlog

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/corekit/pkg/config/xconf"
)

func newBufferLogger(t *testing.T, b *Builder) (LoggerWithLevel, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, cleanup, err := b.SetOutput(&buf).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cleanup() })
	return logger, &buf
}

func TestLogger_Levels(t *testing.T) {
	logger, buf := newBufferLogger(t, New().SetLevel(LevelWarn))
	ctx := context.Background()

	logger.Debug(ctx, "debug-msg")
	logger.Info(ctx, "info-msg")
	logger.Warn(ctx, "warn-msg")
	logger.Error(ctx, "error-msg")

	out := buf.String()
	assert.NotContains(t, out, "debug-msg")
	assert.NotContains(t, out, "info-msg")
	assert.Contains(t, out, "warn-msg")
	assert.Contains(t, out, "error-msg")
}

func TestLogger_SetLevelShared(t *testing.T) {
	logger, buf := newBufferLogger(t, New())
	child := logger.With(Component("xrotate"))
	ctx := context.Background()

	child.Debug(ctx, "hidden")
	logger.SetLevel(LevelDebug)
	child.Debug(ctx, "visible")

	assert.Equal(t, LevelDebug, logger.GetLevel())
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "component=xrotate")

	lwl, ok := child.(LoggerWithLevel)
	require.True(t, ok)
	assert.True(t, lwl.Enabled(ctx, LevelDebug))
}

func TestLogger_WithGroup(t *testing.T) {
	logger, buf := newBufferLogger(t, New())

	assert.Same(t, logger, logger.WithGroup(""))
	assert.Same(t, logger, logger.With())

	logger.WithGroup("rotate").Info(context.Background(), "done", Count(2), Bytes(10))
	assert.Contains(t, buf.String(), "rotate.count=2")
	assert.Contains(t, buf.String(), "rotate.bytes=10")
}

func TestLogger_AddSource(t *testing.T) {
	logger, buf := newBufferLogger(t, New().SetAddSource(true))
	logger.Info(context.Background(), "where")

	assert.Contains(t, buf.String(), "logger_test.go")
}

func TestLogger_OnErrorRecursionAndPanic(t *testing.T) {
	var calls int
	var logger LoggerWithLevel
	var err error
	logger, cleanup, err := New().
		SetOutput(failingWriter{err: assert.AnError}).
		SetOnError(func(error) {
			calls++
			// 回调内再次失败不会递归进入回调
			logger.Error(context.Background(), "inside callback")
			panic("callback bug")
		}).
		Build()
	require.NoError(t, err)
	defer cleanup()

	assert.NotPanics(t, func() { logger.Info(context.Background(), "x") })
	assert.Equal(t, 1, calls)
	// 外层失败 + 回调内失败 + 回调 panic
	assert.Equal(t, uint64(3), logger.(interface{ ErrorCount() uint64 }).ErrorCount())
}

func TestLogger_Concurrent(t *testing.T) {
	var mu sync.Mutex
	var buf bytes.Buffer
	logger, cleanup, err := New().SetOutput(lockedWriter{mu: &mu, w: &buf}).Build()
	require.NoError(t, err)
	defer cleanup()

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 50 {
				logger.Info(context.Background(), "line")
			}
		})
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 400, strings.Count(buf.String(), "msg=line"))
}

type lockedWriter struct {
	mu *sync.Mutex
	w  *bytes.Buffer
}

func (l lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: LevelDebug},
		{in: " INFO ", want: LevelInfo},
		{in: "warning", want: LevelWarn},
		{in: "Warn", want: LevelWarn},
		{in: "error", want: LevelError},
		{in: "trace", want: LevelInfo, wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
		} else {
			assert.NoError(t, err, tt.in)
		}
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestLevel_Text(t *testing.T) {
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "INFO+2", Level(2).String())

	b, err := LevelError.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "ERROR", string(b))

	var l Level
	require.NoError(t, l.UnmarshalText([]byte("debug")))
	assert.Equal(t, LevelDebug, l)
	assert.Error(t, l.UnmarshalText([]byte("loud")))
}

func TestLevel_FromConfig(t *testing.T) {
	cfg, err := xconf.NewFromBytes([]byte("log:\n  level: warn\n"), xconf.FormatYAML)
	require.NoError(t, err)

	var section struct {
		Level Level `koanf:"level"`
	}
	require.NoError(t, cfg.Unmarshal("log", &section))
	assert.Equal(t, LevelWarn, section.Level)
}

func TestAttrs(t *testing.T) {
	assert.Equal(t, slog.Attr{}, Err(nil))
	assert.Equal(t, slog.String(KeyError, assert.AnError.Error()), Err(assert.AnError))
	assert.Equal(t, slog.String(KeyDuration, "1.5s"), Duration(1500*time.Millisecond))
	assert.Equal(t, slog.String(KeyFile, "/x"), File("/x"))
	assert.Equal(t, slog.String(KeyDir, "/d"), Dir("/d"))
}
