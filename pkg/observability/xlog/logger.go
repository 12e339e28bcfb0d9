package xlog

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"
)

var _ LoggerWithLevel = (*xlogger)(nil)

// loggerState 派生 Logger 之间共享的状态
type loggerState struct {
	levelVar       *slog.LevelVar
	onError        func(error)
	errorCount     atomic.Uint64
	inErrorHandler atomic.Bool // onError 递归保护
	addSource      bool
}

// xlogger Logger 接口的实现
type xlogger struct {
	handler slog.Handler
	state   *loggerState
}

// log 调用链：业务代码 → Debug/Info/… → log，skip=3 指向业务代码
//
//go:noinline
func (l *xlogger) log(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr) {
	if !l.handler.Enabled(ctx, level) {
		return
	}

	// 只在启用 AddSource 时捕获调用位置，runtime.Callers 开销不可忽略
	var pc uintptr
	if l.state.addSource {
		var pcs [1]uintptr
		runtime.Callers(3, pcs[:])
		pc = pcs[0]
	}

	r := slog.NewRecord(time.Now(), level, msg, pc)
	r.AddAttrs(attrs...)
	if err := l.handler.Handle(ctx, r); err != nil {
		l.handleError(err)
	}
}

// handleError Handler.Handle 失败时计数并回调 onError。
//
// 并发失败时只有一个 goroutine 进入回调，其余只计数；
// 回调内再次触发的日志错误不会递归进入回调。
func (l *xlogger) handleError(err error) {
	s := l.state
	s.errorCount.Add(1)
	if s.onError == nil || !s.inErrorHandler.CompareAndSwap(false, true) {
		return
	}
	defer s.inErrorHandler.Store(false)
	defer func() {
		if recover() != nil {
			s.errorCount.Add(1)
		}
	}()
	s.onError(err)
}

func (l *xlogger) Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelDebug, msg, attrs)
}

func (l *xlogger) Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelInfo, msg, attrs)
}

func (l *xlogger) Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelWarn, msg, attrs)
}

func (l *xlogger) Error(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelError, msg, attrs)
}

func (l *xlogger) With(attrs ...slog.Attr) Logger {
	if len(attrs) == 0 {
		return l
	}
	return &xlogger{handler: l.handler.WithAttrs(attrs), state: l.state}
}

func (l *xlogger) WithGroup(name string) Logger {
	if name == "" {
		return l
	}
	return &xlogger{handler: l.handler.WithGroup(name), state: l.state}
}

func (l *xlogger) SetLevel(level Level) {
	l.state.levelVar.Set(slog.Level(level))
}

func (l *xlogger) GetLevel() Level {
	return Level(l.state.levelVar.Level())
}

func (l *xlogger) Enabled(ctx context.Context, level Level) bool {
	return l.handler.Enabled(ctx, slog.Level(level))
}

// ErrorCount 返回 Handler 写入失败的累计次数（派生 Logger 共享）。
// 不在接口中，需要时类型断言 interface{ ErrorCount() uint64 }。
func (l *xlogger) ErrorCount() uint64 {
	return l.state.errorCount.Load()
}
