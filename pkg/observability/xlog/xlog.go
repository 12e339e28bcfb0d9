package xlog

import (
	"context"
	"log/slog"
)

// Logger 日志接口
//
// 所有方法都接收 context.Context，只接受 slog.Attr，避免隐式 key-value 转换。
type Logger interface {
	Debug(ctx context.Context, msg string, attrs ...slog.Attr)
	Info(ctx context.Context, msg string, attrs ...slog.Attr)
	Warn(ctx context.Context, msg string, attrs ...slog.Attr)
	Error(ctx context.Context, msg string, attrs ...slog.Attr)

	// With 返回带额外属性的派生 Logger，与父级共享级别
	With(attrs ...slog.Attr) Logger

	// WithGroup 返回带分组的派生 Logger，后续属性归入该分组
	WithGroup(name string) Logger
}

// Leveler 级别控制接口
type Leveler interface {
	// SetLevel 运行时调整级别，派生 Logger 同步生效
	SetLevel(level Level)

	// GetLevel 返回当前级别
	GetLevel() Level

	// Enabled 在构造昂贵的日志参数前检查级别
	Enabled(ctx context.Context, level Level) bool
}

// LoggerWithLevel Logger + Leveler，Build 返回此接口
type LoggerWithLevel interface {
	Logger
	Leveler
}
