package xrotate

import "io"

// 编译时断言：Rotator 接口是 io.WriteCloser 的超集
var _ io.WriteCloser = (Rotator)(nil)

// Rotator 日志轮转器接口
//
// 隐式实现 [io.WriteCloser]，可直接作为 slog handler 或 xlog 的输出目标。
// 所有实现都必须是并发安全的，并满足以下约定：
//   - Close 后调用 Write 或 Rotate 返回 [ErrClosed]
//   - 重复调用 Close 返回 nil，不产生额外的刷盘或关闭动作
//   - Rotate 可以在任意时刻调用
type Rotator interface {
	// Write 写入日志数据，触发轮转条件时自动轮转
	Write(p []byte) (n int, err error)

	// Close 关闭轮转器，释放文件句柄
	Close() error

	// Rotate 手动触发轮转
	Rotate() error
}

// LineWriter 按行写入的目标。
//
// [RollingFile] 和 [AsyncWriter] 的后端都满足此接口。
type LineWriter interface {
	WriteLine(line string) error
}
