package xrotate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize AsyncWriter 默认队列容量（行）
const DefaultQueueSize = 1024

// asyncItem 队列元素；flushed 非 nil 时为 Flush 标记
type asyncItem struct {
	line    string
	flushed chan struct{}
}

// AsyncWriter 把写入交给单个后台 goroutine 的有界队列。
//
// 写入顺序与入队顺序一致。后台 goroutine 调用底层 [LineWriter] 时仍经过其自身的锁，
// 因此与直接调用底层写入器的其他 goroutine 之间也不会交错。
// 后台写入失败不会返回给入队方，而是计数并交给 WithAsyncOnError 回调。
type AsyncWriter struct {
	w       LineWriter
	queue   chan asyncItem
	onError func(error)
	done    chan struct{}

	mu     sync.RWMutex // 保护 closed 与向 queue 发送之间的竞态
	closed bool

	failed    atomic.Int64
	closeOnce sync.Once
	closeErr  error
}

type asyncOptions struct {
	queueSize int
	onError   func(error)
}

// AsyncOption AsyncWriter 配置选项函数
type AsyncOption func(*asyncOptions)

// WithQueueSize 设置队列容量，默认 DefaultQueueSize
func WithQueueSize(n int) AsyncOption {
	return func(o *asyncOptions) {
		o.queueSize = n
	}
}

// WithAsyncOnError 设置后台写入失败的回调。
//
// 回调在后台 goroutine 中同步执行，不得向同一个 AsyncWriter 写入，
// 否则队列满时会自锁。回调 panic 会被隔离。
func WithAsyncOnError(fn func(error)) AsyncOption {
	return func(o *asyncOptions) {
		o.onError = fn
	}
}

// NewAsync 创建 AsyncWriter 并启动后台 goroutine，使用完毕必须调用 Close。
func NewAsync(w LineWriter, opts ...AsyncOption) (*AsyncWriter, error) {
	if w == nil {
		return nil, errors.New("xrotate: async target is nil")
	}
	o := asyncOptions{queueSize: DefaultQueueSize}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.queueSize <= 0 {
		return nil, fmt.Errorf("%w: got %d, want > 0", ErrInvalidQueueSize, o.queueSize)
	}

	a := &AsyncWriter{
		w:       w,
		queue:   make(chan asyncItem, o.queueSize),
		onError: o.onError,
		done:    make(chan struct{}),
	}
	go a.run()
	return a, nil
}

// WriteLine 入队一行。队列满时阻塞，直到有空位或 ctx 结束。
func (a *AsyncWriter) WriteLine(ctx context.Context, line string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- asyncItem{line: line}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryWriteLine 非阻塞入队，队列满时返回 [ErrQueueFull]
func (a *AsyncWriter) TryWriteLine(line string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- asyncItem{line: line}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Write 实现 io.Writer，阻塞入队。p 的处理方式与 [RollingFile.Write] 相同。
func (a *AsyncWriter) Write(p []byte) (int, error) {
	if err := a.WriteLine(context.Background(), string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush 等待调用之前入队的所有行都交给了底层写入器
func (a *AsyncWriter) Flush(ctx context.Context) error {
	marker := make(chan struct{})
	if err := a.enqueueMarker(ctx, marker); err != nil {
		return err
	}
	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *AsyncWriter) enqueueMarker(ctx context.Context, marker chan struct{}) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- asyncItem{flushed: marker}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending 返回队列中尚未处理的元素数
func (a *AsyncWriter) Pending() int {
	return len(a.queue)
}

// Failed 返回后台写入失败的次数
func (a *AsyncWriter) Failed() int64 {
	return a.failed.Load()
}

// Close 停止接收新行，等待队列排空，然后关闭底层写入器（若实现了 io.Closer）。
// 重复调用返回首次关闭的结果。
func (a *AsyncWriter) Close() error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()

		<-a.done
		if c, ok := a.w.(io.Closer); ok {
			a.closeErr = c.Close()
		}
	})
	return a.closeErr
}

func (a *AsyncWriter) run() {
	defer close(a.done)
	for it := range a.queue {
		if it.flushed != nil {
			close(it.flushed)
			continue
		}
		if err := a.w.WriteLine(trimLineEnding(it.line)); err != nil {
			a.failed.Add(1)
			a.report(err)
		}
	}
}

// report 回调 panic 被 recover 隔离，防止后台 goroutine 退出
func (a *AsyncWriter) report(err error) {
	if a.onError == nil {
		return
	}
	defer func() { recover() }() //nolint:errcheck // recover 返回值无需检查
	a.onError(err)
}

func trimLineEnding(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
		if n := len(s); n > 0 && s[n-1] == '\r' {
			s = s[:n-1]
		}
	}
	return s
}
