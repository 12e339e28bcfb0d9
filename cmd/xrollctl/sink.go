package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/corekit/pkg/config/xconf"
	"github.com/omeyang/corekit/pkg/observability/xlog"
	"github.com/omeyang/corekit/pkg/observability/xrotate"
)

// defaultSection 配置文件中 RollingConfig 所在的节点
const defaultSection = "rolling"

// rollingFlags write/ls/stress 共用的轮转参数
func rollingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "配置文件路径（YAML/JSON）",
		},
		&cli.StringFlag{
			Name:  "section",
			Usage: "配置文件中的节点，空字符串表示整个文件",
			Value: defaultSection,
		},
		&cli.StringFlag{
			Name:    "dir",
			Aliases: []string{"d"},
			Usage:   "日志目录",
		},
		&cli.StringFlag{
			Name:  "template",
			Usage: "文件名模板，{date} 和 {index} 为占位符",
			Value: xrotate.DefaultFilenameTemplate,
		},
		&cli.Int64Flag{
			Name:  "max-size",
			Usage: "单文件字节上限",
			Value: xrotate.DefaultMaxFileSizeBytes,
		},
		&cli.IntFlag{
			Name:  "keep",
			Usage: "保留的文件数",
			Value: xrotate.DefaultFilesToKeep,
		},
	}
}

// resolveRollingConfig 合并配置文件与命令行参数，命令行显式设置的值优先。
// 未指定 --config 时返回的 xconf.Config 为 nil。
func resolveRollingConfig(cmd *cli.Command) (xrotate.RollingConfig, xconf.Config, error) {
	path := cmd.String("config")
	if path == "" {
		rc, err := rollingConfigFrom(cmd, nil)
		return rc, nil, err
	}

	cfg, err := xconf.New(path)
	if err != nil {
		return xrotate.RollingConfig{}, nil, wrapUsageError(err)
	}
	rc, err := rollingConfigFrom(cmd, cfg)
	if err != nil {
		return xrotate.RollingConfig{}, nil, err
	}
	return rc, cfg, nil
}

// rollingConfigFrom 以默认值为底，依次叠加 cfg 的 section 节点和显式设置的 flag
func rollingConfigFrom(cmd *cli.Command, cfg xconf.Config) (xrotate.RollingConfig, error) {
	rc := xrotate.DefaultRollingConfig("")
	if cfg != nil {
		if err := cfg.Unmarshal(cmd.String("section"), &rc); err != nil {
			return xrotate.RollingConfig{}, wrapUsageError(err)
		}
	}

	if cmd.IsSet("dir") {
		rc.Dir = cmd.String("dir")
	}
	if cmd.IsSet("template") {
		rc.FilenameTemplate = cmd.String("template")
	}
	if cmd.IsSet("max-size") {
		rc.MaxFileSizeBytes = cmd.Int64("max-size")
	}
	if cmd.IsSet("keep") {
		rc.FilesToKeep = cmd.Int("keep")
	}

	if rc.Dir == "" {
		return xrotate.RollingConfig{}, newUsageError("需要通过 --dir 或 --config 指定日志目录")
	}
	if err := rc.Validate(); err != nil {
		return xrotate.RollingConfig{}, wrapUsageError(err)
	}
	return rc, nil
}

// rollingOptions 由 write/stress 的布尔 flag 生成；未定义的 flag 读作 false
func rollingOptions(cmd *cli.Command) []xrotate.RollingOption {
	opts := []xrotate.RollingOption{
		xrotate.WithSync(cmd.Bool("sync")),
		xrotate.WithDirLock(cmd.Bool("lock")),
	}
	if cmd.Bool("crlf") {
		opts = append(opts, xrotate.WithLineEnding("\r\n"))
	}
	return opts
}

// sink 一个 RollingFile，可选地经由 AsyncWriter 写入
type sink struct {
	rf    *xrotate.RollingFile
	async *xrotate.AsyncWriter
}

// openSink queueSize > 0 时启用异步写入，后台写入失败交给 logger
func openSink(ctx context.Context, rc xrotate.RollingConfig, opts []xrotate.RollingOption,
	queueSize int, logger xlog.Logger) (*sink, error) {
	rf, err := xrotate.NewRollingFile(rc, opts...)
	if err != nil {
		return nil, err
	}
	s := &sink{rf: rf}
	if queueSize <= 0 {
		return s, nil
	}

	s.async, err = xrotate.NewAsync(rf,
		xrotate.WithQueueSize(queueSize),
		xrotate.WithAsyncOnError(func(err error) {
			logger.Warn(ctx, "async write failed", xlog.Err(err), xlog.Dir(rf.Dir()))
		}),
	)
	if err != nil {
		return nil, errors.Join(err, rf.Close())
	}
	return s, nil
}

func (s *sink) WriteLine(ctx context.Context, line string) error {
	if s.async != nil {
		return s.async.WriteLine(ctx, line)
	}
	return s.rf.WriteLineContext(ctx, line)
}

// Close 异步模式下先排空队列，AsyncWriter 会关闭底层 RollingFile
func (s *sink) Close() error {
	if s.async != nil {
		return s.async.Close()
	}
	return s.rf.Close()
}

// swappableSink 配置热更新时替换底层 sink。
// 替换在写锁下进行，旧 sink 上进行中的写入先完成。
type swappableSink struct {
	mu      sync.RWMutex
	cur     *sink
	retired int64 // 已替换掉的 sink 写入的行数
	closed  bool
}

func newSwappableSink(s *sink) *swappableSink {
	return &swappableSink{cur: s}
}

func (s *swappableSink) WriteLine(ctx context.Context, line string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return xrotate.ErrClosed
	}
	return s.cur.WriteLine(ctx, line)
}

// swap 换上 next 并关闭旧 sink。已关闭时关闭 next 并返回 ErrClosed。
func (s *swappableSink) swap(next *sink) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.Join(xrotate.ErrClosed, next.Close())
	}
	old := s.cur
	s.cur = next
	s.mu.Unlock()

	err := old.Close()
	// 旧 sink 关闭后行数不再变化
	s.mu.Lock()
	s.retired += old.rf.LinesWritten()
	s.mu.Unlock()
	return err
}

// Close 重复调用返回 nil
func (s *swappableSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.cur.Close()
}

// LinesWritten 所有 sink 累计写入的行数
func (s *swappableSink) LinesWritten() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retired + s.cur.rf.LinesWritten()
}

// CurrentFile 当前 sink 的写入目标
func (s *swappableSink) CurrentFile() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.rf.CurrentFile()
}

type contextLineWriter interface {
	WriteLine(ctx context.Context, line string) error
}

type readResult struct {
	line string
	err  error
}

// copyLines 逐行读取 r 写入 w，返回读到的行数。
// 行尾的 "\n" 或 "\r\n" 被去掉；最后一行没有换行符时照常写入。
//
// 读取在单独的 goroutine 中进行，阻塞在输入上时 ctx 取消也能立即返回。
// 取消后该 goroutine 在当前这次读取返回时退出。
func copyLines(ctx context.Context, r io.Reader, w contextLineWriter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	results := make(chan readResult)
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		br := bufio.NewReader(r)
		for {
			line, err := br.ReadString('\n')
			select {
			case results <- readResult{line: line, err: err}:
			case <-quit:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var n int64
	for {
		var res readResult
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case res = <-results:
		}
		if res.line != "" {
			line := strings.TrimSuffix(res.line, "\n")
			line = strings.TrimSuffix(line, "\r")
			if err := w.WriteLine(ctx, line); err != nil {
				return n, err
			}
			n++
		}
		if errors.Is(res.err, io.EOF) {
			return n, nil
		}
		if res.err != nil {
			return n, fmt.Errorf("read input: %w", res.err)
		}
	}
}
