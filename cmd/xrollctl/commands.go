package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/sync/errgroup"

	"github.com/omeyang/corekit/pkg/config/xconf"
	"github.com/omeyang/corekit/pkg/observability/xlog"
	"github.com/omeyang/corekit/pkg/observability/xrotate"
)

const writeDescription = `第一次中断信号停止读取，排空异步队列并关闭文件后退出；
第二次中断信号立即退出，未落盘的记录会丢失。`

// createWriteCommand 创建 write 子命令。
func createWriteCommand() *cli.Command {
	return &cli.Command{
		Name:        "write",
		Aliases:     []string{"w"},
		Usage:       "从标准输入逐行写入滚动日志",
		Description: writeDescription,
		Flags: append(rollingFlags(),
			&cli.IntFlag{
				Name:  "async",
				Usage: "异步写入的队列长度，0 表示同步写入",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "配置文件变更时重建写入器（需要 --config）",
			},
			&cli.DurationFlag{
				Name:  "debounce",
				Usage: "配置文件变更的合并窗口",
				Value: xconf.DefaultDebounce,
			},
			&cli.BoolFlag{
				Name:  "sync",
				Usage: "每行写入后 fsync",
			},
			&cli.BoolFlag{
				Name:  "lock",
				Usage: "对日志目录加文件锁，拒绝第二个写入者",
			},
			&cli.BoolFlag{
				Name:  "crlf",
				Usage: "使用 \\r\\n 作为行尾",
			},
		),
		Action: cmdWrite,
	}
}

// createLsCommand 创建 ls 子命令。
func createLsCommand() *cli.Command {
	return &cli.Command{
		Name:   "ls",
		Usage:  "列出受管理的日志文件（最旧的在前）",
		Flags:  rollingFlags(),
		Action: cmdLs,
	}
}

// createStressCommand 创建 stress 子命令。
func createStressCommand() *cli.Command {
	return &cli.Command{
		Name:  "stress",
		Usage: "并发写入压测",
		Flags: append(rollingFlags(),
			&cli.IntFlag{
				Name:  "workers",
				Usage: "并发写入的 goroutine 数",
				Value: 4,
			},
			&cli.IntFlag{
				Name:  "lines",
				Usage: "每个 goroutine 写入的行数",
				Value: 1000,
			},
			&cli.IntFlag{
				Name:  "line-size",
				Usage: "每行负载的字节数",
				Value: 64,
			},
			&cli.BoolFlag{
				Name:  "sync",
				Usage: "每行写入后 fsync",
			},
		),
		Action: cmdStress,
	}
}

func cmdWrite(ctx context.Context, cmd *cli.Command) (err error) {
	logger, cleanup, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, cleanup()) }()

	rc, cfg, err := resolveRollingConfig(cmd)
	if err != nil {
		return err
	}
	watch := cmd.Bool("watch")
	if watch && cfg == nil {
		return newUsageError("--watch 需要 --config")
	}
	// 热更新时新旧写入器短暂共存，目录锁会让新写入器打开失败
	if watch && cmd.Bool("lock") {
		return newUsageError("--watch 不能与 --lock 同时使用")
	}
	queueSize := cmd.Int("async")
	if queueSize < 0 {
		return newUsageError("--async 不能为负数: %d", queueSize)
	}

	opts := rollingOptions(cmd)
	first, err := openSink(ctx, rc, opts, queueSize, logger)
	if err != nil {
		return err
	}
	out := newSwappableSink(first)

	stopWatch := func() error { return nil }
	if watch {
		w, werr := xconf.Watch(cfg, func(c xconf.Config, rerr error) {
			reloadSink(ctx, cmd, c, rerr, out, opts, queueSize, logger)
		}, xconf.WithDebounce(cmd.Duration("debounce")))
		if werr != nil {
			return errors.Join(werr, out.Close())
		}
		w.StartAsync()
		stopWatch = w.Stop
	}

	logger.Debug(ctx, "writing", xlog.Dir(rc.Dir), slog.String("template", rc.FilenameTemplate))
	n, copyErr := copyLines(ctx, inReader(cmd), out)
	if errors.Is(copyErr, context.Canceled) {
		logger.Info(ctx, "interrupted")
		copyErr = nil
	}
	// 先停止监视，避免关闭之后再发生替换
	closeErr := errors.Join(stopWatch(), out.Close())

	logger.Info(ctx, "write finished",
		xlog.Count(n),
		slog.Int64("written", out.LinesWritten()),
		xlog.File(out.CurrentFile()),
	)
	return errors.Join(copyErr, closeErr)
}

// reloadSink 配置文件变更回调：按新配置打开写入器并替换旧的。
// 任何一步失败都保留旧写入器。
func reloadSink(ctx context.Context, cmd *cli.Command, cfg xconf.Config, reloadErr error,
	out *swappableSink, opts []xrotate.RollingOption, queueSize int, logger xlog.Logger) {
	if reloadErr != nil {
		logger.Warn(ctx, "reload config failed", xlog.Err(reloadErr))
		return
	}
	rc, err := rollingConfigFrom(cmd, cfg)
	if err != nil {
		logger.Warn(ctx, "invalid config, keep current writer", xlog.Err(err))
		return
	}
	next, err := openSink(ctx, rc, opts, queueSize, logger)
	if err != nil {
		logger.Warn(ctx, "open writer failed, keep current writer", xlog.Err(err))
		return
	}
	if err := out.swap(next); err != nil {
		logger.Warn(ctx, "close previous writer failed", xlog.Err(err))
	}
	logger.Info(ctx, "config reloaded", xlog.Dir(rc.Dir), slog.Int64("max_file_size_bytes", rc.MaxFileSizeBytes),
		xlog.Count(int64(rc.FilesToKeep)))
}

func cmdLs(_ context.Context, cmd *cli.Command) error {
	rc, _, err := resolveRollingConfig(cmd)
	if err != nil {
		return err
	}
	// NewRollingFile 会创建目录，ls 不应该有这种副作用
	if _, err := os.Stat(rc.Dir); err != nil {
		return err
	}

	rf, err := xrotate.NewRollingFile(rc)
	if err != nil {
		return err
	}
	files, err := rf.Files()
	if cerr := rf.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(outWriter(cmd), 0, 0, 2, ' ', 0)
	var total int64
	for _, f := range files {
		total += f.Size
		fmt.Fprintf(tw, "%s\t%d\t%s\n", filepath.Base(f.Path), f.Size, f.ModTime.Format(time.RFC3339))
	}
	fmt.Fprintf(tw, "total\t%d\t%d files\n", total, len(files))
	return tw.Flush()
}

func cmdStress(ctx context.Context, cmd *cli.Command) (err error) {
	logger, cleanup, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, cleanup()) }()

	rc, _, err := resolveRollingConfig(cmd)
	if err != nil {
		return err
	}
	workers, lines, lineSize := cmd.Int("workers"), cmd.Int("lines"), cmd.Int("line-size")
	if workers <= 0 || lines <= 0 || lineSize < 0 {
		return newUsageError("--workers 和 --lines 必须为正数，--line-size 不能为负数")
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { err = errors.Join(err, provider.Shutdown(context.Background())) }()

	rf, err := xrotate.NewRollingFile(rc, append(rollingOptions(cmd), xrotate.WithMeterProvider(provider))...)
	if err != nil {
		return err
	}

	payload := strings.Repeat("x", lineSize)
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := range workers {
		g.Go(func() error {
			for i := range lines {
				if err := rf.WriteLineContext(gctx, fmt.Sprintf("worker-%d-line-%d-%s", w, i, payload)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	writeErr := g.Wait()
	elapsed := time.Since(start)
	if err := errors.Join(writeErr, rf.Close()); err != nil {
		return err
	}

	files, err := rf.Files()
	if err != nil {
		return err
	}
	counters, err := collectCounters(ctx, reader)
	if err != nil {
		return err
	}

	w := outWriter(cmd)
	fmt.Fprintf(w, "lines:     %d\n", rf.LinesWritten())
	fmt.Fprintf(w, "bytes:     %d\n", counters[xrotate.MetricBytesWritten])
	fmt.Fprintf(w, "rotations: %d\n", counters[xrotate.MetricRotations])
	fmt.Fprintf(w, "pruned:    %d\n", counters[xrotate.MetricFilesPruned])
	fmt.Fprintf(w, "files:     %d\n", len(files))
	fmt.Fprintf(w, "elapsed:   %s\n", elapsed.Round(time.Millisecond))

	logger.Debug(ctx, "stress finished", xlog.Duration(elapsed), xlog.Dir(rf.Dir()))
	return nil
}

// collectCounters 汇总每个 int64 计数器在所有数据点上的值
func collectCounters(ctx context.Context, reader *sdkmetric.ManualReader) (map[string]int64, error) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				out[m.Name] += dp.Value
			}
		}
	}
	return out, nil
}
