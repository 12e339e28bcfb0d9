// xrollctl 是 xrotate.RollingFile 的命令行工具。
//
// 用法:
//
//	xrollctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-l, --log-level   工具自身的日志级别 (默认: info)
//	--log-format      工具自身的日志格式 text/json/color (默认: color)
//	--log-file        工具自身的日志额外写入 lumberjack 轮转文件
//
// 命令:
//
//	write          从标准输入逐行写入 RollingFile
//	ls             列出目录中受管理的日志文件（最旧的在前）
//	stress         多个 goroutine 并发写入，输出统计
//	help           显示帮助信息
//
// 轮转参数可以来自配置文件（--config，YAML/JSON，默认读取 rolling 节点），
// 也可以直接通过 --dir/--template/--max-size/--keep 指定，命令行参数优先。
//
// 退出码:
//
//	0: 命令执行成功
//	1: 命令执行失败（写入失败、文件被锁定等）
//	2: 参数错误（缺少目录、配置无效、未知命令等）
//
// 示例:
//
//	tail -F app.out | xrollctl write --dir /var/log/app --max-size 10000000 --keep 5
//	xrollctl write --config /etc/app/rolling.yaml --watch --async
//	xrollctl ls --dir /var/log/app
//	xrollctl stress --dir /tmp/xr --workers 8 --lines 10000 --max-size 1000000
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
)

// 版本信息（可通过 -ldflags 注入，例如:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD)"
//
// ）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

// createApp 创建 CLI 应用。
func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xrollctl",
		Usage:   "编号滚动日志文件工具",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "工具日志级别 (debug/info/warn/error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "工具日志格式 (text/json/color)",
				Value: "color",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "工具日志额外写入的文件（lumberjack 轮转）",
			},
		},
		Commands: []*cli.Command{
			createWriteCommand(),
			createLsCommand(),
			createStressCommand(),
		},
		DefaultCommand: "help",
		// 禁止 urfave/cli 直接调用 os.Exit，退出码统一由 run() 映射
		ExitErrHandler: func(_ context.Context, cmd *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(errWriter(cmd), err)
			}
		},
	}
}

// run 执行命令并返回退出码。
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	app := createApp()
	app.Reader = stdin
	app.Writer = stdout
	app.ErrWriter = stderr

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := setupSignalHandler(cancel)
	defer stop()

	if err := app.Run(ctx, args); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(stderr, "参数错误: %v\n", usageErr)
			return 2
		}
		if isCLIUsageError(err) {
			// flag 解析器已经输出了错误详情
			return 2
		}
		fmt.Fprintf(stderr, "错误: %v\n", err)
		return 1
	}
	return 0
}

// usageError 参数或配置错误，退出码 2。
type usageError struct {
	msg string
	err error
}

func newUsageError(format string, args ...any) *usageError {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func wrapUsageError(err error) error {
	if err == nil {
		return nil
	}
	return &usageError{msg: err.Error(), err: err}
}

func (e *usageError) Error() string { return e.msg }

func (e *usageError) Unwrap() error { return e.err }

// isCLIUsageError 识别 urfave/cli 产生的参数错误（未知 flag、flag 值无效、未知命令）
func isCLIUsageError(err error) bool {
	if _, ok := err.(cli.ExitCoder); ok {
		return true
	}
	msg := err.Error()
	for _, prefix := range []string{
		"flag provided but not defined",
		"invalid value",
		"flag needs an argument",
		"No help topic for",
	} {
		if strings.Contains(msg, prefix) {
			return true
		}
	}
	return false
}

func errWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

func outWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func inReader(cmd *cli.Command) io.Reader {
	if r := cmd.Root().Reader; r != nil {
		return r
	}
	return os.Stdin
}
