package main

import (
	"github.com/urfave/cli/v3"

	"github.com/omeyang/corekit/pkg/observability/xlog"
	"github.com/omeyang/corekit/pkg/observability/xrotate"
)

// 工具自身日志文件的轮转参数
const (
	toolLogMaxSizeMB  = 10
	toolLogMaxBackups = 3
)

// newLogger 按全局 flag 构建工具自身的 Logger。
// 设置 --log-file 时，stderr 与文件两路输出，文件固定使用 json 格式。
func newLogger(cmd *cli.Command) (xlog.LoggerWithLevel, func() error, error) {
	b := xlog.New().
		SetOutput(errWriter(cmd)).
		SetLevelString(cmd.String("log-level")).
		SetFormat(cmd.String("log-format"))

	if file := cmd.String("log-file"); file != "" {
		b.SetFileFormat(xlog.FormatJSON).
			SetRotation(file,
				xrotate.WithMaxSize(toolLogMaxSizeMB),
				xrotate.WithMaxBackups(toolLogMaxBackups),
			)
	}

	logger, cleanup, err := b.Build()
	if err != nil {
		return nil, nil, wrapUsageError(err)
	}
	return logger, cleanup, nil
}
