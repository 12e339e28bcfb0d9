// Package xlog 基于 log/slog 的结构化日志库。
//
// # 创建 Logger
//
// 使用 Builder 模式配置输出目标、级别、格式和文件轮转：
//
//	logger, cleanup, err := xlog.New().
//	    SetOutput(os.Stderr).
//	    SetFormat(xlog.FormatColor).
//	    SetRotation("/var/log/xrollctl/xrollctl.log", xrotate.WithMaxSize(50)).
//	    Build()
//	if err != nil {
//	    return err
//	}
//	defer cleanup()
//
// 只设置文件轮转时，日志只写入文件；同时调用 SetOutput 时，
// 控制台和文件两路输出通过 slog-multi 扇出。
//
// # 输出格式
//
//   - text: slog.TextHandler
//   - json: slog.JSONHandler
//   - color: tint 彩色输出，输出目标不是终端时自动关闭颜色
//
// 文件输出不支持 color，默认使用与控制台相同的格式（color 降级为 text），
// 可通过 SetFileFormat 单独指定。
//
// # 文件轮转
//
//   - SetRotation: lumberjack，固定文件名 + 时间戳备份
//   - SetRollingFile: xrotate.RollingFile，编号文件 + 按数量保留。
//     RollingFile 自带行首时间戳，文件输出中省略 slog 的 time 字段
//
// # 日志级别
//
// LevelDebug(-4)、LevelInfo(0)、LevelWarn(4)、LevelError(8)。
// Level 实现 encoding.TextUnmarshaler，可以直接写在配置文件中。
// 派生 Logger（With/WithGroup）共享父级的 LevelVar。
//
// # 写入失败
//
// Handler 写入失败（磁盘满、文件已关闭）不会返回给调用方，
// 而是计数并交给 SetOnError 回调。
package xlog
