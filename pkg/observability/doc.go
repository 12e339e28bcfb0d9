// Package observability 提供日志相关的子包。
//
// 子包列表：
//   - xlog: 结构化日志，基于 log/slog 扩展，可输出到轮转文件
//   - xrotate: 日志文件轮转，lumberjack 封装与按编号滚动的 RollingFile
package observability
