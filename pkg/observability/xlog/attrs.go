package xlog

import (
	"log/slog"
	"time"
)

// 日志中常用的标准字段名
const (
	// KeyError 错误
	KeyError = "error"

	// KeyDuration 耗时
	KeyDuration = "duration"

	// KeyCount 计数
	KeyCount = "count"

	// KeyComponent 组件名称
	KeyComponent = "component"

	// KeyFile 日志文件路径
	KeyFile = "file"

	// KeyDir 日志目录
	KeyDir = "dir"

	// KeyBytes 字节数
	KeyBytes = "bytes"
)

// Err 创建错误属性，err 为 nil 时返回空属性（被 slog 忽略）
//
//	if err != nil {
//	    logger.Error(ctx, "rotate failed", xlog.Err(err))
//	}
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 创建耗时属性，输出人类可读格式（如 "1.5s"）
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

// Count 创建计数属性
func Count(n int64) slog.Attr {
	return slog.Int64(KeyCount, n)
}

// Component 创建组件名称属性
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// File 创建文件路径属性
func File(path string) slog.Attr {
	return slog.String(KeyFile, path)
}

// Dir 创建目录属性
func Dir(path string) slog.Attr {
	return slog.String(KeyDir, path)
}

// Bytes 创建字节数属性
func Bytes(n int64) slog.Attr {
	return slog.Int64(KeyBytes, n)
}
