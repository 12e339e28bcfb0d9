package xrotate

import "errors"

// 配置校验错误
var (
	// ErrEmptyFilename 文件名为空
	ErrEmptyFilename = errors.New("xrotate: filename is required")

	// ErrEmptyDir 日志目录为空
	ErrEmptyDir = errors.New("xrotate: log directory is required")

	// ErrEmptyTemplate 文件名模板为空
	ErrEmptyTemplate = errors.New("xrotate: filename template is required")

	// ErrInvalidTemplate 文件名模板或渲染结果不是合法的单层文件名
	ErrInvalidTemplate = errors.New("xrotate: invalid filename template")

	// ErrEmptyDateFormat 日期格式为空
	ErrEmptyDateFormat = errors.New("xrotate: date format is required")

	// ErrInvalidMaxFileSize MaxFileSizeBytes 必须 > 0
	ErrInvalidMaxFileSize = errors.New("xrotate: invalid MaxFileSizeBytes")

	// ErrInvalidFilesToKeep FilesToKeep 必须 > 0
	ErrInvalidFilesToKeep = errors.New("xrotate: invalid FilesToKeep")

	// ErrInvalidMaxSize MaxSizeMB 值无效（必须在 1~10240 范围内）
	ErrInvalidMaxSize = errors.New("xrotate: invalid MaxSizeMB")

	// ErrInvalidMaxBackups MaxBackups 值无效（必须在 0~1024 范围内）
	ErrInvalidMaxBackups = errors.New("xrotate: invalid MaxBackups")

	// ErrInvalidMaxAge MaxAgeDays 值无效（必须在 0~3650 范围内）
	ErrInvalidMaxAge = errors.New("xrotate: invalid MaxAgeDays")

	// ErrNoCleanupPolicy MaxBackups 和 MaxAgeDays 不能同时为 0
	ErrNoCleanupPolicy = errors.New("xrotate: no cleanup policy configured")

	// ErrInvalidFileMode FileMode 包含非权限位（仅允许低 9 位 0000~0777）
	ErrInvalidFileMode = errors.New("xrotate: invalid FileMode")

	// ErrInvalidQueueSize 异步队列容量必须 > 0
	ErrInvalidQueueSize = errors.New("xrotate: invalid queue size")
)

// 运行期错误
var (
	// ErrClosed 轮转器已关闭
	ErrClosed = errors.New("xrotate: rotator is closed")

	// ErrDirLocked 日志目录已被其他实例锁定
	ErrDirLocked = errors.New("xrotate: log directory is locked by another writer")

	// ErrIndexExhausted 找不到未使用的文件序号
	ErrIndexExhausted = errors.New("xrotate: no free file index")

	// ErrQueueFull 异步队列已满
	ErrQueueFull = errors.New("xrotate: async queue is full")
)
