package xrotate

import (
	"fmt"
	"os"
	"time"

	"github.com/omeyang/corekit/pkg/config/xconf"

	"go.opentelemetry.io/otel/metric"
)

// RollingFile 默认配置值
const (
	// DefaultFilenameTemplate 默认文件名模板
	DefaultFilenameTemplate = "log_{date}_{index}.txt"

	// DefaultFilenameDateFormat 默认 {date} 格式（yyyyMMddHHmm）
	DefaultFilenameDateFormat = "200601021504"

	// DefaultLineDateFormat 默认行首时间戳格式（MM-dd-yyyy HH:mm:ss）
	DefaultLineDateFormat = "01-02-2006 15:04:05"

	// DefaultMaxFileSizeBytes 默认单文件大小上限
	DefaultMaxFileSizeBytes = 100_000_000

	// DefaultFilesToKeep 默认保留文件数
	DefaultFilesToKeep = 10

	// DefaultLineEnding 默认行尾
	DefaultLineEnding = "\n"

	// DefaultFileMode 默认日志文件权限
	DefaultFileMode os.FileMode = 0o644
)

// RollingConfig RollingFile 配置，构造后不可变。
//
// 可直接从 YAML/JSON 反序列化，见 [LoadRollingConfig]。
type RollingConfig struct {
	// Dir 日志目录，不存在时递归创建（0750）
	Dir string `koanf:"dir"`

	// FilenameTemplate 文件名模板，包含 {date} 和 {index} 占位符，
	// 最后一个 "." 之后的部分视为扩展名
	FilenameTemplate string `koanf:"filename_template"`

	// FilenameDateFormat 渲染 {date} 的 Go 时间布局
	FilenameDateFormat string `koanf:"filename_date_format"`

	// LineDateFormat 每行时间戳前缀的 Go 时间布局
	LineDateFormat string `koanf:"line_date_format"`

	// MaxFileSizeBytes 单文件大小上限，必须 > 0
	MaxFileSizeBytes int64 `koanf:"max_file_size_bytes"`

	// FilesToKeep 目录中保留的匹配文件数上限，必须 > 0
	FilesToKeep int `koanf:"files_to_keep"`
}

// DefaultRollingConfig 返回 dir 目录下的默认配置。
func DefaultRollingConfig(dir string) RollingConfig {
	return RollingConfig{
		Dir:                dir,
		FilenameTemplate:   DefaultFilenameTemplate,
		FilenameDateFormat: DefaultFilenameDateFormat,
		LineDateFormat:     DefaultLineDateFormat,
		MaxFileSizeBytes:   DefaultMaxFileSizeBytes,
		FilesToKeep:        DefaultFilesToKeep,
	}
}

// LoadRollingConfig 从 xconf 配置的 path 节点加载 RollingConfig。
//
// 未出现的字段保留默认值，path 为空时读取整个配置。
// 返回的配置已通过校验。
func LoadRollingConfig(cfg xconf.Config, path string) (RollingConfig, error) {
	rc := DefaultRollingConfig("")
	if err := cfg.Unmarshal(path, &rc); err != nil {
		return RollingConfig{}, err
	}
	if err := rc.Validate(); err != nil {
		return RollingConfig{}, err
	}
	return rc, nil
}

// Validate 校验配置，返回首个错误。
func (c RollingConfig) Validate() error {
	if c.Dir == "" {
		return ErrEmptyDir
	}
	if c.FilenameTemplate == "" {
		return ErrEmptyTemplate
	}
	if c.FilenameDateFormat == "" {
		return fmt.Errorf("%w: FilenameDateFormat", ErrEmptyDateFormat)
	}
	if c.LineDateFormat == "" {
		return fmt.Errorf("%w: LineDateFormat", ErrEmptyDateFormat)
	}
	if c.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("%w: got %d, want > 0", ErrInvalidMaxFileSize, c.MaxFileSizeBytes)
	}
	if c.FilesToKeep <= 0 {
		return fmt.Errorf("%w: got %d, want > 0", ErrInvalidFilesToKeep, c.FilesToKeep)
	}
	_, err := parseTemplate(c.FilenameTemplate)
	return err
}

// rollingOptions RollingFile 的可选行为
type rollingOptions struct {
	dateFn        func(time.Time) string
	now           func() time.Time
	lineEnding    string
	fileMode      os.FileMode
	sync          bool
	dirLock       bool
	meterProvider metric.MeterProvider
}

// RollingOption RollingFile 配置选项函数
type RollingOption func(*rollingOptions)

func defaultRollingOptions() rollingOptions {
	return rollingOptions{
		now:        time.Now,
		lineEnding: DefaultLineEnding,
		fileMode:   DefaultFileMode,
	}
}

// WithFileNameDateFunc 自定义 {date} 的渲染，参数为当前时刻。
//
// 测试中可返回固定字符串以获得确定的文件名。
func WithFileNameDateFunc(fn func(time.Time) string) RollingOption {
	return func(o *rollingOptions) {
		o.dateFn = fn
	}
}

// WithClock 替换时钟，影响行首时间戳和 {date}
func WithClock(now func() time.Time) RollingOption {
	return func(o *rollingOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLineEnding 设置行尾，默认 "\n"
func WithLineEnding(ending string) RollingOption {
	return func(o *rollingOptions) {
		o.lineEnding = ending
	}
}

// WithFileMode 设置新建日志文件的权限，默认 0644
func WithFileMode(mode os.FileMode) RollingOption {
	return func(o *rollingOptions) {
		o.fileMode = mode
	}
}

// WithSync 每条记录写入后执行 fsync
//
// 默认只保证数据交给操作系统（无用户态缓冲），开启后掉电也不丢已返回的记录，
// 代价是每次写入一次磁盘同步。
func WithSync(enable bool) RollingOption {
	return func(o *rollingOptions) {
		o.sync = enable
	}
}

// WithDirLock 构造时对日志目录加文件锁（flock），拒绝同一目录上的第二个写入者。
// 锁在 Close 时释放。
func WithDirLock(enable bool) RollingOption {
	return func(o *rollingOptions) {
		o.dirLock = enable
	}
}

// WithMeterProvider 设置 OpenTelemetry MeterProvider，nil 表示不采集指标
func WithMeterProvider(mp metric.MeterProvider) RollingOption {
	return func(o *rollingOptions) {
		o.meterProvider = mp
	}
}
