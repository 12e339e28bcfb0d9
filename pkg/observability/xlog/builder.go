package xlog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	slogmulti "github.com/samber/slog-multi"

	"github.com/omeyang/corekit/pkg/observability/xrotate"
)

// 输出格式
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatColor = "color" // tint 彩色输出，非终端时自动关闭颜色
)

// ReplaceAttrFunc 属性替换函数，返回空 Key 的 Attr 会移除该属性。
// 用于字段重命名、脱敏、过滤。
type ReplaceAttrFunc func(groups []string, a slog.Attr) slog.Attr

// Builder 日志配置构建器。
//
// first-error-wins：遇到第一个配置错误后，后续打开文件的 Set 操作被跳过，
// Build 返回该错误。Builder 只能 Build 一次。
type Builder struct {
	output      io.Writer
	outputSet   bool
	levelVar    *slog.LevelVar
	format      string
	addSource   bool
	replaceAttr ReplaceAttrFunc
	onError     func(error)

	rotator       xrotate.Rotator
	omitFileTime  bool // RollingFile 自带行首时间戳，文件输出不再重复 time 字段
	fileFormatSet string

	built bool
	err   error
}

// New 创建构建器，默认输出到 stderr、Info 级别、text 格式
func New() *Builder {
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	return &Builder{
		output:   os.Stderr,
		levelVar: levelVar,
		format:   FormatText,
	}
}

// SetOutput 设置控制台输出目标。
// 同时设置了文件轮转时，两路输出通过 slog-multi 扇出。
func (b *Builder) SetOutput(w io.Writer) *Builder {
	if w == nil {
		b.setErr(errors.New("xlog: output is nil"))
		return b
	}
	b.output = w
	b.outputSet = true
	return b
}

// SetLevel 设置日志级别
func (b *Builder) SetLevel(level Level) *Builder {
	b.levelVar.Set(slog.Level(level))
	return b
}

// SetLevelString 通过字符串设置日志级别
func (b *Builder) SetLevelString(s string) *Builder {
	level, err := ParseLevel(s)
	if err != nil {
		b.setErr(err)
		return b
	}
	return b.SetLevel(level)
}

// SetFormat 设置控制台输出格式：text、json 或 color。空值使用 text。
func (b *Builder) SetFormat(format string) *Builder {
	f, err := normalizeFormat(format)
	if err != nil {
		b.setErr(err)
		return b
	}
	b.format = f
	return b
}

// SetFileFormat 设置文件输出格式：text 或 json。默认与控制台相同（color 降级为 text）。
func (b *Builder) SetFileFormat(format string) *Builder {
	f, err := normalizeFormat(format)
	if err != nil {
		b.setErr(err)
		return b
	}
	if f == FormatColor {
		b.setErr(fmt.Errorf("xlog: file format %q not supported", format))
		return b
	}
	b.fileFormatSet = f
	return b
}

// SetAddSource 是否记录源码位置
func (b *Builder) SetAddSource(enable bool) *Builder {
	b.addSource = enable
	return b
}

// SetReplaceAttr 设置属性替换函数
//
//	xlog.New().SetReplaceAttr(func(groups []string, a slog.Attr) slog.Attr {
//	    if a.Key == "token" {
//	        return slog.String(a.Key, "***")
//	    }
//	    return a
//	})
func (b *Builder) SetReplaceAttr(fn ReplaceAttrFunc) *Builder {
	b.replaceAttr = fn
	return b
}

// SetOnError 设置 Handler 写入失败的回调（如磁盘满）。
// 回调在日志调用方的 goroutine 中同步执行，内置递归保护和 panic 隔离。
func (b *Builder) SetOnError(fn func(error)) *Builder {
	b.onError = fn
	return b
}

// SetRotation 输出到 lumberjack 轮转文件（固定文件名 + 时间戳备份）
func (b *Builder) SetRotation(filename string, opts ...xrotate.LumberjackOption) *Builder {
	if b.err != nil {
		return b
	}
	r, err := xrotate.NewLumberjack(filename, opts...)
	if err != nil {
		b.setErr(err)
		return b
	}
	return b.setRotator(r, false)
}

// SetRollingFile 输出到 RollingFile（编号文件 + 按数量保留）。
//
// 每条日志作为一行交给 RollingFile，行首时间戳由 RollingFile 添加，
// 因此文件输出中省略 slog 的 time 字段。
func (b *Builder) SetRollingFile(cfg xrotate.RollingConfig, opts ...xrotate.RollingOption) *Builder {
	if b.err != nil {
		return b
	}
	r, err := xrotate.NewRollingFile(cfg, opts...)
	if err != nil {
		b.setErr(err)
		return b
	}
	return b.setRotator(r, true)
}

// SetRotator 输出到调用方构造的 Rotator，所有权转移给 Logger：cleanup 时关闭
func (b *Builder) SetRotator(r xrotate.Rotator) *Builder {
	if r == nil {
		b.setErr(errors.New("xlog: rotator is nil"))
		return b
	}
	_, rolling := r.(*xrotate.RollingFile)
	return b.setRotator(r, rolling)
}

func (b *Builder) setRotator(r xrotate.Rotator, omitTime bool) *Builder {
	if b.rotator != nil {
		b.setErr(errors.Join(errors.New("xlog: rotation already configured"), r.Close()))
		return b
	}
	b.rotator = r
	b.omitFileTime = omitTime
	return b
}

func (b *Builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build 构建 Logger。
//
// 返回值：
//   - LoggerWithLevel: 日志实例
//   - func() error: 清理函数，关闭轮转文件，可重复调用
//   - error: 配置错误
func (b *Builder) Build() (LoggerWithLevel, func() error, error) {
	if b.built {
		return nil, nil, errors.New("xlog: builder already used")
	}
	b.built = true

	if b.err != nil {
		if b.rotator != nil {
			return nil, nil, errors.Join(b.err, b.rotator.Close())
		}
		return nil, nil, b.err
	}

	var handlers []slog.Handler
	if b.rotator == nil || b.outputSet {
		handlers = append(handlers, b.consoleHandler())
	}
	if b.rotator != nil {
		handlers = append(handlers, b.fileHandler())
	}
	handler := handlers[0]
	if len(handlers) > 1 {
		handler = slogmulti.Fanout(handlers...)
	}

	logger := &xlogger{
		handler: handler,
		state: &loggerState{
			levelVar:  b.levelVar,
			onError:   b.onError,
			addSource: b.addSource,
		},
	}
	return logger, b.cleanup(), nil
}

func (b *Builder) handlerOptions(replace ReplaceAttrFunc) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:       b.levelVar,
		AddSource:   b.addSource,
		ReplaceAttr: replace,
	}
}

func (b *Builder) consoleHandler() slog.Handler {
	switch b.format {
	case FormatJSON:
		return slog.NewJSONHandler(b.output, b.handlerOptions(b.replaceAttr))
	case FormatColor:
		return tint.NewHandler(b.output, &tint.Options{
			Level:       b.levelVar,
			AddSource:   b.addSource,
			ReplaceAttr: b.replaceAttr,
			TimeFormat:  time.TimeOnly,
			NoColor:     !isTerminal(b.output),
		})
	default:
		return slog.NewTextHandler(b.output, b.handlerOptions(b.replaceAttr))
	}
}

func (b *Builder) fileHandler() slog.Handler {
	replace := b.replaceAttr
	if b.omitFileTime {
		replace = omitTime(replace)
	}
	format := b.fileFormatSet
	if format == "" {
		format = b.format
	}
	if format == FormatJSON {
		return slog.NewJSONHandler(b.rotator, b.handlerOptions(replace))
	}
	return slog.NewTextHandler(b.rotator, b.handlerOptions(replace))
}

func (b *Builder) cleanup() func() error {
	var once sync.Once
	var err error
	rotator := b.rotator
	return func() error {
		once.Do(func() {
			if rotator != nil {
				err = rotator.Close()
			}
		})
		return err
	}
}

// omitTime 移除顶层 time 字段，再交给 next
func omitTime(next ReplaceAttrFunc) ReplaceAttrFunc {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) == 0 && a.Key == slog.TimeKey {
			return slog.Attr{}
		}
		if next != nil {
			return next(groups, a)
		}
		return a
	}
}

func normalizeFormat(format string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatColor:
		return f, nil
	default:
		return "", fmt.Errorf("xlog: unknown format %q", format)
	}
}

// isTerminal 只有 *os.File 才可能是终端
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
