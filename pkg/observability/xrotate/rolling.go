package xrotate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/omeyang/corekit/pkg/util/xfile"
)

// 编译时断言
var (
	_ Rotator    = (*RollingFile)(nil)
	_ LineWriter = (*RollingFile)(nil)
)

const (
	// maxIndexScan 单次轮转最多尝试的序号数
	maxIndexScan = 1 << 20

	// maxRotateAttempts 单条记录最多连续轮转的次数
	maxRotateAttempts = 8
)

// RollingFile 按大小切换编号文件、按数量清理旧文件的日志写入器。
//
// 所有方法并发安全：同一个互斥锁串行化大小检查、轮转、打开、写入和计数，
// 并发调用等价于某种顺序的串行调用，记录之间不会交错。
// RollingFile 内部没有 goroutine，也不会记录自身的错误，所有失败都返回给调用方。
type RollingFile struct {
	dir  string // 绝对路径
	tpl  nameTemplate
	cfg  RollingConfig
	opts rollingOptions

	lock    *flock.Flock
	metrics *rollingMetrics

	mu           sync.Mutex
	file         *os.File // 懒打开，未打开时为 nil
	currentPath  string
	currentSize  int64
	currentIndex int
	currentDate  string
	linesWritten int64
	closed       bool
}

// NewRollingFile 创建 RollingFile。
//
// 构造时创建日志目录，以序号 1 和当前日期串确定初始文件；
// 该文件已存在时从磁盘读取其大小。不会打开文件句柄。
func NewRollingFile(cfg RollingConfig, opts ...RollingOption) (*RollingFile, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tpl, err := parseTemplate(cfg.FilenameTemplate)
	if err != nil {
		return nil, err
	}

	o := defaultRollingOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.fileMode == 0 || o.fileMode&^os.FileMode(0o777) != 0 {
		return nil, fmt.Errorf("%w: got %04o, only permission bits (0001~0777) allowed",
			ErrInvalidFileMode, o.fileMode)
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("xrotate: resolve %s: %w", cfg.Dir, err)
	}
	if err := xfile.EnsureDirPath(dir, xfile.DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("xrotate: create %s: %w", dir, err)
	}

	m, err := newRollingMetrics(o.meterProvider, dir)
	if err != nil {
		return nil, err
	}

	r := &RollingFile{
		dir:     dir,
		tpl:     tpl,
		cfg:     cfg,
		opts:    o,
		metrics: m,
	}

	r.currentDate = r.dateString()
	r.currentIndex = 1
	if r.currentPath, err = r.resolve(r.currentDate, r.currentIndex); err != nil {
		return nil, err
	}
	if r.currentSize, err = sizeOf(r.currentPath); err != nil {
		return nil, err
	}

	if o.dirLock {
		if r.lock, err = acquireDirLock(dir); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// WriteLine 追加一条 "<时间戳> - <line><行尾>" 记录。
//
// 记录会整体落在同一个文件中：写入后超过上限时先轮转。
// 单条记录本身超过上限时，它独占一个新文件。
func (r *RollingFile) WriteLine(line string) error {
	return r.writeRecord(r.format(line))
}

// WriteLineContext 与 WriteLine 相同，但在获取锁之前检查 ctx。
// 进入临界区后不可取消。
func (r *RollingFile) WriteLineContext(ctx context.Context, line string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.WriteLine(line)
}

// Write 实现 io.Writer：去掉 p 末尾的一个换行（"\n" 或 "\r\n"），
// 其余内容作为一条记录写入。成功时返回 len(p)。
func (r *RollingFile) Write(p []byte) (int, error) {
	if err := r.WriteLine(trimLineEnding(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Rotate 立即轮转到下一个可用文件名，不检查大小
func (r *RollingFile) Rotate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if err := r.rotateLocked(); err != nil {
		r.metrics.recordError()
		return err
	}
	return nil
}

// Close 关闭当前文件句柄并释放目录锁。重复调用返回 nil。
// 关闭后 WriteLine/Write/Rotate 返回 [ErrClosed]。
func (r *RollingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	err := r.closeFileLocked()
	if r.lock != nil {
		if uerr := r.lock.Unlock(); uerr != nil {
			err = errors.Join(err, fmt.Errorf("xrotate: unlock %s: %w", r.dir, uerr))
		}
	}
	return err
}

// LinesWritten 返回自构造以来成功写入的行数（跨轮转累计）
func (r *RollingFile) LinesWritten() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.linesWritten
}

// CurrentFile 返回当前写入目标的路径
func (r *RollingFile) CurrentFile() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentPath
}

// CurrentSize 返回当前文件已知的字节数
func (r *RollingFile) CurrentSize() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentSize
}

// Dir 返回日志目录的绝对路径
func (r *RollingFile) Dir() string {
	return r.dir
}

// Files 返回目录中匹配模板的文件，最旧的在前
func (r *RollingFile) Files() ([]FileInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	files, err := listFiles(r.dir, r.tpl)
	if err != nil {
		return nil, err
	}
	out := make([]FileInfo, 0, len(files))
	for _, f := range files {
		out = append(out, FileInfo{Path: f.path, Size: f.size, ModTime: f.modTime})
	}
	return out, nil
}

// format 在锁外编码记录
func (r *RollingFile) format(line string) []byte {
	ts := r.opts.now().Format(r.cfg.LineDateFormat)
	var b strings.Builder
	b.Grow(len(ts) + 3 + len(line) + len(r.opts.lineEnding))
	b.WriteString(ts)
	b.WriteString(" - ")
	b.WriteString(line)
	b.WriteString(r.opts.lineEnding)
	return []byte(b.String())
}

func (r *RollingFile) writeRecord(rec []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if err := r.write(rec); err != nil {
		r.metrics.recordError()
		return err
	}
	r.linesWritten++
	r.metrics.recordWrite(len(rec))
	return nil
}

// write 调用方必须持有锁。
//
// 先打开文件再做轮转检查：打开时以磁盘上的实际大小为准，
// 其他写入者在此之前追加的内容也计入上限。
func (r *RollingFile) write(rec []byte) error {
	if err := r.openLocked(); err != nil {
		return err
	}
	for attempt := 0; r.shouldRotate(int64(len(rec))); attempt++ {
		if attempt == maxRotateAttempts {
			return fmt.Errorf("%w: %s keeps growing after rotation", ErrIndexExhausted, r.currentPath)
		}
		if err := r.rotateLocked(); err != nil {
			return err
		}
		// 新文件名在探测时不存在，打开前仍可能被其他写入者创建
		if err := r.openLocked(); err != nil {
			return err
		}
	}

	// 一次 Write 提交整条记录；只累加操作系统实际接受的字节
	n, err := r.file.Write(rec)
	r.currentSize += int64(n)
	if err != nil {
		return fmt.Errorf("xrotate: write %s: %w", r.currentPath, err)
	}
	if r.opts.sync {
		if err := r.file.Sync(); err != nil {
			return fmt.Errorf("xrotate: sync %s: %w", r.currentPath, err)
		}
	}
	return nil
}

// shouldRotate 空文件不轮转：超长记录直接写入当前（空的）文件
func (r *RollingFile) shouldRotate(n int64) bool {
	return r.currentSize > 0 && r.currentSize+n > r.cfg.MaxFileSizeBytes
}

// rotateLocked 关闭当前文件、清理旧文件并选定下一个文件名。调用方必须持有锁。
//
// 轮转不是事务性的：清理失败时仍会切换到新文件名，错误返回给调用方。
func (r *RollingFile) rotateLocked() error {
	if err := r.closeFileLocked(); err != nil {
		return err
	}

	files, err := listFiles(r.dir, r.tpl)
	if err != nil {
		return err
	}
	pruned, pruneErr := pruneOldest(files, r.cfg.FilesToKeep)

	date := r.dateString()
	if date != r.currentDate {
		r.currentDate = date
		r.currentIndex = 1
	}
	path, index, err := r.nextFreeIndex(date, r.currentIndex)
	if err != nil {
		return errors.Join(pruneErr, err)
	}

	r.currentPath = path
	r.currentIndex = index
	r.currentSize = 0
	r.metrics.recordRotation(pruned)
	return pruneErr
}

// nextFreeIndex 从 start 开始找第一个不存在的文件名
func (r *RollingFile) nextFreeIndex(date string, start int) (string, int, error) {
	for index := start; index < start+maxIndexScan; index++ {
		path, err := r.resolve(date, index)
		if err != nil {
			return "", 0, err
		}
		_, err = os.Lstat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return path, index, nil
		}
		if err != nil {
			return "", 0, fmt.Errorf("xrotate: stat %s: %w", path, err)
		}
	}
	return "", 0, fmt.Errorf("%w: date %q from index %d", ErrIndexExhausted, date, start)
}

// openLocked 懒打开当前文件，并以磁盘上的实际大小为准
func (r *RollingFile) openLocked() error {
	if r.file != nil {
		return nil
	}
	//#nosec G304 -- 路径由模板渲染并经 SafeJoin 限制在日志目录内
	f, err := os.OpenFile(r.currentPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, r.opts.fileMode)
	if err != nil {
		return fmt.Errorf("xrotate: open %s: %w", r.currentPath, err)
	}
	info, err := f.Stat()
	if err != nil {
		return errors.Join(fmt.Errorf("xrotate: stat %s: %w", r.currentPath, err), f.Close())
	}
	r.file = f
	r.currentSize = info.Size()
	return nil
}

func (r *RollingFile) closeFileLocked() error {
	if r.file == nil {
		return nil
	}
	f := r.file
	r.file = nil

	var syncErr error
	if r.opts.sync {
		syncErr = f.Sync()
	}
	if err := errors.Join(syncErr, f.Close()); err != nil {
		return fmt.Errorf("xrotate: close %s: %w", r.currentPath, err)
	}
	return nil
}

func (r *RollingFile) dateString() string {
	now := r.opts.now()
	if r.opts.dateFn != nil {
		return r.opts.dateFn(now)
	}
	return now.Format(r.cfg.FilenameDateFormat)
}

// resolve 渲染文件名并限制在日志目录内
func (r *RollingFile) resolve(date string, index int) (string, error) {
	name := r.tpl.render(date, index)
	if strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("%w: rendered name %q contains a path separator", ErrInvalidTemplate, name)
	}
	path, err := xfile.SafeJoin(r.dir, name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	return path, nil
}

// sizeOf 文件不存在时返回 0
func sizeOf(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("xrotate: stat %s: %w", path, err)
	}
	return info.Size(), nil
}
