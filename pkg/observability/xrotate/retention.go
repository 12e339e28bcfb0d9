package xrotate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/trviph/collection"
)

// lockFileName WithDirLock 使用的锁文件，永远不参与保留计数
const lockFileName = ".xrotate.lock"

// logFile 目录中一个匹配模板的日志文件
type logFile struct {
	path    string
	name    string
	size    int64
	modTime time.Time
}

// FileInfo 受管日志文件的快照
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// olderFirst 按修改时间升序，时间相同按文件名升序（文件名中序号补零，字典序即序号序）
func olderFirst(current, other *logFile) bool {
	if !current.modTime.Equal(other.modTime) {
		return current.modTime.Before(other.modTime)
	}
	return current.name < other.name
}

// listFiles 列出 dir 中匹配模板的文件，最旧的在前。
// 列举过程中消失的文件被跳过。
func listFiles(dir string, tpl nameTemplate) ([]*logFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("xrotate: list %s: %w", dir, err)
	}

	minHeap, err := collection.NewHeap(olderFirst)
	if err != nil {
		return nil, fmt.Errorf("xrotate: order %s: %w", dir, err)
	}
	count := 0
	for _, e := range entries {
		if e.IsDir() || e.Name() == lockFileName || !tpl.matches(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("xrotate: stat %s: %w", e.Name(), err)
		}
		minHeap.Push(&logFile{
			path:    filepath.Join(dir, e.Name()),
			name:    e.Name(),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
		count++
	}

	files := make([]*logFile, 0, count)
	for !minHeap.IsEmpty() {
		f, err := minHeap.Pop()
		if err != nil {
			return nil, fmt.Errorf("xrotate: order %s: %w", dir, err)
		}
		files = append(files, f)
	}
	return files, nil
}

// pruneOldest 删除最旧的文件，为即将创建的新文件留出一个名额：
// 删除后剩余 keep-1 个。返回实际删除的数量。
//
// 单个文件删除失败不会中断其余删除，所有错误合并返回。
func pruneOldest(files []*logFile, keep int) (int, error) {
	if len(files) < keep {
		return 0, nil
	}
	excess := len(files) - keep + 1

	removed := 0
	var errs []error
	for _, f := range files[:excess] {
		if err := os.Remove(f.path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			errs = append(errs, fmt.Errorf("xrotate: remove %s: %w", f.path, err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
