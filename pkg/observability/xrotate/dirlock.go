package xrotate

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// acquireDirLock 非阻塞地获取 dir 下的锁文件。
// 已被其他写入者（包括同进程内的另一个实例）持有时返回 ErrDirLocked。
func acquireDirLock(dir string) (*flock.Flock, error) {
	l := flock.New(filepath.Join(dir, lockFileName))
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("xrotate: lock %s: %w", dir, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDirLocked, dir)
	}
	return l, nil
}
