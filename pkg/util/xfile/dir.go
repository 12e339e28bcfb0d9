package xfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDirPerm 默认目录权限（rwxr-x---），符合 gosec G301 建议。
const DefaultDirPerm = 0750

// EnsureDir 确保文件的父目录存在，使用 [DefaultDirPerm] 创建。
//
// 底层使用 os.MkdirAll，会跟随符号链接；不可信输入应先经 [SanitizePath]
// 或 [SafeJoin] 校验。
func EnsureDir(filename string) error {
	return EnsureDirWithPerm(filename, DefaultDirPerm)
}

// EnsureDirWithPerm 确保文件的父目录存在，使用指定权限。
// 目录已存在时不修改其权限。
func EnsureDirWithPerm(filename string, perm os.FileMode) error {
	if err := checkDirArgs(filename, perm); err != nil {
		return err
	}
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, perm)
}

// EnsureDirPath 确保 dir 本身作为目录存在（递归创建）。
//
// 与 [EnsureDir] 的区别：EnsureDir 接收文件路径并创建其父目录，
// EnsureDirPath 接收目录路径。dir 已存在但不是目录时返回 [ErrNotDir]。
func EnsureDirPath(dir string, perm os.FileMode) error {
	if err := checkDirArgs(dir, perm); err != nil {
		return err
	}
	info, err := os.Stat(dir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("%s: %w", dir, ErrNotDir)
		}
		return nil
	case os.IsNotExist(err):
		return os.MkdirAll(dir, perm)
	default:
		return err
	}
}

func checkDirArgs(path string, perm os.FileMode) error {
	if path == "" {
		return fmt.Errorf("path is required: %w", ErrEmptyPath)
	}
	if containsNullByte(path) {
		return fmt.Errorf("path contains null byte: %w", ErrNullByte)
	}
	// 缺少所有者执行位的目录无法进入
	if perm&0100 == 0 {
		return fmt.Errorf("directory permission %04o missing owner execute bit: %w", perm, ErrInvalidPerm)
	}
	return nil
}
