// Package xfile 提供日志目录相关的文件系统工具。
//
// 本包只覆盖 corekit 实际需要的几类操作：
//
//   - [EnsureDir]/[EnsureDirWithPerm]: 确保文件的父目录存在
//   - [EnsureDirPath]: 确保目录本身存在（用于日志目录）
//   - [SanitizePath]: 路径格式净化，拒绝相对路径穿越
//   - [SafeJoin]: 将文件名拼接到基准目录，结果保证不逃逸出基准目录
//
// # 路径穿越检测
//
// 只有 ".." 作为独立路径段时才视为穿越，"..config"、"app..2024.log"
// 这类合法文件名不会被误判：
//
//	SafeJoin("/var/log", "..config")      // ✓ "/var/log/..config"
//	SafeJoin("/var/log", "../etc/passwd") // ✗ ErrPathTraversal
//
// # 空字节
//
// 所有函数拒绝包含 \x00 的路径，内核会在空字节处截断路径。
//
// # 错误处理
//
// 预定义错误变量支持 [errors.Is] 判断。
package xfile
