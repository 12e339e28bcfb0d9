package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/corekit/pkg/observability/xlog"
	"github.com/omeyang/corekit/pkg/observability/xrotate"
)

// syncBuffer 允许后台 goroutine 写入的同时读取
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func runCLI(t *testing.T, stdin io.Reader, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr syncBuffer
	code := run(append([]string{"xrollctl", "--log-format", "text"}, args...), stdin, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// dirLines 按文件名顺序读取目录中所有文件的记录，去掉行首时间戳
func dirLines(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	slices.Sort(names)

	var lines []string
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		for _, rec := range strings.SplitAfter(string(data), "\n") {
			if rec == "" {
				continue
			}
			_, msg, ok := strings.Cut(strings.TrimSuffix(rec, "\n"), " - ")
			require.True(t, ok, "malformed record %q", rec)
			lines = append(lines, msg)
		}
	}
	return lines
}

func TestRun_Write(t *testing.T) {
	dir := t.TempDir()
	code, _, stderr := runCLI(t, strings.NewReader("alpha\nbeta\r\n\ngamma"),
		"write", "--dir", dir, "--max-size", "60", "--keep", "5")
	require.Equal(t, 0, code, stderr)

	assert.Equal(t, []string{"alpha", "beta", "", "gamma"}, dirLines(t, dir))
	assert.Contains(t, stderr, "write finished")
	assert.Contains(t, stderr, "count=4")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Greater(t, len(entries), 1, "max-size 60 should rotate")
}

func TestRun_WriteAsync(t *testing.T) {
	dir := t.TempDir()
	input := strings.Repeat("line\n", 100)
	code, _, stderr := runCLI(t, strings.NewReader(input),
		"write", "--dir", dir, "--async", "8", "--crlf")
	require.Equal(t, 0, code, stderr)

	lines := dirLines(t, dir)
	require.Len(t, lines, 100)
	// --crlf 时记录以 \r\n 结尾
	assert.Equal(t, "line\r", lines[0])
	assert.Contains(t, stderr, "written=100")
}

func TestRun_WriteConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "rolling.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"rolling:\n"+
			"  dir: "+dir+"\n"+
			"  filename_template: \"app-{index}.log\"\n"+
			"  max_file_size_bytes: 1000\n"+
			"  files_to_keep: 2\n"), 0o600))

	code, _, stderr := runCLI(t, strings.NewReader("one\ntwo\n"), "write", "--config", cfgPath)
	require.Equal(t, 0, code, stderr)

	data, err := os.ReadFile(filepath.Join(dir, "app-001.log"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestRun_WriteFlagsOverrideConfig(t *testing.T) {
	fromFile := t.TempDir()
	fromFlag := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "rolling.json")
	require.NoError(t, os.WriteFile(cfgPath,
		[]byte(`{"dir": "`+fromFile+`", "filename_template": "x-{index}.log"}`), 0o600))

	code, _, stderr := runCLI(t, strings.NewReader("hello\n"),
		"write", "--config", cfgPath, "--section", "", "--dir", fromFlag)
	require.Equal(t, 0, code, stderr)

	assert.FileExists(t, filepath.Join(fromFlag, "x-001.log"))
	assert.NoFileExists(t, filepath.Join(fromFile, "x-001.log"))
}

func TestRun_UsageErrors(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "rolling.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("rolling:\n  dir: "+dir+"\n"), 0o600))

	tests := []struct {
		name string
		args []string
	}{
		{name: "缺少目录", args: []string{"write"}},
		{name: "保留数为 0", args: []string{"write", "--dir", dir, "--keep", "0"}},
		{name: "大小为负数", args: []string{"write", "--dir", dir, "--max-size=-1"}},
		{name: "模板无效", args: []string{"write", "--dir", dir, "--template", "sub/{index}.log"}},
		{name: "配置文件不存在", args: []string{"write", "--config", filepath.Join(dir, "missing.yaml")}},
		{name: "watch 需要配置文件", args: []string{"write", "--dir", dir, "--watch"}},
		{name: "watch 与 lock 互斥", args: []string{"write", "--config", cfgPath, "--watch", "--lock"}},
		{name: "队列长度为负数", args: []string{"write", "--dir", dir, "--async=-1"}},
		{name: "日志级别无效", args: []string{"--log-level", "verbose", "write", "--dir", dir}},
		{name: "未知 flag", args: []string{"write", "--bogus"}},
		{name: "stress 参数无效", args: []string{"stress", "--dir", dir, "--workers", "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, strings.NewReader(""), tt.args...)
			assert.Equal(t, 2, code, stderr)
		})
	}
}

func TestRun_WriteLockedDir(t *testing.T) {
	dir := t.TempDir()
	holder, err := xrotate.NewRollingFile(xrotate.DefaultRollingConfig(dir), xrotate.WithDirLock(true))
	require.NoError(t, err)
	defer holder.Close()

	code, _, stderr := runCLI(t, strings.NewReader("x\n"), "write", "--dir", dir, "--lock")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "错误")
}

func TestRun_Ls(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	for i, name := range []string{"log_202401021700_002.txt", "log_202401021700_001.txt"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))
		mt := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, mt, mt))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	code, stdout, stderr := runCLI(t, nil, "ls", "--dir", dir)
	require.Equal(t, 0, code, stderr)

	older := strings.Index(stdout, "log_202401021700_002.txt")
	newer := strings.Index(stdout, "log_202401021700_001.txt")
	require.GreaterOrEqual(t, older, 0, stdout)
	assert.Less(t, older, newer, "oldest first")
	assert.NotContains(t, stdout, "notes.txt")
	assert.Regexp(t, `total\s+20\s+2 files`, stdout)
}

func TestRun_LsMissingDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	code, _, _ := runCLI(t, nil, "ls", "--dir", missing)
	assert.Equal(t, 1, code)
	assert.NoDirExists(t, missing)
}

var statPattern = regexp.MustCompile(`(?m)^(\w+):\s+(\d+)$`)

func TestRun_Stress(t *testing.T) {
	dir := t.TempDir()
	code, stdout, stderr := runCLI(t, nil, "stress", "--dir", dir,
		"--workers", "4", "--lines", "50", "--line-size", "10", "--max-size", "2000", "--keep", "3")
	require.Equal(t, 0, code, stderr)

	stats := make(map[string]int)
	for _, m := range statPattern.FindAllStringSubmatch(stdout, -1) {
		n, err := strconv.Atoi(m[2])
		require.NoError(t, err)
		stats[m[1]] = n
	}
	assert.Equal(t, 200, stats["lines"], stdout)
	assert.Positive(t, stats["rotations"], stdout)
	assert.Positive(t, stats["pruned"], stdout)
	assert.Positive(t, stats["bytes"], stdout)
	assert.LessOrEqual(t, stats["files"], 3)
	assert.Contains(t, stdout, "elapsed:")
}

func TestRun_WriteWatch(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := filepath.Join(t.TempDir(), "next")
	cfgPath := filepath.Join(t.TempDir(), "rolling.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("rolling:\n  dir: "+dir1+"\n"), 0o600))

	pr, pw := io.Pipe()
	var stdout, stderr syncBuffer
	done := make(chan int, 1)
	go func() {
		done <- run([]string{"xrollctl", "--log-format", "text",
			"write", "--config", cfgPath, "--watch", "--debounce", "20ms"}, pr, &stdout, &stderr)
	}()

	_, err := io.WriteString(pw, "first\n")
	require.NoError(t, err)
	// 第一行落盘说明监视已经注册
	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(dir1)
		return err == nil && len(entries) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(cfgPath, []byte("rolling:\n  dir: "+dir2+"\n"), 0o600))
	require.Eventually(t, func() bool {
		return strings.Contains(stderr.String(), "config reloaded")
	}, 5*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(pw, "second\n")
	require.NoError(t, err)
	require.NoError(t, pw.Close())

	select {
	case code := <-done:
		require.Equal(t, 0, code, stderr.String())
	case <-time.After(5 * time.Second):
		t.Fatal("write did not exit after stdin closed")
	}

	assert.Equal(t, []string{"first"}, dirLines(t, dir1))
	assert.Equal(t, []string{"second"}, dirLines(t, dir2))
	assert.Contains(t, stderr.String(), "written=2")
}

type recordingLines struct {
	lines []string
	err   error
}

func (r *recordingLines) WriteLine(_ context.Context, line string) error {
	if r.err != nil {
		return r.err
	}
	r.lines = append(r.lines, line)
	return nil
}

func TestCopyLines(t *testing.T) {
	w := &recordingLines{}
	n, err := copyLines(context.Background(), strings.NewReader("a\n\nb\r\nc"), w)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, []string{"a", "", "b", "c"}, w.lines)
}

func TestCopyLines_Errors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := copyLines(ctx, strings.NewReader("a\n"), &recordingLines{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)

	boom := errors.New("disk full")
	n, err = copyLines(context.Background(), strings.NewReader("a\nb\n"), &recordingLines{err: boom})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, n)
}

func TestCopyLines_CancelWhileBlocked(t *testing.T) {
	pr, pw := io.Pipe()
	// 结束时关闭管道，让读取 goroutine 退出
	t.Cleanup(func() { _ = pw.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		n   int64
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := copyLines(ctx, pr, &recordingLines{})
		done <- result{n: n, err: err}
	}()

	select {
	case <-done:
		t.Fatal("copyLines returned without input")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case res := <-done:
		assert.ErrorIs(t, res.err, context.Canceled)
		assert.Zero(t, res.n)
	case <-time.After(2 * time.Second):
		t.Fatal("copyLines did not return after cancel")
	}
}

func TestSwappableSink(t *testing.T) {
	logger, cleanup, err := xlog.New().SetOutput(io.Discard).Build()
	require.NoError(t, err)
	defer cleanup()
	ctx := context.Background()

	dir1, dir2, dir3 := t.TempDir(), t.TempDir(), t.TempDir()
	first, err := openSink(ctx, xrotate.DefaultRollingConfig(dir1), nil, 0, logger)
	require.NoError(t, err)
	s := newSwappableSink(first)

	require.NoError(t, s.WriteLine(ctx, "one"))
	next, err := openSink(ctx, xrotate.DefaultRollingConfig(dir2), nil, 4, logger)
	require.NoError(t, err)
	require.NoError(t, s.swap(next))
	require.NoError(t, s.WriteLine(ctx, "two"))
	assert.Equal(t, dir2, filepath.Dir(s.CurrentFile()))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, int64(2), s.LinesWritten())
	assert.ErrorIs(t, s.WriteLine(ctx, "three"), xrotate.ErrClosed)

	late, err := openSink(ctx, xrotate.DefaultRollingConfig(dir3), nil, 0, logger)
	require.NoError(t, err)
	assert.ErrorIs(t, s.swap(late), xrotate.ErrClosed)
	assert.ErrorIs(t, late.WriteLine(ctx, "x"), xrotate.ErrClosed)

	assert.Equal(t, []string{"one"}, dirLines(t, dir1))
	assert.Equal(t, []string{"two"}, dirLines(t, dir2))
}

func TestIsCLIUsageError(t *testing.T) {
	assert.True(t, isCLIUsageError(errors.New("flag provided but not defined: -x")))
	assert.True(t, isCLIUsageError(errors.New(`invalid value "a" for flag -keep`)))
	assert.False(t, isCLIUsageError(errors.New("permission denied")))
	assert.False(t, isCLIUsageError(&usageError{msg: "需要 --dir"}))
}
