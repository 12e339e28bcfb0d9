package xconf

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_Reload(t *testing.T) {
	path := writeConfig(t, "rolling.yaml", "files_to_keep: 3\n")
	cfg, err := New(path)
	require.NoError(t, err)

	var mu sync.Mutex
	var calls int
	var lastErr error
	w, err := Watch(cfg, func(_ Config, err error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		lastErr = err
	}, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	w.StartAsync()
	defer func() { _ = w.Stop() }()

	require.NoError(t, os.WriteFile(path, []byte("files_to_keep: 9\n"), 0o600))

	require.Eventually(t, func() bool {
		return cfg.Client().Int("files_to_keep") == 9
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.GreaterOrEqual(t, calls, 1)
	assert.NoError(t, lastErr)
	mu.Unlock()
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	path := writeConfig(t, "rolling.yaml", "files_to_keep: 3\n")
	cfg, err := New(path)
	require.NoError(t, err)

	var mu sync.Mutex
	calls := 0
	w, err := Watch(cfg, func(Config, error) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	w.StartAsync()

	require.NoError(t, os.WriteFile(path+".swp", []byte("junk"), 0o600))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, w.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}

func TestWatch_Errors(t *testing.T) {
	fromBytes, err := NewFromBytes([]byte("a: 1"), FormatYAML)
	require.NoError(t, err)
	_, err = Watch(fromBytes, nil)
	assert.ErrorIs(t, err, ErrNotReloadable)

	_, err = Watch(fakeConfig{}, nil)
	assert.Error(t, err)
}

func TestWatcher_StopIdempotent(t *testing.T) {
	cfg, err := New(writeConfig(t, "c.json", `{}`))
	require.NoError(t, err)

	w, err := Watch(cfg, nil)
	require.NoError(t, err)

	// 未启动时 Stop 也能释放 fsnotify
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	// Stop 之后不能再启动
	w.StartAsync()
	w.Start()
}

func TestWatcher_StartBlocksUntilStop(t *testing.T) {
	cfg, err := New(writeConfig(t, "c.yaml", "a: 1\n"))
	require.NoError(t, err)
	w, err := Watch(cfg, nil)
	require.NoError(t, err)

	returned := make(chan struct{})
	go func() {
		w.Start()
		close(returned)
	}()

	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.running
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop())

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestWatcher_StopWaitsForRunningCallback(t *testing.T) {
	path := writeConfig(t, "rolling.yaml", "files_to_keep: 3\n")
	cfg, err := New(path)
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	w, err := Watch(cfg, func(Config, error) {
		once.Do(func() { close(entered) })
		<-release
	}, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	w.StartAsync()

	require.NoError(t, os.WriteFile(path, []byte("files_to_keep: 9\n"), 0o600))
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- w.Stop() }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while callback still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after callback finished")
	}
}

func TestWatcher_NoCallbackAfterStop(t *testing.T) {
	path := writeConfig(t, "rolling.yaml", "files_to_keep: 3\n")
	cfg, err := New(path)
	require.NoError(t, err)

	var mu sync.Mutex
	calls := 0
	w, err := Watch(cfg, func(Config, error) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, WithDebounce(500*time.Millisecond))
	require.NoError(t, err)
	w.StartAsync()

	require.NoError(t, os.WriteFile(path, []byte("files_to_keep: 9\n"), 0o600))
	// 等待防抖定时器排上，再在它触发前停止
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.timer != nil
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, w.Stop())

	time.Sleep(700 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
	assert.Equal(t, 3, cfg.Client().Int("files_to_keep"))
}

type fakeConfig struct{ Config }
