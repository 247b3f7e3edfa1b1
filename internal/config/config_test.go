package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), DefaultFileName))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Contains(t, cfg.Servers, "java")
	assert.Contains(t, cfg.Servers, "mcfunction")
	assert.Equal(t, 32, cfg.Tasks.Capacity)
}

func TestLoad_PartialOverridesKeepDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	body := `
log_level = "debug"

[servers.java]
command = "custom-jdtls"
args = ["-data", "/tmp/ws"]
init_timeout_seconds = 10

[tasks]
capacity = 8
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "custom-jdtls", cfg.Servers["java"].Command)
	assert.Equal(t, 10*time.Second, cfg.Servers["java"].InitTimeout())
	assert.Equal(t, 8, cfg.Tasks.Capacity)

	// Untouched defaults survive a partial file.
	assert.Contains(t, cfg.Servers, "json")
	assert.Equal(t, 2, cfg.Tasks.Workers)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("log_level = ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ValidationRejectsEmptyCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	body := `
[servers.java]
command = ""
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "command must not be empty")
}

func TestServerConfig_InitTimeoutDefault(t *testing.T) {
	assert.Equal(t, 30*time.Second, ServerConfig{}.InitTimeout())
	assert.Equal(t, 5*time.Second, ServerConfig{InitTimeoutSeconds: 5}.InitTimeout())
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("log_level = \"info\"\n"), 0o644))

	reloaded := make(chan struct{}, 1)
	w, err := NewWatcher(path, func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	}, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("log_level = \"debug\"\n"), 0o644))

	select {
	case <-reloaded:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report the change")
	}
}

func TestWatcher_SurvivesAtomicSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("log_level = \"info\"\n"), 0o644))

	reloads := make(chan struct{}, 4)
	w, err := NewWatcher(path, func() { reloads <- struct{}{} }, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	// Save the way editors do: write a temp file next to the target and
	// rename it into place, twice, so the second save proves the watch
	// outlived the first rename.
	for i := 0; i < 2; i++ {
		tmp := filepath.Join(dir, "blockforge.toml.tmp")
		require.NoError(t, os.WriteFile(tmp, []byte("log_level = \"debug\"\n"), 0o644))
		require.NoError(t, os.Rename(tmp, path))

		select {
		case <-reloads:
		case <-time.After(3 * time.Second):
			t.Fatalf("watcher missed atomic save %d", i+1)
		}
	}
}
