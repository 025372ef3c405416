package config

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── helpers ───────────────────────────────────────────────────────────────────

func writeTempJSONConfig(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	f, err := os.CreateTemp(t.TempDir(), "config-*.json")
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

// ── newConfigBuilder ──────────────────────────────────────────────────────────

// TestNewConfigBuilder_InitialState verifies that a freshly created builder
// has no error and an empty configs slice.
func TestNewConfigBuilder_InitialState(t *testing.T) {
	b := newConfigBuilder()
	require.NotNil(t, b)
	assert.NoError(t, b.err)
	assert.Empty(t, b.configs)
}

// ── build ─────────────────────────────────────────────────────────────────────

// TestBuild_PropagatesBuilderError verifies that a pre-set b.err is wrapped
// and returned, with nil config.
func TestBuild_PropagatesBuilderError(t *testing.T) {
	b := newConfigBuilder()
	b.err = assert.AnError

	cfg, err := b.build()
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

// TestBuild_MergesMultipleConfigs verifies that fields from multiple configs
// are merged into a single result, earlier configs winning.
func TestBuild_MergesMultipleConfigs(t *testing.T) {
	b := newConfigBuilder()
	b.configs = append(b.configs,
		&Config{Storage: Storage{DBPath: "first.db"}},
		&Config{Storage: Storage{DBPath: "second.db"}},
		&Config{IPC: IPC{SocketPath: "win.sock"}},
	)
	b.withDefaults()

	cfg, err := b.build()
	require.NoError(t, err)
	assert.Equal(t, "first.db", cfg.Storage.DBPath)
	assert.Equal(t, "win.sock", cfg.IPC.SocketPath)
}

// TestBuild_DefaultsOnly verifies that the built-in defaults alone produce a
// valid configuration.
func TestBuild_DefaultsOnly(t *testing.T) {
	cfg, err := newConfigBuilder().withDefaults().build()
	require.NoError(t, err)
	assert.Equal(t, "connvault.db", cfg.Storage.DBPath)
	assert.Equal(t, 3*time.Second, cfg.Sync.QuietPeriod)
	assert.Equal(t, 50, cfg.Sync.HistoryLimit)
	assert.True(t, cfg.Sync.AutoSync)
}

// ── validation ────────────────────────────────────────────────────────────────

// TestValidate_RejectsInMemoryDB verifies the vault store cannot point at an
// in-memory database.
func TestValidate_RejectsInMemoryDB(t *testing.T) {
	cfg := &Config{
		Storage: Storage{DBPath: ":memory:"},
		Sync:    Sync{QuietPeriod: time.Second, HistoryLimit: 10},
		IPC:     IPC{SocketPath: "s.sock"},
	}
	assert.ErrorIs(t, cfg.validate(), ErrInvalidStorageConfigs)
}

// TestValidate_RejectsZeroQuietPeriod verifies scheduler settings are checked.
func TestValidate_RejectsZeroQuietPeriod(t *testing.T) {
	cfg := &Config{
		Storage: Storage{DBPath: "v.db"},
		Sync:    Sync{QuietPeriod: 0, HistoryLimit: 10},
		IPC:     IPC{SocketPath: "s.sock"},
	}
	assert.ErrorIs(t, cfg.validate(), ErrInvalidSyncConfigs)
}

// TestValidate_RejectsEmptySocket verifies the IPC socket path is required.
func TestValidate_RejectsEmptySocket(t *testing.T) {
	cfg := &Config{
		Storage: Storage{DBPath: "v.db"},
		Sync:    Sync{QuietPeriod: time.Second, HistoryLimit: 10},
	}
	assert.ErrorIs(t, cfg.validate(), ErrInvalidIPCConfigs)
}

// ── JSON source ───────────────────────────────────────────────────────────────

// TestParseJSON_FullFile verifies that a complete JSON file maps onto Config,
// including human-readable durations.
func TestParseJSON_FullFile(t *testing.T) {
	path := writeTempJSONConfig(t, map[string]any{
		"storage": map[string]any{"db_path": "json.db"},
		"sync": map[string]any{
			"auto_sync":     true,
			"quiet_period":  "2s",
			"startup_grace": "7s",
			"history_limit": 25,
		},
		"providers": map[string]any{
			"httpblob": map[string]any{
				"endpoint": "https://blobs.example.com",
				"token":    "tok",
				"timeout":  "10s",
			},
			"gist": map[string]any{"token": "gh-tok", "gist_id": "abc123"},
		},
		"ipc": map[string]any{"socket": "/tmp/cv.sock"},
	})

	cfg, err := parseJSON(path)
	require.NoError(t, err)

	assert.Equal(t, "json.db", cfg.Storage.DBPath)
	assert.Equal(t, 2*time.Second, cfg.Sync.QuietPeriod)
	assert.Equal(t, 7*time.Second, cfg.Sync.StartupGrace)
	assert.Equal(t, 25, cfg.Sync.HistoryLimit)
	assert.Equal(t, "https://blobs.example.com", cfg.Providers.HTTPBlob.Endpoint)
	assert.Equal(t, 10*time.Second, cfg.Providers.HTTPBlob.Timeout)
	assert.Equal(t, "abc123", cfg.Providers.Gist.GistID)
	assert.Equal(t, "/tmp/cv.sock", cfg.IPC.SocketPath)
}

// TestParseJSON_MissingFile verifies a missing file surfaces an error.
func TestParseJSON_MissingFile(t *testing.T) {
	_, err := parseJSON("no-such-file.json")
	require.Error(t, err)
}

// TestDuration_UnmarshalNumber verifies bare nanosecond numbers are accepted.
func TestDuration_UnmarshalNumber(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte("1500000000"), &d))
	assert.Equal(t, Duration(1500*time.Millisecond), d)
}

// TestDuration_UnmarshalInvalid verifies garbage strings are rejected.
func TestDuration_UnmarshalInvalid(t *testing.T) {
	var d Duration
	require.Error(t, json.Unmarshal([]byte(`"not-a-duration"`), &d))
}
