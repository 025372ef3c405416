// SPDX-License-Identifier: Apache-2.0

package config

import (
	"time"
)

// Config is the top-level configuration container for a connvault process.
// It aggregates all sub-configurations and is populated by merging values
// from environment variables, command-line flags, and an optional JSON file.
//
// Struct tags:
//   - envPrefix — prefix applied to all nested env tag lookups (caarlos0/env).
//   - env       — direct environment variable name for scalar fields.
type Config struct {
	// Storage holds the local vault store settings.
	Storage Storage `envPrefix:"STORAGE_"`

	// Sync holds the auto-sync scheduler and history settings.
	Sync Sync `envPrefix:"SYNC_"`

	// Providers holds per-backend connection settings.
	Providers Providers `envPrefix:"PROVIDER_"`

	// IPC holds the cross-window coordination settings.
	IPC IPC `envPrefix:"IPC_"`

	// JSONFilePath is the optional path to a JSON configuration file.
	// When non-empty, the file is parsed and merged with the values already
	// loaded from environment variables and flags.
	// Populated via the CONFIG environment variable or the -c / -config flag.
	JSONFilePath string `env:"CONFIG"`
}

// Storage holds the local vault store settings.
type Storage struct {
	// DBPath is the path of the SQLite database file holding the local
	// vault. In-memory databases are rejected by validation: the vault must
	// survive process restarts.
	// Env: STORAGE_DB_PATH
	DBPath string `env:"DB_PATH"`
}

// Sync holds scheduler and history tuning.
type Sync struct {
	// AutoSync enables change-triggered background syncing.
	// Env: SYNC_AUTO
	AutoSync bool `env:"AUTO"`

	// QuietPeriod is the debounce window: a change-triggered sync fires
	// only after this much time passes with no further changes.
	// Env: SYNC_QUIET_PERIOD
	QuietPeriod time.Duration `env:"QUIET_PERIOD"`

	// StartupGrace is the delay before the one-time startup remote check,
	// counted from the moment a connected provider and an unlocked vault
	// are both observed.
	// Env: SYNC_STARTUP_GRACE
	StartupGrace time.Duration `env:"STARTUP_GRACE"`

	// HistoryLimit caps the in-memory sync history log.
	// Env: SYNC_HISTORY_LIMIT
	HistoryLimit int `env:"HISTORY_LIMIT"`
}

// Providers groups per-backend settings. A backend with an empty
// configuration stays registered but disconnected.
type Providers struct {
	HTTPBlob HTTPBlob `envPrefix:"HTTPBLOB_"`
	Gist     Gist     `envPrefix:"GIST_"`
	SyncDir  SyncDir  `envPrefix:"SYNCDIR_"`
}

// HTTPBlob configures the object-storage backend.
type HTTPBlob struct {
	// Endpoint is the base URL of the blob service.
	// Env: PROVIDER_HTTPBLOB_ENDPOINT
	Endpoint string `env:"ENDPOINT"`

	// Token is the bearer token presented on every request.
	// Env: PROVIDER_HTTPBLOB_TOKEN
	Token string `env:"TOKEN"`

	// Timeout bounds every single HTTP call made by the adapter.
	// Env: PROVIDER_HTTPBLOB_TIMEOUT
	Timeout time.Duration `env:"TIMEOUT"`
}

// Gist configures the git-hosted document store backend.
type Gist struct {
	// Token is the OAuth token used against the GitHub API.
	// Env: PROVIDER_GIST_TOKEN
	Token string `env:"TOKEN"`

	// GistID selects an existing gist holding the vault document. Empty
	// means a new secret gist is created on first push.
	// Env: PROVIDER_GIST_ID
	GistID string `env:"ID"`
}

// SyncDir configures the synced-folder backend.
type SyncDir struct {
	// Dir is the folder (e.g. inside a Dropbox/Drive mount) the encrypted
	// vault document is written to.
	// Env: PROVIDER_SYNCDIR_DIR
	Dir string `env:"DIR"`
}

// IPC holds cross-window coordination settings.
type IPC struct {
	// SocketPath is the unix domain socket the session owner listens on.
	// Sibling windows detect an existing owner by connecting to it.
	// Env: IPC_SOCKET
	SocketPath string `env:"SOCKET"`
}

// Get loads, merges, and validates the process configuration from all
// available sources in the following priority order (earlier sources win for
// non-zero fields):
//  1. Environment variables
//  2. Command-line flags
//  3. JSON file (path resolved from sources 1 and 2)
//  4. Built-in defaults
//
// Returns a fully populated *Config or an error if any source fails to load
// or the final config fails validation.
func Get() (*Config, error) {
	return newConfigBuilder().
		withEnv().
		withFlags().
		withJSON().
		withDefaults().
		build()
}
