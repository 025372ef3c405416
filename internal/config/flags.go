package config

import (
	"flag"
	"time"
)

// ParseFlags parses all configuration flags.
//
// Flags:
//
//	-d local vault database path
//	-auto-sync enable change-triggered syncing
//	-quiet-period debounce quiet period (e.g. "3s")
//	-startup-grace startup remote-check grace delay (e.g. "5s")
//	-history-limit sync history log cap
//	-blob-endpoint object-storage base URL
//	-blob-token object-storage bearer token
//	-gist-token GitHub OAuth token for the gist backend
//	-gist-id existing gist id to reuse
//	-sync-dir synced-folder backend directory
//	-ipc-socket unix socket path for window coordination
//	-c/-config json file path with configs
func ParseFlags() *Config {
	var dbPath string
	var autoSync bool
	var quietPeriod time.Duration
	var startupGrace time.Duration
	var historyLimit int
	var blobEndpoint string
	var blobToken string
	var gistToken string
	var gistID string
	var syncDir string
	var ipcSocket string
	var jsonConfigPath string

	flag.StringVar(&dbPath, "d", "", "Local vault database path")
	flag.BoolVar(&autoSync, "auto-sync", false, "Enable change-triggered syncing")
	flag.DurationVar(&quietPeriod, "quiet-period", 0, "Debounce quiet period")
	flag.DurationVar(&startupGrace, "startup-grace", 0, "Startup remote-check grace delay")
	flag.IntVar(&historyLimit, "history-limit", 0, "Sync history log cap")
	flag.StringVar(&blobEndpoint, "blob-endpoint", "", "Object-storage base URL")
	flag.StringVar(&blobToken, "blob-token", "", "Object-storage bearer token")
	flag.StringVar(&gistToken, "gist-token", "", "GitHub OAuth token for the gist backend")
	flag.StringVar(&gistID, "gist-id", "", "Existing gist id to reuse")
	flag.StringVar(&syncDir, "sync-dir", "", "Synced-folder backend directory")
	flag.StringVar(&ipcSocket, "ipc-socket", "", "Unix socket path for window coordination")
	flag.StringVar(&jsonConfigPath, "c", "", "JSON config file path")
	flag.StringVar(&jsonConfigPath, "config", "", "JSON config file path")

	flag.Parse()

	return &Config{
		Storage: Storage{DBPath: dbPath},
		Sync: Sync{
			AutoSync:     autoSync,
			QuietPeriod:  quietPeriod,
			StartupGrace: startupGrace,
			HistoryLimit: historyLimit,
		},
		Providers: Providers{
			HTTPBlob: HTTPBlob{Endpoint: blobEndpoint, Token: blobToken},
			Gist:     Gist{Token: gistToken, GistID: gistID},
			SyncDir:  SyncDir{Dir: syncDir},
		},
		IPC:          IPC{SocketPath: ipcSocket},
		JSONFilePath: jsonConfigPath,
	}
}
