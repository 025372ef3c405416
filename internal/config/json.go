package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Duration wraps time.Duration so JSON config files can use human-readable
// values like "3s" or "1m30s".
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler. Accepts either a duration
// string ("3s") or a bare number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration value: %v", v)
	}
}

// jsonConfig mirrors [Config] with json tags and string durations.
type jsonConfig struct {
	Storage struct {
		DBPath string `json:"db_path"`
	} `json:"storage,omitempty"`

	Sync struct {
		AutoSync     bool     `json:"auto_sync"`
		QuietPeriod  Duration `json:"quiet_period"`
		StartupGrace Duration `json:"startup_grace"`
		HistoryLimit int      `json:"history_limit"`
	} `json:"sync,omitempty"`

	Providers struct {
		HTTPBlob struct {
			Endpoint string   `json:"endpoint"`
			Token    string   `json:"token"`
			Timeout  Duration `json:"timeout"`
		} `json:"httpblob,omitempty"`
		Gist struct {
			Token  string `json:"token"`
			GistID string `json:"gist_id"`
		} `json:"gist,omitempty"`
		SyncDir struct {
			Dir string `json:"dir"`
		} `json:"syncdir,omitempty"`
	} `json:"providers,omitempty"`

	IPC struct {
		SocketPath string `json:"socket"`
	} `json:"ipc,omitempty"`
}

func parseJSON(jsonFilePath string) (*Config, error) {
	jsonFile, err := os.Open(jsonFilePath)
	if err != nil {
		return nil, fmt.Errorf("error reading a json file: %w", err)
	}
	defer jsonFile.Close()

	var jc jsonConfig
	if err := json.NewDecoder(jsonFile).Decode(&jc); err != nil {
		return nil, fmt.Errorf("error decoding json configs: %w", err)
	}

	cfg := &Config{
		Storage: Storage{DBPath: jc.Storage.DBPath},
		Sync: Sync{
			AutoSync:     jc.Sync.AutoSync,
			QuietPeriod:  time.Duration(jc.Sync.QuietPeriod),
			StartupGrace: time.Duration(jc.Sync.StartupGrace),
			HistoryLimit: jc.Sync.HistoryLimit,
		},
		Providers: Providers{
			HTTPBlob: HTTPBlob{
				Endpoint: jc.Providers.HTTPBlob.Endpoint,
				Token:    jc.Providers.HTTPBlob.Token,
				Timeout:  time.Duration(jc.Providers.HTTPBlob.Timeout),
			},
			Gist: Gist{
				Token:  jc.Providers.Gist.Token,
				GistID: jc.Providers.Gist.GistID,
			},
			SyncDir: SyncDir{Dir: jc.Providers.SyncDir.Dir},
		},
		IPC: IPC{SocketPath: jc.IPC.SocketPath},
	}

	return cfg, nil
}
