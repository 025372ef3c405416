// SPDX-License-Identifier: Apache-2.0

package config

import "strings"

// validate checks that the final merged [Config] satisfies the invariants
// the rest of the application assumes at startup.
//
// Returns nil if the configuration is valid, or a sentinel error otherwise.
func (cfg *Config) validate() error {
	if cfg.Storage.DBPath == "" || strings.Contains(cfg.Storage.DBPath, "memory") {
		return ErrInvalidStorageConfigs
	}

	if cfg.Sync.QuietPeriod <= 0 || cfg.Sync.HistoryLimit <= 0 {
		return ErrInvalidSyncConfigs
	}

	if cfg.IPC.SocketPath == "" {
		return ErrInvalidIPCConfigs
	}

	return nil
}
