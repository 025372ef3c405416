package config

import "errors"

// Validation errors returned by [Config.validate] when required
// configuration groups are incomplete or invalid.
var (
	// ErrInvalidStorageConfigs indicates invalid local store settings
	// (for example, an empty or in-memory database path).
	ErrInvalidStorageConfigs = errors.New("invalid storage configuration")
	// ErrInvalidSyncConfigs indicates invalid scheduler settings
	// (for example, a zero quiet period or non-positive history cap).
	ErrInvalidSyncConfigs = errors.New("invalid sync configuration")
	// ErrInvalidIPCConfigs indicates an empty IPC socket path.
	ErrInvalidIPCConfigs = errors.New("invalid ipc configuration")
)
