// SPDX-License-Identifier: Apache-2.0

package models

// SecurityState is the lock state of the vault.
type SecurityState string

const (
	SecurityLocked   SecurityState = "LOCKED"
	SecurityUnlocked SecurityState = "UNLOCKED"
)

// SyncState is the engine state of the session.
type SyncState string

const (
	SyncIdle     SyncState = "IDLE"
	SyncSyncing  SyncState = "SYNCING"
	SyncConflict SyncState = "CONFLICT"
	SyncError    SyncState = "ERROR"
)

// SessionSnapshot is a read-only copy of the authoritative session state.
// Exactly one process owns the mutable state; sibling windows receive
// snapshots over IPC and must never mutate them in place.
type SessionSnapshot struct {
	SecurityState   SecurityState                     `json:"security_state"`
	SyncState       SyncState                         `json:"sync_state"`
	LocalVersion    int64                             `json:"local_version"`
	RemoteVersion   int64                             `json:"remote_version"`
	LocalUpdatedAt  int64                             `json:"local_updated_at"`  // epoch ms
	RemoteUpdatedAt int64                             `json:"remote_updated_at"` // epoch ms
	Providers       map[ProviderID]ProviderConnection `json:"providers"`
}

// SyncTrigger records what initiated a sync attempt.
type SyncTrigger string

const (
	TriggerManual  SyncTrigger = "manual"
	TriggerAuto    SyncTrigger = "auto"
	TriggerStartup SyncTrigger = "startup"
)

// SyncResult is the per-provider outcome of one SyncNow call. Action is
// empty when the attempt failed before a decision was made, or when neither
// side had changed and nothing needed to move.
type SyncResult struct {
	Success          bool       `json:"success"`
	ConflictDetected bool       `json:"conflict_detected"`
	Action           SyncAction `json:"action,omitempty"`
	Error            string     `json:"error,omitempty"`
}
