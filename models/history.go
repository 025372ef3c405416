// SPDX-License-Identifier: Apache-2.0

package models

import "time"

// SyncAction classifies a history entry.
type SyncAction string

const (
	ActionUpload   SyncAction = "upload"
	ActionDownload SyncAction = "download"
	ActionResolved SyncAction = "resolved"
)

// SyncHistoryEntry is one recorded sync outcome. Entries are kept
// most-recent-first in a bounded log.
type SyncHistoryEntry struct {
	ID           string      `json:"id"`
	ProviderID   ProviderID  `json:"provider_id"`
	Action       SyncAction  `json:"action"`
	Trigger      SyncTrigger `json:"trigger"`
	LocalVersion int64       `json:"local_version"`
	Success      bool        `json:"success"`
	Error        string      `json:"error,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}
