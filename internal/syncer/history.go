// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/termhub/connvault/models"
)

// History is the bounded, append-only record of past sync outcomes. Entries
// are kept most-recent-first; once the cap is reached the oldest entry is
// dropped. The log is in-memory only and starts empty every session.
type History struct {
	mu      sync.Mutex
	limit   int
	entries []models.SyncHistoryEntry
}

// NewHistory builds a history log holding at most limit entries.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 50
	}
	return &History{limit: limit}
}

// Record appends an outcome, assigning it an id and timestamp.
func (h *History) Record(entry models.SyncHistoryEntry) models.SyncHistoryEntry {
	entry.ID = uuid.NewString()
	entry.Timestamp = time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append([]models.SyncHistoryEntry{entry}, h.entries...)
	if len(h.entries) > h.limit {
		h.entries = h.entries[:h.limit]
	}
	return entry
}

// Entries returns a copy of the log, most recent first.
func (h *History) Entries() []models.SyncHistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]models.SyncHistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}
