package syncer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termhub/connvault/models"
)

func TestHistory_MostRecentFirst(t *testing.T) {
	h := NewHistory(10)

	for i := 0; i < 3; i++ {
		h.Record(models.SyncHistoryEntry{
			ProviderID: models.ProviderHTTPBlob,
			Action:     models.ActionUpload,
			Error:      fmt.Sprintf("e%d", i),
		})
	}

	entries := h.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "e2", entries[0].Error)
	assert.Equal(t, "e0", entries[2].Error)
}

func TestHistory_CapDropsOldest(t *testing.T) {
	h := NewHistory(2)

	h.Record(models.SyncHistoryEntry{Error: "oldest"})
	h.Record(models.SyncHistoryEntry{Error: "middle"})
	h.Record(models.SyncHistoryEntry{Error: "newest"})

	entries := h.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "newest", entries[0].Error)
	assert.Equal(t, "middle", entries[1].Error)
}

func TestHistory_RecordAssignsIdentity(t *testing.T) {
	h := NewHistory(10)

	first := h.Record(models.SyncHistoryEntry{Action: models.ActionDownload})
	second := h.Record(models.SyncHistoryEntry{Action: models.ActionDownload})

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.Timestamp.IsZero())
}

func TestHistory_EntriesReturnsCopy(t *testing.T) {
	h := NewHistory(10)
	h.Record(models.SyncHistoryEntry{Action: models.ActionUpload})

	entries := h.Entries()
	entries[0].Action = models.ActionDownload

	assert.Equal(t, models.ActionUpload, h.Entries()[0].Action)
}
