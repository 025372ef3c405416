package syncer

import (
	"context"

	"github.com/termhub/connvault/models"
)

// Gate is the slice of the vault security gate the engine needs. Implemented
// by *vault.Gate.
type Gate interface {
	State() models.SecurityState
	EncryptPayload(payload *models.SyncPayload) (string, error)
	DecryptPayload(blob string) (*models.SyncPayload, error)
}

// Backend is the slice of the provider registry the engine needs.
// Implemented by *provider.Registry.
type Backend interface {
	// Primary returns the highest-priority connected backend.
	Primary() (models.ProviderID, bool)

	// Fetch returns the remote snapshot, or nil when the backend holds no
	// document yet.
	Fetch(ctx context.Context, id models.ProviderID) (*models.RemoteSnapshot, error)

	// Push performs the conditional write and returns the new version.
	Push(ctx context.Context, id models.ProviderID, blob string, expectedVersion int64) (int64, error)
}

// Syncer is the trigger surface the scheduler drives. Implemented by
// *Engine; split out so scheduler tests can observe triggers directly.
type Syncer interface {
	SyncNow(ctx context.Context, opts Options) (map[models.ProviderID]models.SyncResult, error)
}

// Notifier delivers non-blocking user notifications for outcomes the caller
// did not explicitly request: auto-sync failures and startup downloads.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }
