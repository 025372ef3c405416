package provider

import (
	"context"

	"github.com/termhub/connvault/models"
)

// Adapter is the contract every storage backend implements. The engine
// treats backends as opaque collaborators: an encrypted blob goes up, an
// encrypted blob plus version metadata comes down. Versions must be
// monotonically increasing on successful writes.
type Adapter interface {
	// ID names the backend.
	ID() models.ProviderID

	// Connect authenticates against the backend. Fails with [ErrAuth] when
	// the credentials are rejected.
	Connect(ctx context.Context, creds models.ProviderCredentials) (models.AccountInfo, error)

	// Fetch returns the current remote snapshot, or (nil, nil) when no
	// vault document has ever been pushed. Fails with [ErrNetwork] or
	// [ErrNotFound].
	Fetch(ctx context.Context) (*models.RemoteSnapshot, error)

	// Push writes blob conditionally: the write succeeds only if the
	// remote version still equals expectedVersion (compare-and-swap).
	// Returns the new remote version, or [ErrVersionConflict] when the
	// remote moved underneath the caller.
	Push(ctx context.Context, blob string, expectedVersion int64) (int64, error)

	// Disconnect releases backend resources. Safe to call when not
	// connected.
	Disconnect(ctx context.Context) error
}
