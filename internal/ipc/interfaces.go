package ipc

import (
	"context"

	"github.com/termhub/connvault/internal/session"
	"github.com/termhub/connvault/internal/syncer"
	"github.com/termhub/connvault/models"
)

// SessionAPI is the slice of the session owner the IPC server exposes to
// sibling windows. Implemented by *session.Session.
type SessionAPI interface {
	State() models.SessionSnapshot
	Wait(ctx context.Context, since int64) (int64, models.SessionSnapshot)
	Seq() int64

	Unlock(ctx context.Context, masterPassword string) error
	Lock()
	SessionPassword() (string, bool)
	ClearSessionPassword()

	ConnectProvider(ctx context.Context, id models.ProviderID, creds models.ProviderCredentials) (models.AccountInfo, error)
	DisconnectProvider(ctx context.Context, id models.ProviderID) error

	SyncNow(ctx context.Context, opts syncer.Options) (map[models.ProviderID]models.SyncResult, error)
	DownloadFromProvider(ctx context.Context, id models.ProviderID) (*models.SyncPayload, error)
	AcknowledgeSync()

	History() []models.SyncHistoryEntry
	Notifications() []session.Notification
}
