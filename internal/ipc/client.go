// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/termhub/connvault/internal/provider"
	"github.com/termhub/connvault/internal/syncer"
	"github.com/termhub/connvault/internal/vault"
	"github.com/termhub/connvault/models"
)

// Client is a sibling window's view of the session owner. Every call is one
// request/response round trip over the unix socket; the client holds no
// session state of its own.
type Client struct {
	http *resty.Client
}

// NewClient builds a client for the owner's socket. The host part of the
// URL is a placeholder; routing happens via the unix dial.
func NewClient(socketPath string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}

	cli := resty.New().
		SetTransport(transport).
		SetBaseURL("http://connvault").
		SetTimeout(30 * time.Second)

	return &Client{http: cli}
}

// Ping reports whether an owner answers on the socket.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/v1/state")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoOwner, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: http %d", ErrNoOwner, resp.StatusCode())
	}
	return nil
}

// State fetches the owner's current session snapshot.
func (c *Client) State(ctx context.Context) (models.SessionSnapshot, error) {
	var snap models.SessionSnapshot
	resp, err := c.http.R().SetContext(ctx).SetResult(&snap).Get("/v1/state")
	if err := wireError(resp, err); err != nil {
		return models.SessionSnapshot{}, err
	}
	return snap, nil
}

// WaitEvent long-polls for the next session change after since. ok is false
// when the poll timed out with no change.
func (c *Client) WaitEvent(ctx context.Context, since int64) (eventSeq int64, state models.SessionSnapshot, ok bool, err error) {
	var event eventResponse
	resp, reqErr := c.http.R().
		SetContext(ctx).
		SetQueryParam("since", fmt.Sprintf("%d", since)).
		SetResult(&event).
		Get("/v1/events")
	if err = wireError(resp, reqErr); err != nil {
		return 0, models.SessionSnapshot{}, false, err
	}
	if resp.StatusCode() == http.StatusNoContent {
		return since, models.SessionSnapshot{}, false, nil
	}
	return event.Seq, event.State, true, nil
}

// Unlock asks the owner to unlock the vault.
func (c *Client) Unlock(ctx context.Context, masterPassword string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(unlockRequest{Password: masterPassword}).
		Post("/v1/unlock")
	return wireError(resp, err)
}

// Lock asks the owner to lock the vault.
func (c *Client) Lock(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Post("/v1/lock")
	return wireError(resp, err)
}

// SessionPassword retrieves the cached master password from the owner, so
// a new window does not have to re-prompt the user.
func (c *Client) SessionPassword(ctx context.Context) (string, bool, error) {
	var body passwordResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&body).Get("/v1/session/password")
	if resp != nil && resp.StatusCode() == http.StatusNotFound {
		return "", false, nil
	}
	if err := wireError(resp, err); err != nil {
		return "", false, err
	}
	return body.Password, true, nil
}

// ClearSessionPassword drops the owner's cached password.
func (c *Client) ClearSessionPassword(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Delete("/v1/session/password")
	return wireError(resp, err)
}

// SyncNow triggers a sync on the owner and returns the per-provider
// outcomes.
func (c *Client) SyncNow(ctx context.Context, opts syncer.Options) (map[models.ProviderID]models.SyncResult, error) {
	req := syncRequest{Trigger: opts.Trigger}
	switch opts.Force {
	case syncer.ForceUpload:
		req.Force = forceUpload
	case syncer.ForceDownload:
		req.Force = forceDownload
	}

	results := map[models.ProviderID]models.SyncResult{}
	resp, err := c.http.R().SetContext(ctx).SetBody(req).SetResult(&results).Post("/v1/sync")
	if err := wireError(resp, err); err != nil {
		return nil, err
	}
	return results, nil
}

// AcknowledgeSync returns the owner's engine from CONFLICT/ERROR to IDLE.
func (c *Client) AcknowledgeSync(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Post("/v1/sync/ack")
	return wireError(resp, err)
}

// ConnectProvider connects a backend on the owner.
func (c *Client) ConnectProvider(ctx context.Context, id models.ProviderID, creds models.ProviderCredentials) (models.AccountInfo, error) {
	var account models.AccountInfo
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(connectRequest{Credentials: creds}).
		SetResult(&account).
		Post("/v1/providers/" + string(id) + "/connect")
	if err := wireError(resp, err); err != nil {
		return models.AccountInfo{}, err
	}
	return account, nil
}

// DisconnectProvider disconnects a backend on the owner.
func (c *Client) DisconnectProvider(ctx context.Context, id models.ProviderID) error {
	resp, err := c.http.R().SetContext(ctx).Post("/v1/providers/" + string(id) + "/disconnect")
	return wireError(resp, err)
}

// DownloadFromProvider force-applies one backend's payload on the owner.
// Returns nil when the backend holds no document.
func (c *Client) DownloadFromProvider(ctx context.Context, id models.ProviderID) (*models.SyncPayload, error) {
	var payload models.SyncPayload
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&payload).
		Post("/v1/providers/" + string(id) + "/download")
	if err := wireError(resp, err); err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusNoContent {
		return nil, nil
	}
	return &payload, nil
}

// History fetches the owner's sync history.
func (c *Client) History(ctx context.Context) ([]models.SyncHistoryEntry, error) {
	var entries []models.SyncHistoryEntry
	resp, err := c.http.R().SetContext(ctx).SetResult(&entries).Get("/v1/history")
	if err := wireError(resp, err); err != nil {
		return nil, err
	}
	return entries, nil
}

// wireError maps transport failures and error responses back onto the
// session error taxonomy, mirroring statusFor on the server side.
func wireError(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoOwner, err)
	}
	if !resp.IsError() {
		return nil
	}

	var body errorResponse
	_ = json.Unmarshal(resp.Body(), &body)
	detail := body.Error
	if detail == "" {
		detail = http.StatusText(resp.StatusCode())
	}

	switch resp.StatusCode() {
	case http.StatusLocked:
		return fmt.Errorf("%w: %s", vault.ErrVaultLocked, detail)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", vault.ErrInvalidPassword, detail)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", syncer.ErrSyncInProgress, detail)
	case http.StatusPreconditionFailed:
		return fmt.Errorf("%w: %s", syncer.ErrNoProviderConnected, detail)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", provider.ErrNotFound, detail)
	default:
		return fmt.Errorf("session owner: http %d: %s", resp.StatusCode(), detail)
	}
}
