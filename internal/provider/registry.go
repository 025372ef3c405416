// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/termhub/connvault/internal/logger"
	"github.com/termhub/connvault/models"
)

// Registry owns the connection lifecycle of every known backend and routes
// fetch/push calls to the right adapter. Registration order is the fixed
// priority order used to pick the primary provider.
type Registry struct {
	logger *logger.Logger

	mu       sync.RWMutex
	order    []models.ProviderID
	adapters map[models.ProviderID]Adapter
	conns    map[models.ProviderID]*models.ProviderConnection
}

// NewRegistry builds a registry over the given adapters. Every adapter gets
// a connection entry immediately, starting disconnected, so readers always
// see the full provider map.
func NewRegistry(log *logger.Logger, adapters ...Adapter) *Registry {
	r := &Registry{
		logger:   log,
		adapters: make(map[models.ProviderID]Adapter, len(adapters)),
		conns:    make(map[models.ProviderID]*models.ProviderConnection, len(adapters)),
	}
	for _, a := range adapters {
		id := a.ID()
		r.order = append(r.order, id)
		r.adapters[id] = a
		r.conns[id] = &models.ProviderConnection{ProviderID: id, Status: models.ProviderDisconnected}
	}
	return r
}

// Connect authenticates the backend and moves it to connected. On failure
// the backend moves to error with the failure recorded.
func (r *Registry) Connect(ctx context.Context, id models.ProviderID, creds models.ProviderCredentials) (models.AccountInfo, error) {
	adapter, err := r.adapter(id)
	if err != nil {
		return models.AccountInfo{}, err
	}

	account, err := adapter.Connect(ctx, creds)
	if err != nil {
		r.setStatus(id, models.ProviderError, err)
		r.logger.Err(err).Str("provider", string(id)).Msg("provider connect failed")
		return models.AccountInfo{}, fmt.Errorf("connect provider %s: %w", id, err)
	}

	r.mu.Lock()
	conn := r.conns[id]
	conn.Status = models.ProviderConnected
	conn.Account = &account
	conn.LastError = ""
	r.mu.Unlock()

	r.logger.Info().Str("provider", string(id)).Str("account", account.AccountID).Msg("provider connected")
	return account, nil
}

// Disconnect moves the backend to disconnected from any state.
func (r *Registry) Disconnect(ctx context.Context, id models.ProviderID) error {
	adapter, err := r.adapter(id)
	if err != nil {
		return err
	}

	if err = adapter.Disconnect(ctx); err != nil {
		r.logger.Err(err).Str("provider", string(id)).Msg("provider disconnect failed")
	}

	r.mu.Lock()
	conn := r.conns[id]
	conn.Status = models.ProviderDisconnected
	conn.Account = nil
	conn.LastError = ""
	r.mu.Unlock()

	return nil
}

// Fetch retrieves the remote snapshot through the backend, tracking the
// connected→syncing→connected status transition. Any failure moves the
// backend to error; a later successful call moves it back to connected.
func (r *Registry) Fetch(ctx context.Context, id models.ProviderID) (*models.RemoteSnapshot, error) {
	adapter, err := r.connectedAdapter(id)
	if err != nil {
		return nil, err
	}

	r.setStatus(id, models.ProviderSyncing, nil)
	snapshot, err := adapter.Fetch(ctx)
	if err != nil {
		r.setStatus(id, models.ProviderError, err)
		return nil, fmt.Errorf("fetch from provider %s: %w", id, err)
	}

	r.setStatus(id, models.ProviderConnected, nil)
	return snapshot, nil
}

// Push performs the conditional write through the backend. A version
// conflict is a sync-level outcome, not a backend fault, so the backend
// returns to connected in that case.
func (r *Registry) Push(ctx context.Context, id models.ProviderID, blob string, expectedVersion int64) (int64, error) {
	adapter, err := r.connectedAdapter(id)
	if err != nil {
		return 0, err
	}

	r.setStatus(id, models.ProviderSyncing, nil)
	newVersion, err := adapter.Push(ctx, blob, expectedVersion)
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			r.setStatus(id, models.ProviderConnected, nil)
		} else {
			r.setStatus(id, models.ProviderError, err)
		}
		return 0, fmt.Errorf("push to provider %s: %w", id, err)
	}

	r.setStatus(id, models.ProviderConnected, nil)
	return newVersion, nil
}

// Primary returns the highest-priority connected backend.
func (r *Registry) Primary() (models.ProviderID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if r.conns[id].Status == models.ProviderConnected || r.conns[id].Status == models.ProviderSyncing {
			return id, true
		}
	}
	return "", false
}

// Connections returns a copy of the per-backend connection map. The map
// always contains an entry for every known backend id.
func (r *Registry) Connections() map[models.ProviderID]models.ProviderConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[models.ProviderID]models.ProviderConnection, len(r.conns))
	for id, conn := range r.conns {
		out[id] = *conn
	}
	return out
}

func (r *Registry) adapter(id models.ProviderID) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return adapter, nil
}

func (r *Registry) connectedAdapter(id models.ProviderID) (Adapter, error) {
	adapter, err := r.adapter(id)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	status := r.conns[id].Status
	r.mu.RUnlock()

	if status != models.ProviderConnected && status != models.ProviderSyncing {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, id)
	}
	return adapter, nil
}

func (r *Registry) setStatus(id models.ProviderID, status models.ProviderStatus, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn := r.conns[id]
	conn.Status = status
	if cause != nil {
		conn.LastError = cause.Error()
	} else {
		conn.LastError = ""
	}
}
