// SPDX-License-Identifier: Apache-2.0

// Package session wires the security gate, provider registry, sync engine,
// and scheduler into the one authoritative session object a process owns.
// Exactly one process per machine is the session owner; sibling windows talk
// to it over IPC and only ever see read-only snapshots.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/termhub/connvault/internal/config"
	"github.com/termhub/connvault/internal/crypto"
	"github.com/termhub/connvault/internal/logger"
	"github.com/termhub/connvault/internal/provider"
	"github.com/termhub/connvault/internal/store"
	"github.com/termhub/connvault/internal/syncer"
	"github.com/termhub/connvault/internal/vault"
	"github.com/termhub/connvault/models"
)

// Notification is one non-blocking user-facing message produced by the
// background sync machinery.
type Notification struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

const notificationCap = 20

// Session owns the mutable sync session state for its process lifetime.
// All mutation goes through the gate, registry, and engine it wraps; every
// change bumps a sequence number that IPC long-polls wait on.
type Session struct {
	gate      *vault.Gate
	registry  *provider.Registry
	engine    *syncer.Engine
	scheduler *syncer.Scheduler
	storages  *store.Storages
	logger    *logger.Logger

	mu            sync.Mutex
	seq           int64
	changed       chan struct{}
	notifications []Notification
}

// New builds and wires a session. Call Start before use and Close at
// shutdown.
func New(cfg *config.Config, storages *store.Storages, log *logger.Logger) *Session {
	s := &Session{
		storages: storages,
		logger:   log,
		changed:  make(chan struct{}),
	}

	s.gate = vault.NewGate(crypto.NewKeyChain(), storages.Meta, log)
	s.registry = provider.NewRegistry(log,
		provider.NewHTTPBlobAdapter(provider.HTTPBlobConfig{
			BaseURL: cfg.Providers.HTTPBlob.Endpoint,
			Timeout: cfg.Providers.HTTPBlob.Timeout,
		}),
		provider.NewGistAdapter(),
		provider.NewSyncDirAdapter(),
	)

	history := syncer.NewHistory(cfg.Sync.HistoryLimit)
	s.engine = syncer.NewEngine(s.gate, s.registry, storages, history, log)
	s.scheduler = syncer.NewScheduler(cfg.Sync, s.engine, s.gate, s.registry, syncer.NotifierFunc(s.notify), log)

	s.gate.SetOnChange(func(models.SecurityState) { s.broadcast() })
	s.engine.SetOnChange(s.broadcast)

	return s
}

// Start restores persisted sync bookkeeping.
func (s *Session) Start(ctx context.Context) error {
	if err := s.engine.Load(ctx); err != nil {
		return fmt.Errorf("restore sync state: %w", err)
	}
	return nil
}

// Close cancels scheduler timers and locks the vault.
func (s *Session) Close() {
	s.scheduler.Stop()
	s.gate.Lock()
}

// State composes the read-only session snapshot handed to windows.
func (s *Session) State() models.SessionSnapshot {
	status := s.engine.Status()
	return models.SessionSnapshot{
		SecurityState:   s.gate.State(),
		SyncState:       status.State,
		LocalVersion:    status.LocalVersion,
		RemoteVersion:   status.RemoteVersion,
		LocalUpdatedAt:  status.LocalUpdatedAt,
		RemoteUpdatedAt: status.RemoteUpdatedAt,
		Providers:       s.registry.Connections(),
	}
}

// Unlock unlocks the vault and arms the startup check if a provider is
// already connected.
func (s *Session) Unlock(ctx context.Context, masterPassword string) error {
	if err := s.gate.Unlock(ctx, masterPassword); err != nil {
		return err
	}
	s.maybeArmStartup()
	return nil
}

// Lock locks the vault.
func (s *Session) Lock() {
	s.gate.Lock()
}

// SessionPassword serves the cross-window password hand-off.
func (s *Session) SessionPassword() (string, bool) {
	return s.gate.SessionPassword()
}

// ClearSessionPassword drops the cached password without locking.
func (s *Session) ClearSessionPassword() {
	s.gate.ClearSessionPassword()
	s.broadcast()
}

// ConnectProvider connects a backend and arms the startup check if the
// vault is already unlocked.
func (s *Session) ConnectProvider(ctx context.Context, id models.ProviderID, creds models.ProviderCredentials) (models.AccountInfo, error) {
	account, err := s.registry.Connect(ctx, id, creds)
	s.broadcast()
	if err != nil {
		return models.AccountInfo{}, err
	}
	s.maybeArmStartup()
	return account, nil
}

// DisconnectProvider disconnects a backend.
func (s *Session) DisconnectProvider(ctx context.Context, id models.ProviderID) error {
	err := s.registry.Disconnect(ctx, id)
	s.broadcast()
	return err
}

// SyncNow runs one sync attempt.
func (s *Session) SyncNow(ctx context.Context, opts syncer.Options) (map[models.ProviderID]models.SyncResult, error) {
	return s.engine.SyncNow(ctx, opts)
}

// DownloadFromProvider force-applies one backend's payload locally.
func (s *Session) DownloadFromProvider(ctx context.Context, id models.ProviderID) (*models.SyncPayload, error) {
	return s.engine.DownloadFromProvider(ctx, id)
}

// AcknowledgeSync returns the engine from CONFLICT or ERROR to IDLE.
func (s *Session) AcknowledgeSync() {
	s.engine.Acknowledge()
}

// OnDataChange feeds a local vault mutation into the auto-sync scheduler.
func (s *Session) OnDataChange(ctx context.Context) {
	snap, err := s.storages.Vault.Snapshot(ctx)
	if err != nil {
		s.logger.Err(err).Msg("snapshot for change detection")
		return
	}
	s.scheduler.OnDataChange(snap)
}

// History returns the sync history, most recent first.
func (s *Session) History() []models.SyncHistoryEntry {
	return s.engine.History().Entries()
}

// Notifications returns the recent non-blocking notifications, most recent
// first.
func (s *Session) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.notifications...)
}

// Seq returns the current change sequence number.
func (s *Session) Seq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Wait blocks until the session changes past since or ctx expires, then
// returns the current sequence number and snapshot. IPC long-polling is
// built on this.
func (s *Session) Wait(ctx context.Context, since int64) (int64, models.SessionSnapshot) {
	for {
		s.mu.Lock()
		seq := s.seq
		ch := s.changed
		s.mu.Unlock()

		if seq > since {
			return seq, s.State()
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return seq, s.State()
		}
	}
}

func (s *Session) maybeArmStartup() {
	if s.gate.State() != models.SecurityUnlocked {
		return
	}
	if _, ok := s.registry.Primary(); !ok {
		return
	}
	s.scheduler.OnStartup()
}

func (s *Session) notify(message string) {
	s.mu.Lock()
	s.notifications = append([]Notification{{Message: message, Timestamp: time.Now()}}, s.notifications...)
	if len(s.notifications) > notificationCap {
		s.notifications = s.notifications[:notificationCap]
	}
	s.mu.Unlock()

	s.logger.Info().Str("notification", message).Msg("user notification")
	s.broadcast()
}

func (s *Session) broadcast() {
	s.mu.Lock()
	s.seq++
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}
