// SPDX-License-Identifier: Apache-2.0

// Package syncer implements the synchronization engine: change detection,
// the single-flight sync state machine, the debounced auto-sync scheduler,
// and the bounded history log.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/termhub/connvault/internal/logger"
	"github.com/termhub/connvault/internal/provider"
	"github.com/termhub/connvault/internal/store"
	"github.com/termhub/connvault/internal/vault"
	"github.com/termhub/connvault/models"
)

// ForceMode selects how a previously reported conflict is resolved on the
// next attempt. The engine never picks a winner on its own.
type ForceMode int

const (
	ForceNone ForceMode = iota
	ForceUpload
	ForceDownload
)

// Options parameterizes one SyncNow call.
type Options struct {
	Trigger models.SyncTrigger
	Force   ForceMode
}

// Status is a read-only copy of the engine's bookkeeping, merged into the
// session snapshot by the session layer.
type Status struct {
	State           models.SyncState
	LocalVersion    int64
	RemoteVersion   int64
	LocalUpdatedAt  int64
	RemoteUpdatedAt int64
}

// action is the outcome of the upload/download/conflict decision.
type action int

const (
	actionNone action = iota
	actionUpload
	actionDownload
	actionConflict
)

// Engine is the sync state machine. It runs at most one sync at a time per
// session: a request arriving while one is in flight is rejected with
// ErrSyncInProgress, never queued.
type Engine struct {
	gate    Gate
	backend Backend
	vaults  store.VaultRepository
	meta    store.MetaRepository
	history *History
	logger  *logger.Logger

	mu              sync.Mutex
	state           models.SyncState
	localVersion    int64
	remoteVersion   int64
	localUpdatedAt  int64
	remoteUpdatedAt int64
	lastSyncedHash  string
	lastSyncedAt    int64

	onChange func()
}

// NewEngine builds an idle engine. Call Load before first use to restore
// the bookkeeping persisted by previous sessions.
func NewEngine(gate Gate, backend Backend, storages *store.Storages, history *History, log *logger.Logger) *Engine {
	return &Engine{
		gate:    gate,
		backend: backend,
		vaults:  storages.Vault,
		meta:    storages.Meta,
		history: history,
		logger:  log,
		state:   models.SyncIdle,
	}
}

// SetOnChange registers a callback invoked after every state or version
// change. Must be called before the engine is shared across goroutines.
func (e *Engine) SetOnChange(fn func()) {
	e.onChange = fn
}

// Load restores the last synced digest, timestamp, and remote version from
// the meta store.
func (e *Engine) Load(ctx context.Context) error {
	hash, _, err := e.meta.GetMeta(ctx, store.MetaLastSyncedHash)
	if err != nil {
		return fmt.Errorf("load last synced hash: %w", err)
	}
	atRaw, _, err := e.meta.GetMeta(ctx, store.MetaLastSyncedAt)
	if err != nil {
		return fmt.Errorf("load last synced timestamp: %w", err)
	}
	verRaw, _, err := e.meta.GetMeta(ctx, store.MetaRemoteVersion)
	if err != nil {
		return fmt.Errorf("load remote version: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastSyncedHash = hash
	e.lastSyncedAt, _ = strconv.ParseInt(atRaw, 10, 64)
	e.remoteVersion, _ = strconv.ParseInt(verRaw, 10, 64)
	e.localVersion = e.remoteVersion
	e.localUpdatedAt = e.lastSyncedAt
	e.remoteUpdatedAt = e.lastSyncedAt
	return nil
}

// Status returns a copy of the engine's current bookkeeping.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Status{
		State:           e.state,
		LocalVersion:    e.localVersion,
		RemoteVersion:   e.remoteVersion,
		LocalUpdatedAt:  e.localUpdatedAt,
		RemoteUpdatedAt: e.remoteUpdatedAt,
	}
}

// LastSyncedHash returns the digest of the last acknowledged sync. The
// scheduler uses it as the baseline for change suppression.
func (e *Engine) LastSyncedHash() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSyncedHash
}

// History returns the engine's history log.
func (e *Engine) History() *History {
	return e.history
}

// Acknowledge returns the engine from CONFLICT or ERROR to IDLE without
// performing any work. Callers use it after surfacing the outcome.
func (e *Engine) Acknowledge() {
	e.mu.Lock()
	if e.state == models.SyncConflict || e.state == models.SyncError {
		e.state = models.SyncIdle
	}
	fn := e.onChange
	e.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// SyncNow runs one sync attempt against the highest-priority connected
// backend and returns the per-provider outcome map.
//
// Guard failures (vault locked, sync in flight, no provider) return an
// error without touching any state. A detected conflict is an outcome, not
// an error: the map entry carries ConflictDetected=true and the engine
// moves to CONFLICT. Network-phase failures move the engine to ERROR and
// are returned so manual callers can display them; the auto-sync scheduler
// converts them into notifications.
func (e *Engine) SyncNow(ctx context.Context, opts Options) (map[models.ProviderID]models.SyncResult, error) {
	if opts.Trigger == "" {
		opts.Trigger = models.TriggerManual
	}

	providerID, err := e.begin()
	if err != nil {
		return nil, err
	}

	result, syncErr := e.syncProvider(ctx, providerID, opts)

	e.finish(providerID, opts, result, syncErr)

	results := map[models.ProviderID]models.SyncResult{providerID: result}
	if syncErr != nil {
		return results, fmt.Errorf("sync with %s: %w", providerID, syncErr)
	}
	return results, nil
}

// DownloadFromProvider force-fetches the remote payload from one backend and
// applies it locally, regardless of local changes. Returns nil when the
// backend holds no document. This is the explicit force-download resolution
// path for a reported conflict.
func (e *Engine) DownloadFromProvider(ctx context.Context, id models.ProviderID) (*models.SyncPayload, error) {
	if err := e.beginFor(id); err != nil {
		return nil, err
	}

	remote, err := e.backend.Fetch(ctx, id)
	if err != nil {
		e.finish(id, Options{Trigger: models.TriggerManual, Force: ForceDownload},
			models.SyncResult{Error: err.Error()}, err)
		return nil, fmt.Errorf("download from %s: %w", id, err)
	}
	if remote == nil {
		e.setState(models.SyncIdle)
		return nil, nil
	}

	payload, err := e.applyRemote(ctx, remote)
	result := models.SyncResult{Success: err == nil, Action: models.ActionDownload}
	if err != nil {
		result.Error = err.Error()
	}
	e.finish(id, Options{Trigger: models.TriggerManual, Force: ForceDownload}, result, err)
	if err != nil {
		return nil, fmt.Errorf("download from %s: %w", id, err)
	}
	return payload, nil
}

// begin takes the single-flight slot and picks the primary backend. On any
// guard failure nothing is mutated.
func (e *Engine) begin() (models.ProviderID, error) {
	if e.gate.State() != models.SecurityUnlocked {
		return "", vault.ErrVaultLocked
	}

	providerID, ok := e.backend.Primary()
	if !ok {
		return "", ErrNoProviderConnected
	}

	e.mu.Lock()
	if e.state == models.SyncSyncing {
		e.mu.Unlock()
		return "", ErrSyncInProgress
	}
	e.state = models.SyncSyncing
	fn := e.onChange
	e.mu.Unlock()

	if fn != nil {
		fn()
	}
	return providerID, nil
}

// beginFor is begin for a caller-named backend instead of the primary one.
// Whether that backend is actually connected is checked by the registry on
// the first fetch.
func (e *Engine) beginFor(models.ProviderID) error {
	if e.gate.State() != models.SecurityUnlocked {
		return vault.ErrVaultLocked
	}

	e.mu.Lock()
	if e.state == models.SyncSyncing {
		e.mu.Unlock()
		return ErrSyncInProgress
	}
	e.state = models.SyncSyncing
	fn := e.onChange
	e.mu.Unlock()

	if fn != nil {
		fn()
	}
	return nil
}

// syncProvider runs the fetch/decide/execute sequence for one backend.
func (e *Engine) syncProvider(ctx context.Context, id models.ProviderID, opts Options) (models.SyncResult, error) {
	snap, err := e.vaults.Snapshot(ctx)
	if err != nil {
		return models.SyncResult{Error: err.Error()}, fmt.Errorf("read local snapshot: %w", err)
	}
	digest := ComputeHash(snap)

	remote, err := e.backend.Fetch(ctx, id)
	if err != nil {
		return models.SyncResult{Error: err.Error()}, err
	}

	decision := e.decide(remote, snap, digest, opts.Force)

	log := e.logger.With().Str("provider", string(id)).Str("trigger", string(opts.Trigger)).Logger()

	switch decision {
	case actionUpload:
		return e.upload(ctx, id, snap, digest, remote)

	case actionDownload:
		payload, err := e.applyRemote(ctx, remote)
		if err != nil {
			return models.SyncResult{Error: err.Error()}, err
		}
		log.Info().Int64("remote_version", remote.Version).Int64("synced_at", payload.SyncedAt).Msg("remote payload applied")
		return models.SyncResult{Success: true, Action: models.ActionDownload}, nil

	case actionConflict:
		log.Warn().Int64("remote_version", remote.Version).Msg("sync conflict detected")
		return models.SyncResult{ConflictDetected: true}, nil

	default:
		log.Debug().Msg("nothing to sync")
		return models.SyncResult{Success: true}, nil
	}
}

// decide maps the local/remote change observations onto an action. The
// remote version is compared against the last version this device synced
// with; the local digest is compared against the digest recorded at that
// same sync. With no recorded baseline, a non-empty local vault counts as
// changed and an empty one does not, so a fresh device with a populated
// remote downloads instead of conflicting.
func (e *Engine) decide(remote *models.RemoteSnapshot, snap models.VaultSnapshot, digest string, force ForceMode) action {
	switch force {
	case ForceUpload:
		return actionUpload
	case ForceDownload:
		if remote == nil {
			return actionNone
		}
		return actionDownload
	}

	e.mu.Lock()
	lastRemoteVersion := e.remoteVersion
	lastHash := e.lastSyncedHash
	e.mu.Unlock()

	var localChanged bool
	if lastHash != "" {
		localChanged = digest != lastHash
	} else {
		localChanged = !snapshotEmpty(snap)
	}

	if remote == nil {
		if localChanged {
			return actionUpload
		}
		return actionNone
	}

	remoteChanged := remote.Version != lastRemoteVersion

	switch {
	case remoteChanged && localChanged:
		return actionConflict
	case remoteChanged:
		return actionDownload
	case localChanged:
		return actionUpload
	default:
		return actionNone
	}
}

// upload builds a fresh payload from the local snapshot and pushes it with
// the remote's observed version as the write condition. A lost race shows
// up as a version conflict and is reported exactly like a detected one.
func (e *Engine) upload(ctx context.Context, id models.ProviderID, snap models.VaultSnapshot, digest string, remote *models.RemoteSnapshot) (models.SyncResult, error) {
	payload := models.NewSyncPayload(snap, time.Now())

	blob, err := e.gate.EncryptPayload(payload)
	if err != nil {
		return models.SyncResult{Error: err.Error()}, err
	}

	var expectedVersion int64
	if remote != nil {
		expectedVersion = remote.Version
	}

	newVersion, err := e.backend.Push(ctx, id, blob, expectedVersion)
	if err != nil {
		if errors.Is(err, provider.ErrVersionConflict) {
			return models.SyncResult{ConflictDetected: true}, nil
		}
		return models.SyncResult{Error: err.Error()}, err
	}

	e.mu.Lock()
	e.localVersion = newVersion
	e.remoteVersion = newVersion
	e.localUpdatedAt = payload.SyncedAt
	e.remoteUpdatedAt = payload.SyncedAt
	e.lastSyncedHash = digest
	e.lastSyncedAt = payload.SyncedAt
	e.mu.Unlock()

	e.persistMeta(ctx, digest, payload.SyncedAt, newVersion)

	e.logger.Info().Str("provider", string(id)).Int64("version", newVersion).Msg("payload uploaded")
	return models.SyncResult{Success: true, Action: models.ActionUpload}, nil
}

// applyRemote decrypts the remote payload and replaces the local vault
// contents with it atomically.
func (e *Engine) applyRemote(ctx context.Context, remote *models.RemoteSnapshot) (*models.SyncPayload, error) {
	payload, err := e.gate.DecryptPayload(remote.Blob)
	if err != nil {
		return nil, err
	}
	if err = payload.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	snap := payload.Snapshot()
	if err = e.vaults.ReplaceAll(ctx, snap); err != nil {
		return nil, fmt.Errorf("apply remote payload: %w", err)
	}

	digest := ComputeHash(snap)

	e.mu.Lock()
	e.localVersion = remote.Version
	e.remoteVersion = remote.Version
	e.localUpdatedAt = payload.SyncedAt
	e.remoteUpdatedAt = payload.SyncedAt
	e.lastSyncedHash = digest
	e.lastSyncedAt = payload.SyncedAt
	e.mu.Unlock()

	e.persistMeta(ctx, digest, payload.SyncedAt, remote.Version)
	return payload, nil
}

// finish records the history entry and settles the engine state.
func (e *Engine) finish(id models.ProviderID, opts Options, result models.SyncResult, syncErr error) {
	var next models.SyncState
	switch {
	case syncErr != nil:
		next = models.SyncError
	case result.ConflictDetected:
		next = models.SyncConflict
	default:
		next = models.SyncIdle
	}

	historyAction := result.Action
	if opts.Force != ForceNone && result.Success {
		historyAction = models.ActionResolved
	}
	historyError := result.Error
	if result.ConflictDetected && historyError == "" {
		historyError = "version conflict"
	}

	e.mu.Lock()
	localVersion := e.localVersion
	e.state = next
	fn := e.onChange
	e.mu.Unlock()

	if historyAction != "" || !result.Success {
		e.history.Record(models.SyncHistoryEntry{
			ProviderID:   id,
			Action:       historyAction,
			Trigger:      opts.Trigger,
			LocalVersion: localVersion,
			Success:      result.Success,
			Error:        historyError,
		})
	}

	if fn != nil {
		fn()
	}
}

func (e *Engine) setState(next models.SyncState) {
	e.mu.Lock()
	e.state = next
	fn := e.onChange
	e.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// persistMeta stores the sync bookkeeping. A failure here does not undo an
// already completed sync; it is logged and the in-memory state stays
// authoritative for the rest of the session.
func (e *Engine) persistMeta(ctx context.Context, digest string, syncedAt, remoteVersion int64) {
	if err := e.meta.SetMeta(ctx, store.MetaLastSyncedHash, digest); err != nil {
		e.logger.Err(err).Msg("persist last synced hash")
	}
	if err := e.meta.SetMeta(ctx, store.MetaLastSyncedAt, strconv.FormatInt(syncedAt, 10)); err != nil {
		e.logger.Err(err).Msg("persist last synced timestamp")
	}
	if err := e.meta.SetMeta(ctx, store.MetaRemoteVersion, strconv.FormatInt(remoteVersion, 10)); err != nil {
		e.logger.Err(err).Msg("persist remote version")
	}
}

func snapshotEmpty(snap models.VaultSnapshot) bool {
	return len(snap.Hosts) == 0 &&
		len(snap.Keys) == 0 &&
		len(snap.Snippets) == 0 &&
		len(snap.CustomGroups) == 0 &&
		len(snap.PortForwardingRules) == 0 &&
		len(snap.KnownHosts) == 0
}
