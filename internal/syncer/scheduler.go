// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/termhub/connvault/internal/config"
	"github.com/termhub/connvault/internal/logger"
	"github.com/termhub/connvault/internal/vault"
	"github.com/termhub/connvault/models"
)

// Scheduler turns local data changes into debounced auto-sync triggers and
// performs the one-time startup remote check. It owns exactly one pending
// timer: each change resets it instead of stacking a new one.
type Scheduler struct {
	cfg      config.Sync
	engine   Syncer
	gate     Gate
	backend  Backend
	notifier Notifier
	logger   *logger.Logger

	mu           sync.Mutex
	timer        *time.Timer
	baseline     string
	baselineSet  bool
	startupOnce  sync.Once
	startupTimer *time.Timer
}

// NewScheduler builds a scheduler. The notifier receives non-blocking
// messages for auto-sync failures and applied startup downloads; pass nil
// to discard them.
func NewScheduler(cfg config.Sync, engine Syncer, gate Gate, backend Backend, notifier Notifier, log *logger.Logger) *Scheduler {
	if notifier == nil {
		notifier = NotifierFunc(func(string) {})
	}
	return &Scheduler{
		cfg:      cfg,
		engine:   engine,
		gate:     gate,
		backend:  backend,
		notifier: notifier,
		logger:   log,
	}
}

// OnDataChange is called after every local vault mutation with the current
// snapshot. The first observation only records a baseline digest; later
// observations whose digest differs from the last synced one (re)start the
// quiet-period timer. When the timer expires with no further changes, one
// auto-triggered sync fires.
func (s *Scheduler) OnDataChange(snap models.VaultSnapshot) {
	if !s.cfg.AutoSync {
		return
	}
	if s.gate.State() != models.SecurityUnlocked {
		return
	}
	if _, ok := s.backend.Primary(); !ok {
		return
	}

	hash := ComputeHash(snap)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.baselineSet {
		s.baseline = hash
		s.baselineSet = true
		s.logger.Debug().Msg("auto-sync baseline recorded")
		return
	}
	if hash == s.baseline {
		return
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.cfg.QuietPeriod, func() { s.fire(hash) })
}

// OnStartup arms the one-time startup remote check. The session layer calls
// it when a connected provider and an unlocked vault have both been
// observed; after the grace delay one startup-triggered sync runs, pulling
// down a newer remote payload if there is one.
func (s *Scheduler) OnStartup() {
	s.startupOnce.Do(func() {
		s.mu.Lock()
		s.startupTimer = time.AfterFunc(s.cfg.StartupGrace, s.startupCheck)
		s.mu.Unlock()
	})
}

// Stop cancels any pending timers. Called at session teardown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.startupTimer != nil {
		s.startupTimer.Stop()
		s.startupTimer = nil
	}
}

// fire runs the debounced auto sync. Errors never propagate anywhere a
// caller could see them, so they are converted into notifications.
func (s *Scheduler) fire(hash string) {
	results, err := s.engine.SyncNow(context.Background(), Options{Trigger: models.TriggerAuto})
	if err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			// A manual sync won the race; the change is covered by it.
			return
		}
		s.logger.Err(err).Msg("auto sync failed")
		s.notifier.Notify("Automatic sync failed: " + err.Error())
		return
	}

	for id, result := range results {
		if result.ConflictDetected {
			s.notifier.Notify("Sync conflict with " + string(id) + ": resolve by forcing upload or download")
			return
		}
	}

	// The fired digest becomes the new suppression baseline.
	s.mu.Lock()
	s.baseline = hash
	s.mu.Unlock()
}

// startupCheck performs the one-time read-only remote probe via a
// startup-triggered sync.
func (s *Scheduler) startupCheck() {
	if s.gate.State() != models.SecurityUnlocked {
		return
	}
	if _, ok := s.backend.Primary(); !ok {
		return
	}

	results, err := s.engine.SyncNow(context.Background(), Options{Trigger: models.TriggerStartup})
	if err != nil {
		if errors.Is(err, ErrSyncInProgress) || errors.Is(err, vault.ErrVaultLocked) {
			return
		}
		s.logger.Err(err).Msg("startup sync check failed")
		s.notifier.Notify("Startup sync check failed: " + err.Error())
		return
	}

	for id, result := range results {
		switch {
		case result.Action == models.ActionDownload:
			s.notifier.Notify("Newer vault data from " + string(id) + " was applied")
		case result.ConflictDetected:
			s.notifier.Notify("Sync conflict with " + string(id) + ": resolve by forcing upload or download")
		}
	}
}
