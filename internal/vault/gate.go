// SPDX-License-Identifier: Apache-2.0

// Package vault implements the security gate: lock/unlock state, the
// in-memory vault key, and payload encryption. Exactly one process (the
// session owner) holds an unlocked gate; sibling windows retrieve the
// session password over IPC instead of re-deriving keys.
package vault

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/termhub/connvault/internal/crypto"
	"github.com/termhub/connvault/internal/logger"
	"github.com/termhub/connvault/internal/store"
	"github.com/termhub/connvault/models"
)

// Gate owns the lock state and the vault key. The key exists only in memory
// while the gate is unlocked; Lock zeroes it. All payload encryption and
// decryption goes through the gate so the UNLOCKED requirement is enforced
// in one place.
type Gate struct {
	keys   crypto.KeyChain
	meta   store.MetaRepository
	logger *logger.Logger

	mu       sync.Mutex
	state    models.SecurityState
	vk       []byte
	password string

	onChange func(models.SecurityState)
}

// NewGate builds a locked gate over the given key chain and meta store.
func NewGate(keys crypto.KeyChain, meta store.MetaRepository, log *logger.Logger) *Gate {
	return &Gate{
		keys:   keys,
		meta:   meta,
		logger: log,
		state:  models.SecurityLocked,
	}
}

// SetOnChange registers a callback invoked after every lock-state
// transition. Used by the session layer to broadcast to sibling windows.
// Must be called before the gate is shared across goroutines.
func (g *Gate) SetOnChange(fn func(models.SecurityState)) {
	g.onChange = fn
}

// State returns the current lock state.
func (g *Gate) State() models.SecurityState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Unlock derives the key-encryption key from the master password and
// unwraps the stored vault key. On the very first unlock there is no stored
// key yet, so the gate initializes the vault: it generates a salt and a
// fresh vault key, wraps it under the derived KEK, and persists both.
//
// A wrong password fails the GCM tag check during unwrap and surfaces as
// ErrInvalidPassword. Unlocking an already unlocked gate re-validates the
// password and is otherwise a no-op.
func (g *Gate) Unlock(ctx context.Context, masterPassword string) error {
	saltB64, haveSalt, err := g.meta.GetMeta(ctx, store.MetaVaultSalt)
	if err != nil {
		return fmt.Errorf("load vault salt: %w", err)
	}
	wrappedB64, haveKey, err := g.meta.GetMeta(ctx, store.MetaWrappedKey)
	if err != nil {
		return fmt.Errorf("load wrapped vault key: %w", err)
	}

	var vk []byte
	switch {
	case haveSalt && haveKey:
		vk, err = g.unwrapExisting(masterPassword, saltB64, wrappedB64)
	default:
		vk, err = g.initialize(ctx, masterPassword)
	}
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.vk = vk
	g.password = masterPassword
	g.state = models.SecurityUnlocked
	fn := g.onChange
	g.mu.Unlock()

	g.logger.Info().Msg("vault unlocked")
	if fn != nil {
		fn(models.SecurityUnlocked)
	}
	return nil
}

// Lock discards the in-memory vault key and session password.
func (g *Gate) Lock() {
	g.mu.Lock()
	for i := range g.vk {
		g.vk[i] = 0
	}
	g.vk = nil
	g.password = ""
	g.state = models.SecurityLocked
	fn := g.onChange
	g.mu.Unlock()

	g.logger.Info().Msg("vault locked")
	if fn != nil {
		fn(models.SecurityLocked)
	}
}

// EncryptPayload serializes and encrypts a sync payload under the vault key.
func (g *Gate) EncryptPayload(payload *models.SyncPayload) (string, error) {
	vk, err := g.sessionKey()
	if err != nil {
		return "", err
	}

	blob, err := g.keys.EncryptJSON(payload, vk)
	if err != nil {
		return "", fmt.Errorf("encrypt payload: %w", err)
	}
	return blob, nil
}

// DecryptPayload reverses EncryptPayload.
func (g *Gate) DecryptPayload(blob string) (*models.SyncPayload, error) {
	vk, err := g.sessionKey()
	if err != nil {
		return nil, err
	}

	var payload models.SyncPayload
	if err = g.keys.DecryptJSON(blob, vk, &payload); err != nil {
		return nil, fmt.Errorf("decrypt payload: %w", err)
	}
	return &payload, nil
}

// SessionPassword returns the master password held for the current unlocked
// session. A sibling window asks for it over IPC so the user is not
// re-prompted when a second window opens.
func (g *Gate) SessionPassword() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != models.SecurityUnlocked || g.password == "" {
		return "", false
	}
	return g.password, true
}

// ClearSessionPassword drops the cached password without locking the vault.
// The key stays in memory, so syncing continues; only the cross-window
// password hand-off is disabled.
func (g *Gate) ClearSessionPassword() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.password = ""
}

func (g *Gate) unwrapExisting(masterPassword, saltB64, wrappedB64 string) ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, fmt.Errorf("decode vault salt: %w", err)
	}
	wrapped, err := base64.StdEncoding.DecodeString(wrappedB64)
	if err != nil {
		return nil, fmt.Errorf("decode wrapped vault key: %w", err)
	}

	kek := g.keys.DeriveKEK(masterPassword, salt)
	vk, err := g.keys.UnwrapKey(wrapped, kek)
	if err != nil {
		return nil, ErrInvalidPassword
	}
	return vk, nil
}

func (g *Gate) initialize(ctx context.Context, masterPassword string) ([]byte, error) {
	salt, err := g.keys.GenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("generate vault salt: %w", err)
	}
	vk, err := g.keys.GenerateVaultKey()
	if err != nil {
		return nil, fmt.Errorf("generate vault key: %w", err)
	}

	kek := g.keys.DeriveKEK(masterPassword, salt)
	wrapped, err := g.keys.WrapKey(vk, kek)
	if err != nil {
		return nil, fmt.Errorf("wrap vault key: %w", err)
	}

	if err = g.meta.SetMeta(ctx, store.MetaVaultSalt, base64.StdEncoding.EncodeToString(salt)); err != nil {
		return nil, fmt.Errorf("persist vault salt: %w", err)
	}
	if err = g.meta.SetMeta(ctx, store.MetaWrappedKey, base64.StdEncoding.EncodeToString(wrapped)); err != nil {
		return nil, fmt.Errorf("persist wrapped vault key: %w", err)
	}

	g.logger.Info().Msg("vault initialized")
	return vk, nil
}

func (g *Gate) sessionKey() ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != models.SecurityUnlocked || g.vk == nil {
		return nil, ErrVaultLocked
	}
	return g.vk, nil
}
