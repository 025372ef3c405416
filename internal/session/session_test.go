package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termhub/connvault/internal/config"
	"github.com/termhub/connvault/internal/logger"
	"github.com/termhub/connvault/internal/store"
	"github.com/termhub/connvault/internal/syncer"
	"github.com/termhub/connvault/models"
)

type memVault struct {
	snap models.VaultSnapshot
}

func (v *memVault) Snapshot(_ context.Context) (models.VaultSnapshot, error) { return v.snap, nil }

func (v *memVault) ReplaceAll(_ context.Context, snap models.VaultSnapshot) error {
	v.snap = snap
	return nil
}

func (v *memVault) UpsertHost(_ context.Context, host models.Host) error {
	v.snap.Hosts = append(v.snap.Hosts, host)
	return nil
}

func (v *memVault) UpsertKey(_ context.Context, key models.SSHKey) error {
	v.snap.Keys = append(v.snap.Keys, key)
	return nil
}

func (v *memVault) UpsertSnippet(_ context.Context, snippet models.Snippet) error {
	v.snap.Snippets = append(v.snap.Snippets, snippet)
	return nil
}

func (v *memVault) AddKnownHost(_ context.Context, kh models.KnownHost) error {
	v.snap.KnownHosts = append(v.snap.KnownHosts, kh)
	return nil
}

type memMeta struct {
	values map[string]string
}

func (m *memMeta) GetMeta(_ context.Context, key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memMeta) SetMeta(_ context.Context, key, value string) error {
	m.values[key] = value
	return nil
}

func newTestSession(t *testing.T) *Session {
	t.Helper()

	cfg := &config.Config{
		Sync: config.Sync{AutoSync: true, QuietPeriod: 20 * time.Millisecond, StartupGrace: 20 * time.Millisecond, HistoryLimit: 10},
	}
	storages := &store.Storages{Vault: &memVault{}, Meta: &memMeta{values: map[string]string{}}}

	s := New(cfg, storages, logger.Nop())
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Close)
	return s
}

func TestSession_InitialState(t *testing.T) {
	s := newTestSession(t)

	state := s.State()
	assert.Equal(t, models.SecurityLocked, state.SecurityState)
	assert.Equal(t, models.SyncIdle, state.SyncState)
	assert.Zero(t, state.LocalVersion)

	// Every registered backend appears, even while disconnected.
	require.Len(t, state.Providers, 3)
	for _, id := range []models.ProviderID{models.ProviderHTTPBlob, models.ProviderGist, models.ProviderSyncDir} {
		conn, ok := state.Providers[id]
		require.True(t, ok, "provider %s missing from state", id)
		assert.Equal(t, models.ProviderDisconnected, conn.Status)
	}
}

func TestSession_UnlockReflectsInStateAndPassword(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, s.Unlock(ctx, "master-password"))
	assert.Equal(t, models.SecurityUnlocked, s.State().SecurityState)

	password, ok := s.SessionPassword()
	require.True(t, ok)
	assert.Equal(t, "master-password", password)

	s.Lock()
	assert.Equal(t, models.SecurityLocked, s.State().SecurityState)
	_, ok = s.SessionPassword()
	assert.False(t, ok)
}

func TestSession_WaitObservesChanges(t *testing.T) {
	s := newTestSession(t)

	start := s.Seq()

	done := make(chan models.SessionSnapshot, 1)
	go func() {
		_, state := s.Wait(context.Background(), start)
		done <- state
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Unlock(context.Background(), "master-password"))

	select {
	case state := <-done:
		assert.Equal(t, models.SecurityUnlocked, state.SecurityState)
	case <-time.After(3 * time.Second):
		t.Fatal("Wait did not observe the unlock")
	}
}

func TestSession_WaitTimesOutQuietly(t *testing.T) {
	s := newTestSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	seq, _ := s.Wait(ctx, s.Seq())
	assert.Equal(t, s.Seq(), seq)
}

func TestSession_SyncGuardsSurface(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	// Locked vault blocks syncing before any provider is consulted.
	_, err := s.SyncNow(ctx, syncer.Options{})
	require.Error(t, err)

	require.NoError(t, s.Unlock(ctx, "master-password"))

	// Unlocked but nothing connected.
	_, err = s.SyncNow(ctx, syncer.Options{})
	require.Error(t, err)
}

func TestSession_HistoryStartsEmpty(t *testing.T) {
	s := newTestSession(t)
	assert.Empty(t, s.History())
	assert.Empty(t, s.Notifications())
}
