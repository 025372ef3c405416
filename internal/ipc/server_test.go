package ipc

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termhub/connvault/internal/logger"
	"github.com/termhub/connvault/internal/session"
	"github.com/termhub/connvault/internal/syncer"
	"github.com/termhub/connvault/internal/vault"
	"github.com/termhub/connvault/models"
)

// stubSession is a hand-written SessionAPI double.
type stubSession struct {
	mu       sync.Mutex
	state    models.SessionSnapshot
	seq      int64
	changed  chan struct{}
	password string

	unlockErr error
	syncErr   error
	syncRes   map[models.ProviderID]models.SyncResult
	lastSync  syncer.Options

	cleared  bool
	acked    bool
	payload  *models.SyncPayload
	history  []models.SyncHistoryEntry
	connects []models.ProviderID
}

func newStubSession() *stubSession {
	return &stubSession{
		state: models.SessionSnapshot{
			SecurityState: models.SecurityUnlocked,
			SyncState:     models.SyncIdle,
			Providers:     map[models.ProviderID]models.ProviderConnection{},
		},
		changed: make(chan struct{}),
	}
}

func (s *stubSession) State() models.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *stubSession) Seq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

func (s *stubSession) Wait(ctx context.Context, since int64) (int64, models.SessionSnapshot) {
	for {
		s.mu.Lock()
		seq, ch, state := s.seq, s.changed, s.state
		s.mu.Unlock()

		if seq > since {
			return seq, state
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return seq, state
		}
	}
}

func (s *stubSession) bump() {
	s.mu.Lock()
	s.seq++
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}

func (s *stubSession) Unlock(_ context.Context, password string) error {
	if s.unlockErr != nil {
		return s.unlockErr
	}
	s.mu.Lock()
	s.password = password
	s.state.SecurityState = models.SecurityUnlocked
	s.mu.Unlock()
	return nil
}

func (s *stubSession) Lock() {
	s.mu.Lock()
	s.state.SecurityState = models.SecurityLocked
	s.mu.Unlock()
}

func (s *stubSession) SessionPassword() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.password, s.password != ""
}

func (s *stubSession) ClearSessionPassword() {
	s.mu.Lock()
	s.password = ""
	s.cleared = true
	s.mu.Unlock()
}

func (s *stubSession) ConnectProvider(_ context.Context, id models.ProviderID, _ models.ProviderCredentials) (models.AccountInfo, error) {
	s.mu.Lock()
	s.connects = append(s.connects, id)
	s.mu.Unlock()
	return models.AccountInfo{ProviderID: id, AccountID: "acct"}, nil
}

func (s *stubSession) DisconnectProvider(_ context.Context, _ models.ProviderID) error { return nil }

func (s *stubSession) SyncNow(_ context.Context, opts syncer.Options) (map[models.ProviderID]models.SyncResult, error) {
	s.mu.Lock()
	s.lastSync = opts
	s.mu.Unlock()
	if s.syncErr != nil {
		return nil, s.syncErr
	}
	return s.syncRes, nil
}

func (s *stubSession) DownloadFromProvider(_ context.Context, _ models.ProviderID) (*models.SyncPayload, error) {
	return s.payload, nil
}

func (s *stubSession) AcknowledgeSync() { s.acked = true }

func (s *stubSession) History() []models.SyncHistoryEntry { return s.history }

func (s *stubSession) Notifications() []session.Notification { return nil }

// startIPC brings up a server on a temp socket and returns a client wired
// to it.
func startIPC(t *testing.T, stub *stubSession) *Client {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "connvault.sock")
	server := NewServer(socketPath, stub, logger.Nop())
	require.NoError(t, server.Listen())

	go func() { _ = server.Run() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})

	return NewClient(socketPath)
}

func TestIPC_StateRoundTrip(t *testing.T) {
	stub := newStubSession()
	stub.state.LocalVersion = 4
	stub.state.RemoteVersion = 4
	client := startIPC(t, stub)

	require.NoError(t, client.Ping(context.Background()))

	state, err := client.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SecurityUnlocked, state.SecurityState)
	assert.Equal(t, int64(4), state.LocalVersion)
}

func TestIPC_SecondOwnerRejected(t *testing.T) {
	stub := newStubSession()
	socketPath := filepath.Join(t.TempDir(), "connvault.sock")

	first := NewServer(socketPath, stub, logger.Nop())
	require.NoError(t, first.Listen())
	go func() { _ = first.Run() }()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = first.Shutdown(ctx)
	}()

	second := NewServer(socketPath, stub, logger.Nop())
	err := second.Listen()
	assert.ErrorIs(t, err, ErrOwnerRunning)
}

func TestIPC_SessionPasswordHandOff(t *testing.T) {
	stub := newStubSession()
	client := startIPC(t, stub)
	ctx := context.Background()

	// No password held yet.
	_, ok, err := client.SessionPassword(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, client.Unlock(ctx, "master-password"))

	password, ok, err := client.SessionPassword(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "master-password", password)

	require.NoError(t, client.ClearSessionPassword(ctx))
	assert.True(t, stub.cleared)
}

func TestIPC_UnlockErrorsMapBack(t *testing.T) {
	stub := newStubSession()
	stub.unlockErr = vault.ErrInvalidPassword
	client := startIPC(t, stub)

	err := client.Unlock(context.Background(), "wrong")
	assert.ErrorIs(t, err, vault.ErrInvalidPassword)
}

func TestIPC_SyncRoundTrip(t *testing.T) {
	stub := newStubSession()
	stub.syncRes = map[models.ProviderID]models.SyncResult{
		models.ProviderHTTPBlob: {Success: true, Action: models.ActionUpload},
	}
	client := startIPC(t, stub)

	results, err := client.SyncNow(context.Background(), syncer.Options{
		Trigger: models.TriggerManual,
		Force:   syncer.ForceUpload,
	})
	require.NoError(t, err)

	assert.True(t, results[models.ProviderHTTPBlob].Success)
	assert.Equal(t, models.TriggerManual, stub.lastSync.Trigger)
	assert.Equal(t, syncer.ForceUpload, stub.lastSync.Force)
}

func TestIPC_SyncGuardErrorsMapBack(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"vault locked", vault.ErrVaultLocked},
		{"sync in progress", syncer.ErrSyncInProgress},
		{"no provider", syncer.ErrNoProviderConnected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := newStubSession()
			stub.syncErr = tc.err
			client := startIPC(t, stub)

			_, err := client.SyncNow(context.Background(), syncer.Options{})
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestIPC_EventsLongPoll(t *testing.T) {
	stub := newStubSession()
	client := startIPC(t, stub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		seq, state, ok, err := client.WaitEvent(context.Background(), 0)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(1), seq)
		assert.Equal(t, models.SyncSyncing, state.SyncState)
	}()

	// Let the poll settle in, then publish a change.
	time.Sleep(50 * time.Millisecond)
	stub.mu.Lock()
	stub.state.SyncState = models.SyncSyncing
	stub.mu.Unlock()
	stub.bump()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("long poll did not observe the change")
	}
}

func TestIPC_ProviderAndDownloadRoutes(t *testing.T) {
	stub := newStubSession()
	stub.payload = &models.SyncPayload{Hosts: []models.Host{{ID: "h1"}}, SyncedAt: 100}
	stub.history = []models.SyncHistoryEntry{{ID: "e1", Action: models.ActionUpload, Success: true}}
	client := startIPC(t, stub)
	ctx := context.Background()

	account, err := client.ConnectProvider(ctx, models.ProviderGist, models.ProviderCredentials{Token: "t"})
	require.NoError(t, err)
	assert.Equal(t, models.ProviderGist, account.ProviderID)
	assert.Equal(t, []models.ProviderID{models.ProviderGist}, stub.connects)

	payload, err := client.DownloadFromProvider(ctx, models.ProviderGist)
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, "h1", payload.Hosts[0].ID)

	entries, err := client.History(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionUpload, entries[0].Action)

	require.NoError(t, client.AcknowledgeSync(ctx))
	assert.True(t, stub.acked)
}

func TestIPC_DownloadEmptyRemote(t *testing.T) {
	stub := newStubSession()
	client := startIPC(t, stub)

	payload, err := client.DownloadFromProvider(context.Background(), models.ProviderGist)
	require.NoError(t, err)
	assert.Nil(t, payload)
}
