package syncer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termhub/connvault/internal/config"
	"github.com/termhub/connvault/internal/logger"
	"github.com/termhub/connvault/models"
)

// stubSyncer records SyncNow calls instead of syncing.
type stubSyncer struct {
	mu      sync.Mutex
	calls   []Options
	results map[models.ProviderID]models.SyncResult
	err     error
}

func (s *stubSyncer) SyncNow(_ context.Context, opts Options) (map[models.ProviderID]models.SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, opts)
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func (s *stubSyncer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubSyncer) lastCall() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

// memNotifier collects notifications.
type memNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *memNotifier) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *memNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type schedulerFixture struct {
	scheduler *Scheduler
	syncer    *stubSyncer
	gate      *plainGate
	backend   *memBackend
	notifier  *memNotifier
}

func newSchedulerFixture(t *testing.T, cfg config.Sync) *schedulerFixture {
	t.Helper()
	f := &schedulerFixture{
		syncer: &stubSyncer{
			results: map[models.ProviderID]models.SyncResult{testProvider: {Success: true, Action: models.ActionUpload}},
		},
		gate:     &plainGate{state: models.SecurityUnlocked},
		backend:  &memBackend{connected: true},
		notifier: &memNotifier{},
	}
	f.scheduler = NewScheduler(cfg, f.syncer, f.gate, f.backend, f.notifier, logger.Nop())
	t.Cleanup(f.scheduler.Stop)
	return f
}

func snapWith(hosts ...models.Host) models.VaultSnapshot {
	return models.VaultSnapshot{Hosts: hosts}
}

func TestScheduler_DebouncesRapidChanges(t *testing.T) {
	f := newSchedulerFixture(t, config.Sync{AutoSync: true, QuietPeriod: 40 * time.Millisecond})

	f.scheduler.OnDataChange(snapWith())

	// A burst of edits within one quiet window.
	f.scheduler.OnDataChange(snapWith(hostA()))
	f.scheduler.OnDataChange(snapWith(hostB()))
	f.scheduler.OnDataChange(snapWith(hostA(), hostB()))

	time.Sleep(120 * time.Millisecond)

	require.Equal(t, 1, f.syncer.callCount(), "N rapid changes must fire exactly one sync")
	assert.Equal(t, models.TriggerAuto, f.syncer.lastCall().Trigger)
}

func TestScheduler_FirstObservationOnlyRecordsBaseline(t *testing.T) {
	f := newSchedulerFixture(t, config.Sync{AutoSync: true, QuietPeriod: 20 * time.Millisecond})

	f.scheduler.OnDataChange(snapWith(hostA()))
	time.Sleep(80 * time.Millisecond)

	assert.Zero(t, f.syncer.callCount(), "the first observation must not trigger a sync")
}

func TestScheduler_TimerResetsOnEachChange(t *testing.T) {
	f := newSchedulerFixture(t, config.Sync{AutoSync: true, QuietPeriod: 80 * time.Millisecond})

	f.scheduler.OnDataChange(snapWith())
	f.scheduler.OnDataChange(snapWith(hostA()))

	time.Sleep(40 * time.Millisecond)
	f.scheduler.OnDataChange(snapWith(hostB())) // resets the pending timer

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, f.syncer.callCount(), "timer must restart from the last change, not the first")

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, f.syncer.callCount())
}

func TestScheduler_GuardsSuppressScheduling(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*schedulerFixture)
	}{
		{"auto sync disabled", func(f *schedulerFixture) { f.scheduler.cfg.AutoSync = false }},
		{"vault locked", func(f *schedulerFixture) { f.gate.state = models.SecurityLocked }},
		{"no provider connected", func(f *schedulerFixture) { f.backend.connected = false }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newSchedulerFixture(t, config.Sync{AutoSync: true, QuietPeriod: 10 * time.Millisecond})
			tc.setup(f)

			f.scheduler.OnDataChange(snapWith())
			f.scheduler.OnDataChange(snapWith(hostA()))
			time.Sleep(50 * time.Millisecond)

			assert.Zero(t, f.syncer.callCount())
		})
	}
}

func TestScheduler_UnchangedDigestDoesNotSchedule(t *testing.T) {
	f := newSchedulerFixture(t, config.Sync{AutoSync: true, QuietPeriod: 20 * time.Millisecond})

	f.scheduler.OnDataChange(snapWith(hostA()))
	f.scheduler.OnDataChange(snapWith(hostA())) // same digest as the baseline
	time.Sleep(80 * time.Millisecond)

	assert.Zero(t, f.syncer.callCount())
}

func TestScheduler_StartupCheckRunsOnce(t *testing.T) {
	f := newSchedulerFixture(t, config.Sync{AutoSync: true, StartupGrace: 20 * time.Millisecond})
	f.syncer.results = map[models.ProviderID]models.SyncResult{
		testProvider: {Success: true, Action: models.ActionDownload},
	}

	f.scheduler.OnStartup()
	f.scheduler.OnStartup() // second window observing the same conditions

	time.Sleep(100 * time.Millisecond)

	require.Equal(t, 1, f.syncer.callCount())
	assert.Equal(t, models.TriggerStartup, f.syncer.lastCall().Trigger)

	messages := f.notifier.all()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "applied")
}

func TestScheduler_StartupSkippedWhileLocked(t *testing.T) {
	f := newSchedulerFixture(t, config.Sync{AutoSync: true, StartupGrace: 10 * time.Millisecond})
	f.gate.state = models.SecurityLocked

	f.scheduler.OnStartup()
	time.Sleep(60 * time.Millisecond)

	assert.Zero(t, f.syncer.callCount())
}

func TestScheduler_AutoFailureBecomesNotification(t *testing.T) {
	f := newSchedulerFixture(t, config.Sync{AutoSync: true, QuietPeriod: 10 * time.Millisecond})
	f.syncer.err = errors.New("connection refused")

	f.scheduler.OnDataChange(snapWith())
	f.scheduler.OnDataChange(snapWith(hostA()))
	time.Sleep(80 * time.Millisecond)

	messages := f.notifier.all()
	require.Len(t, messages, 1)
	assert.True(t, strings.HasPrefix(messages[0], "Automatic sync failed"), messages[0])
}

func TestScheduler_AutoConflictBecomesNotification(t *testing.T) {
	f := newSchedulerFixture(t, config.Sync{AutoSync: true, QuietPeriod: 10 * time.Millisecond})
	f.syncer.results = map[models.ProviderID]models.SyncResult{
		testProvider: {ConflictDetected: true},
	}

	f.scheduler.OnDataChange(snapWith())
	f.scheduler.OnDataChange(snapWith(hostA()))
	time.Sleep(80 * time.Millisecond)

	messages := f.notifier.all()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "conflict")
}

func TestScheduler_SyncInProgressIsSilent(t *testing.T) {
	f := newSchedulerFixture(t, config.Sync{AutoSync: true, QuietPeriod: 10 * time.Millisecond})
	f.syncer.err = ErrSyncInProgress

	f.scheduler.OnDataChange(snapWith())
	f.scheduler.OnDataChange(snapWith(hostA()))
	time.Sleep(80 * time.Millisecond)

	assert.Empty(t, f.notifier.all(), "losing the race to a manual sync is not an error")
}
