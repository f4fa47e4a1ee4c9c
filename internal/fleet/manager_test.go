package fleet

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
)

func managerOpts() Options {
	return Options{
		BotsPerWorker:        2,
		MaxQueueSize:         10,
		QueueTimeout:         2 * time.Second,
		InspectTimeout:       500 * time.Millisecond,
		CooldownTime:         10 * time.Millisecond,
		MaxRetries:           2,
		MaxReconnectAttempts: 2,
		BaseReconnectDelay:   10 * time.Millisecond,
		MaxReconnectDelay:    40 * time.Millisecond,
		HealthCheckInterval:  50 * time.Millisecond,
		StatsUpdateInterval:  10 * time.Millisecond,
	}
}

func creds(names ...string) []domain.Credential {
	out := make([]domain.Credential, 0, len(names))
	for _, n := range names {
		out = append(out, domain.Credential{Username: n, Password: "pw"})
	}
	return out
}

func startManager(t *testing.T, accounts []domain.Credential, factory domain.GameClientFactory, opts Options) *Manager {
	t.Helper()
	m := NewManager(accounts, factory, opts)
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	t.Cleanup(func() {
		cancel()
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer scancel()
		m.Shutdown(sctx)
	})
	return m
}

func waitReady(t *testing.T, m *Manager, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.Stats().ReadyBots >= n
	}, 3*time.Second, 10*time.Millisecond)
}

func TestManager_PartitionsAccountsIntoShards(t *testing.T) {
	factory := func(domain.Credential) domain.GameClient { return &stubClient{} }
	m := NewManager(creds("a", "b", "c", "d", "e"), factory, managerOpts())
	assert.Len(t, m.shards, 3) // ceil(5/2)
}

func TestManager_InspectHappyPath(t *testing.T) {
	factory := func(domain.Credential) domain.GameClient { return &stubClient{} }
	m := startManager(t, creds("a", "b"), factory, managerOpts())
	waitReady(t, m, 1)

	info, err := m.Inspect(context.Background(), 10, 101, 20, 0, PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, uint64(101), info.AssetID)

	st := m.Stats()
	assert.Equal(t, uint64(1), st.Counters.Success)
	assert.Equal(t, 1, st.AllTime.Count)
}

func TestManager_CoalescesConcurrentSameAsset(t *testing.T) {
	var inspects atomic.Int64
	gate := make(chan struct{})
	factory := func(domain.Credential) domain.GameClient {
		return &stubClient{inspectFn: func(ctx context.Context, _, assetID, _ uint64) (domain.ItemInfo, error) {
			inspects.Add(1)
			<-gate
			return domain.ItemInfo{AssetID: assetID}, nil
		}}
	}
	m := startManager(t, creds("a", "b"), factory, managerOpts())
	waitReady(t, m, 2)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Inspect(context.Background(), 10, 777, 20, 0, PriorityNormal)
		}(i)
	}
	require.Eventually(t, func() bool { return inspects.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond) // let the remaining callers coalesce
	close(gate)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(1), inspects.Load(), "one physical inspect across the fleet per asset")
	assert.Equal(t, uint64(1), m.Stats().Counters.Success)
}

func TestManager_QueueFullRejects(t *testing.T) {
	gate := make(chan struct{})
	factory := func(domain.Credential) domain.GameClient {
		return &stubClient{inspectFn: func(ctx context.Context, _, assetID, _ uint64) (domain.ItemInfo, error) {
			<-gate
			return domain.ItemInfo{AssetID: assetID}, nil
		}}
	}
	opts := managerOpts()
	opts.MaxQueueSize = 1
	m := startManager(t, creds("a"), factory, opts)
	waitReady(t, m, 1)

	done := make(chan error, 1)
	go func() {
		_, err := m.Inspect(context.Background(), 10, 1, 20, 0, PriorityNormal)
		done <- err
	}()
	require.Eventually(t, m.QueueFull, time.Second, 5*time.Millisecond)

	_, err := m.Inspect(context.Background(), 10, 2, 20, 0, PriorityNormal)
	assert.ErrorIs(t, err, domain.ErrQueueFull)

	close(gate)
	assert.NoError(t, <-done)
}

func TestManager_NoAccountsFailsFast(t *testing.T) {
	factory := func(domain.Credential) domain.GameClient { return &stubClient{} }
	opts := managerOpts()
	m := startManager(t, nil, factory, opts)

	start := time.Now()
	_, err := m.Inspect(context.Background(), 10, 1, 20, 0, PriorityNormal)
	assert.ErrorIs(t, err, domain.ErrNoBotsReady)
	assert.Less(t, time.Since(start), opts.QueueTimeout, "must not wait out the full deadline")
}

func TestManager_AllBotsCoolingTimesOut(t *testing.T) {
	factory := func(domain.Credential) domain.GameClient { return &stubClient{} }
	opts := managerOpts()
	opts.CooldownTime = 10 * time.Second // bot stays cooling past the queue deadline
	opts.QueueTimeout = 300 * time.Millisecond
	m := startManager(t, creds("a"), factory, opts)
	waitReady(t, m, 1)

	_, err := m.Inspect(context.Background(), 10, 1, 20, 0, PriorityNormal)
	require.NoError(t, err)

	_, err = m.Inspect(context.Background(), 10, 2, 20, 0, PriorityNormal)
	assert.ErrorIs(t, err, domain.ErrInspectTimeout)
	st := m.Stats()
	assert.Equal(t, uint64(1), st.Counters.Timeouts)
	assert.Zero(t, st.Counters.Failed, "an expiry counts as a timeout, not also a failure")
}

func TestManager_ParkedRequestRunsAfterCooldown(t *testing.T) {
	factory := func(domain.Credential) domain.GameClient { return &stubClient{} }
	opts := managerOpts()
	opts.CooldownTime = 150 * time.Millisecond
	m := startManager(t, creds("a"), factory, opts)
	waitReady(t, m, 1)

	_, err := m.Inspect(context.Background(), 10, 1, 20, 0, PriorityNormal)
	require.NoError(t, err)

	// The only bot is cooling; the entry waits parked and dispatches
	// once the cooldown elapses.
	info, err := m.Inspect(context.Background(), 10, 2, 20, 0, PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.AssetID)

	st := m.Stats()
	assert.Zero(t, st.Counters.Retried, "waiting out a cooldown must not burn retry budget")
}

func TestManager_BotTimeoutRetriesWithinDeadline(t *testing.T) {
	var calls atomic.Int64
	factory := func(domain.Credential) domain.GameClient {
		return &stubClient{inspectFn: func(ctx context.Context, _, assetID, _ uint64) (domain.ItemInfo, error) {
			if calls.Add(1) == 1 {
				<-ctx.Done()
				return domain.ItemInfo{}, ctx.Err()
			}
			return domain.ItemInfo{AssetID: assetID}, nil
		}}
	}
	opts := managerOpts()
	opts.InspectTimeout = 50 * time.Millisecond
	m := startManager(t, creds("a", "b"), factory, opts)
	waitReady(t, m, 2)

	info, err := m.Inspect(context.Background(), 10, 8, 20, 0, PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), info.AssetID)

	st := m.Stats()
	assert.Equal(t, uint64(1), st.Counters.Retried)
	assert.Equal(t, uint64(1), st.Counters.SuccessAfterRetry)
}

func TestManager_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int64
	factory := func(domain.Credential) domain.GameClient {
		return &stubClient{inspectFn: func(ctx context.Context, _, assetID, _ uint64) (domain.ItemInfo, error) {
			if calls.Add(1) == 1 {
				return domain.ItemInfo{}, &domain.TransportError{Kind: domain.TransportTransient}
			}
			return domain.ItemInfo{AssetID: assetID}, nil
		}}
	}
	m := startManager(t, creds("a", "b"), factory, managerOpts())
	waitReady(t, m, 2)

	info, err := m.Inspect(context.Background(), 10, 5, 20, 0, PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), info.AssetID)

	st := m.Stats()
	assert.Equal(t, uint64(1), st.Counters.Retried)
	assert.Equal(t, uint64(1), st.Counters.SuccessAfterRetry)
}

func TestManager_CachedCounter(t *testing.T) {
	factory := func(domain.Credential) domain.GameClient { return &stubClient{} }
	m := startManager(t, creds("a"), factory, managerOpts())
	m.IncrementCached()
	m.IncrementCached()
	assert.Equal(t, uint64(2), m.Stats().Counters.Cached)
}

func TestManager_ShutdownDrainsPending(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	factory := func(domain.Credential) domain.GameClient {
		return &stubClient{inspectFn: func(ctx context.Context, _, assetID, _ uint64) (domain.ItemInfo, error) {
			select {
			case <-gate:
			case <-ctx.Done():
			}
			return domain.ItemInfo{AssetID: assetID}, nil
		}}
	}
	m := NewManager(creds("a"), factory, managerOpts())
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	require.Eventually(t, func() bool { return m.Stats().ReadyBots >= 1 }, 3*time.Second, 10*time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := m.Inspect(context.Background(), 10, 1, 20, 0, PriorityNormal)
		done <- err
	}()
	require.Eventually(t, func() bool { return m.queue.Size() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer scancel()
	m.Shutdown(sctx)

	assert.ErrorIs(t, <-done, domain.ErrShuttingDown)
}

func TestManager_PermanentLoginFailureDropsAccount(t *testing.T) {
	factory := func(cred domain.Credential) domain.GameClient {
		if cred.Username == "bad" {
			return &stubClient{loginErrs: []error{&domain.TransportError{Kind: domain.TransportAccountDisabled}}}
		}
		return &stubClient{}
	}
	m := startManager(t, creds("good", "bad"), factory, managerOpts())
	waitReady(t, m, 1)

	require.Eventually(t, func() bool {
		st := m.Stats()
		return st.TotalBots == 1 && st.ReadyBots == 1
	}, 3*time.Second, 10*time.Millisecond)
}
