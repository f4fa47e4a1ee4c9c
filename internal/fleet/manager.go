package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
)

// retryBackoff is the pause before re-dispatching after a transient
// failure, kept short so retries fit inside the queue deadline.
const retryBackoff = 250 * time.Millisecond

// Manager spawns the shards, partitions accounts across them, routes
// inspect requests, de-duplicates in-flight work by asset id, and
// aggregates fleet statistics.
type Manager struct {
	opts   Options
	queue  *Queue
	shards []*shard

	success           atomic.Uint64
	cached            atomic.Uint64
	failed            atomic.Uint64
	timeouts          atomic.Uint64
	retried           atomic.Uint64
	successAfterRetry atomic.Uint64

	rt *responseTimes

	wake chan struct{}

	statsMu   sync.Mutex
	lastStats map[int]ShardStats

	cancel   context.CancelFunc
	loopDone chan struct{}
}

// NewManager partitions creds into shards of at most opts.BotsPerWorker
// accounts each and wires them to factory.
func NewManager(creds []domain.Credential, factory domain.GameClientFactory, opts Options) *Manager {
	opts = opts.withDefaults()
	m := &Manager{
		opts:      opts,
		queue:     NewQueue(opts.MaxQueueSize, opts.QueueTimeout),
		rt:        newResponseTimes(),
		wake:      make(chan struct{}, 1),
		lastStats: make(map[int]ShardStats),
		loopDone:  make(chan struct{}),
	}
	for i := 0; i < len(creds); i += opts.BotsPerWorker {
		end := i + opts.BotsPerWorker
		if end > len(creds) {
			end = len(creds)
		}
		id := len(m.shards)
		sh := newShard(id, creds[i:end], factory, opts, m.signalWake, m.acceptStats)
		m.shards = append(m.shards, sh)
	}
	return m
}

// Start launches the shard loops and the dispatcher. Stop with Shutdown.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	for _, sh := range m.shards {
		go sh.run(ctx)
	}
	go m.dispatchLoop(ctx)
	slog.Info("worker manager started", slog.Int("shards", len(m.shards)))
}

// Shutdown cancels all pending work (completions receive ErrShuttingDown)
// and joins the shard loops best-effort.
func (m *Manager) Shutdown(ctx context.Context) {
	if m.cancel != nil {
		m.cancel()
	}
	m.queue.Drain(domain.ErrShuttingDown)
	for _, sh := range m.shards {
		select {
		case <-sh.done:
		case <-ctx.Done():
			return
		}
	}
	<-m.loopDone
}

// Inspect admits one request and blocks until it resolves, coalescing
// onto an identical in-flight request when one exists. The queue deadline
// is authoritative; ctx cancellation releases the caller early but does
// not cancel a dispatched transport call.
func (m *Manager) Inspect(ctx context.Context, owner, assetID, proof, marketID uint64, priority Priority) (domain.ItemInfo, error) {
	c := make(chan Outcome, 1)
	req := Request{AssetID: assetID, Owner: owner, Proof: proof, MarketID: marketID, Priority: priority}
	switch m.queue.Add(req, c) {
	case AddFull:
		return domain.ItemInfo{}, fmt.Errorf("op=manager.inspect asset=%d: %w", assetID, domain.ErrQueueFull)
	case AddOK:
		m.signalWake()
	case AddCoalesced:
		// Another caller already owns the physical inspect.
	}
	select {
	case out := <-c:
		return out.Info, out.Err
	case <-ctx.Done():
		return domain.ItemInfo{}, ctx.Err()
	}
}

// QueueFull reports whether admission would be rejected right now.
func (m *Manager) QueueFull() bool { return m.queue.IsFull() }

// IncrementCached bumps the cache-hit counter (hits are counted here so
// /stats shows the whole request mix).
func (m *Manager) IncrementCached() { m.cached.Add(1) }

// ReconnectBot forces a reconnect for the named bot on whichever shard
// owns it.
func (m *Manager) ReconnectBot(username string) {
	for _, sh := range m.shards {
		sh.cmds <- reconnectBotCmd{username: username}
	}
}

// ReconnectAll forces a reconnect of every bot in the fleet.
func (m *Manager) ReconnectAll() {
	for _, sh := range m.shards {
		sh.cmds <- reconnectAllCmd{}
	}
}

func (m *Manager) signalWake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) acceptStats(st ShardStats) {
	m.statsMu.Lock()
	m.lastStats[st.ShardID] = st
	m.statsMu.Unlock()
}

// dispatchLoop moves entries from the admission queue onto shards. It
// wakes on new work, on bots becoming ready, and on the earliest queue
// deadline.
func (m *Manager) dispatchLoop(ctx context.Context) {
	defer close(m.loopDone)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		expired := m.queue.ExpireBefore(time.Now())
		if expired > 0 {
			m.timeouts.Add(uint64(expired))
		}
		m.queue.UnparkAll()
		m.pump(ctx)

		next := m.queue.NextDeadline()
		wait := time.Hour
		if !next.IsZero() {
			if wait = time.Until(next); wait < 0 {
				wait = 0
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-m.wake:
		case <-timer.C:
		}
	}
}

// pump dispatches every currently-dispatchable entry.
func (m *Manager) pump(ctx context.Context) {
	for {
		e := m.queue.PopReady()
		if e == nil {
			return
		}
		sh := m.pickShard()
		if sh == nil {
			m.failDispatch(ctx, e)
			continue
		}
		reply := make(chan Outcome, 1)
		select {
		case sh.cmds <- inspectCmd{req: e.req, reply: reply}:
			go m.awaitOutcome(ctx, e, reply)
		default:
			// Shard mailbox saturated; treat like no capacity.
			m.failDispatch(ctx, e)
		}
	}
}

// pickShard chooses among shards with at least one ready bot, weighted
// by ready-bot count. Returns nil when no shard has a ready bot.
func (m *Manager) pickShard() *shard {
	m.statsMu.Lock()
	weights := make([]int, len(m.shards))
	total := 0
	for i, sh := range m.shards {
		if st, ok := m.lastStats[sh.id]; ok {
			weights[i] = st.ReadyBots
			total += st.ReadyBots
		}
	}
	m.statsMu.Unlock()
	if total == 0 {
		return nil
	}
	n := rand.Intn(total) //nolint:gosec // Load spreading, not security.
	for i, w := range weights {
		if n < w {
			return m.shards[i]
		}
		n -= w
	}
	return m.shards[len(m.shards)-1]
}

// anyBotPending reports whether some bot could become ready without
// operator intervention (busy, cooling, initializing, or mid-reconnect).
// When nothing is pending, waiting out the queue deadline is pointless
// and requests fail fast with NoBotsReady.
func (m *Manager) anyBotPending() bool {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	for _, st := range m.lastStats {
		for state, n := range st.StateCounts {
			if n == 0 {
				continue
			}
			switch BotStateKind(state) {
			case StateBusy, StateCooldown, StateInitializing, StateDisconnected:
				return true
			}
		}
	}
	return false
}

// failDispatch handles an entry that found no ready bot: leave it queued
// while capacity is pending, retry while budget remains, otherwise fail.
func (m *Manager) failDispatch(ctx context.Context, e *queueEntry) {
	if m.anyBotPending() {
		// Bots are cooling or reconnecting; park the entry off the heap
		// until a ready signal or the deadline fires. Requeueing here
		// would hand the entry straight back to pump in a hot loop.
		m.queue.Park(e)
		return
	}
	if e.retryCount < m.opts.MaxRetries && time.Now().Before(e.deadline) {
		m.retried.Add(1)
		m.requeueLater(ctx, e)
		return
	}
	if m.queue.Resolve(e.req.AssetID, Outcome{Err: fmt.Errorf("op=manager.dispatch asset=%d: %w", e.req.AssetID, domain.ErrNoBotsReady)}) {
		m.failed.Add(1)
	}
}

func (m *Manager) requeueLater(ctx context.Context, e *queueEntry) {
	if !m.queue.Requeue(e, true) {
		return
	}
	go func() {
		select {
		case <-time.After(retryBackoff):
			m.signalWake()
		case <-ctx.Done():
		}
	}()
}

// awaitOutcome resolves one dispatched entry, applying the retry policy
// for transient failures.
func (m *Manager) awaitOutcome(ctx context.Context, e *queueEntry, reply <-chan Outcome) {
	var out Outcome
	select {
	case out = <-reply:
	case <-ctx.Done():
		return
	}

	if out.Err == nil {
		if m.queue.Resolve(e.req.AssetID, out) {
			m.success.Add(1)
			if e.retryCount > 0 {
				m.successAfterRetry.Add(1)
			}
			m.rt.Record(time.Since(e.enqueuedAt))
		}
		return
	}

	if domain.Retryable(out.Err) && e.retryCount < m.opts.MaxRetries && time.Now().Before(e.deadline) {
		m.retried.Add(1)
		m.requeueLater(ctx, e)
		return
	}
	if m.queue.Resolve(e.req.AssetID, out) {
		m.failed.Add(1)
	}
}

// Stats merges the latest per-shard snapshots with queue metrics, the
// global counters, and response-time percentiles.
func (m *Manager) Stats() Snapshot {
	snap := Snapshot{
		StateCounts: make(map[string]int),
		Queue: QueueStats{
			Size:       m.queue.Size(),
			MaxSize:    m.opts.MaxQueueSize,
			Priorities: make(map[string]int),
			Entries:    m.queue.Metrics(),
		},
		Counters: Counters{
			Success:           m.success.Load(),
			Cached:            m.cached.Load(),
			Failed:            m.failed.Load(),
			Timeouts:          m.timeouts.Load(),
			Retried:           m.retried.Load(),
			SuccessAfterRetry: m.successAfterRetry.Load(),
		},
	}
	for _, qe := range snap.Queue.Entries {
		snap.Queue.Priorities[qe.Priority]++
	}
	m.statsMu.Lock()
	for _, sh := range m.shards {
		st, ok := m.lastStats[sh.id]
		if !ok {
			st = ShardStats{ShardID: sh.id, StateCounts: map[string]int{}}
		}
		snap.Shards = append(snap.Shards, st)
		snap.ReadyBots += st.ReadyBots
		snap.TotalBots += len(st.Bots)
		for state, n := range st.StateCounts {
			snap.StateCounts[state] += n
		}
	}
	m.statsMu.Unlock()
	snap.AllTime, snap.Window = m.rt.Snapshot()
	return snap
}
