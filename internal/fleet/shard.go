package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
)

// Shard commands. The shard goroutine is the only reader of its command
// channel and the only owner of its bot table; everything crosses as a
// typed message.

type inspectCmd struct {
	req   Request
	reply chan<- Outcome
}

type statsCmd struct {
	reply chan ShardStats
}

type reconnectBotCmd struct {
	username string
}

type reconnectAllCmd struct{}

type botAttachedCmd struct {
	username string
	bot      *Bot
}

type initFailedCmd struct {
	username  string
	throttled bool
	dropped   bool
	err       error
}

// shard owns up to Options.BotsPerWorker bots. It runs a single event
// loop on a locked OS thread; bot transport calls run on short-lived
// goroutines and report back through completion channels.
type shard struct {
	id      int
	opts    Options
	factory domain.GameClientFactory

	cmds      chan any
	botEvents chan Event

	// Loop-owned state. Never touched outside run().
	creds          map[string]domain.Credential
	bots           map[string]*Bot
	throttledUntil map[string]time.Time
	failedAt       map[string]time.Time
	initInFlight   map[string]bool

	readySignal func()
	statsSink   func(ShardStats)

	done chan struct{}
}

func newShard(id int, creds []domain.Credential, factory domain.GameClientFactory, opts Options, readySignal func(), statsSink func(ShardStats)) *shard {
	credMap := make(map[string]domain.Credential, len(creds))
	for _, c := range creds {
		credMap[c.Username] = c
	}
	return &shard{
		id:             id,
		opts:           opts.withDefaults(),
		factory:        factory,
		cmds:           make(chan any, 256),
		botEvents:      make(chan Event, 1024),
		creds:          credMap,
		bots:           make(map[string]*Bot),
		throttledUntil: make(map[string]time.Time),
		failedAt:       make(map[string]time.Time),
		initInFlight:   make(map[string]bool),
		readySignal:    readySignal,
		statsSink:      statsSink,
		done:           make(chan struct{}),
	}
}

// run is the shard event loop. It exits when ctx is cancelled, after a
// best-effort destroy of every bot.
func (s *shard) run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.done)

	for _, cred := range s.creds {
		s.spawnInit(ctx, cred)
	}
	s.publishStats()

	// First health check fires shortly after boot, then on the interval.
	bootHealth := time.NewTimer(30 * time.Second)
	defer bootHealth.Stop()
	healthTicker := time.NewTicker(s.opts.HealthCheckInterval)
	defer healthTicker.Stop()
	statsTicker := time.NewTicker(s.opts.StatsUpdateInterval)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case cmd := <-s.cmds:
			s.handle(ctx, cmd)
		case <-s.botEvents:
			s.drainBotEvents()
			s.publishStats()
			s.notifyReady()
		case <-bootHealth.C:
			s.healthCheck(ctx)
		case <-healthTicker.C:
			s.healthCheck(ctx)
		case <-statsTicker.C:
			s.publishStats()
		}
	}
}

func (s *shard) handle(ctx context.Context, cmd any) {
	switch c := cmd.(type) {
	case inspectCmd:
		s.dispatch(ctx, c)
	case statsCmd:
		c.reply <- s.snapshot()
	case reconnectBotCmd:
		if b, ok := s.bots[c.username]; ok {
			b.ForceReconnect()
		}
	case reconnectAllCmd:
		for _, b := range s.bots {
			b.ForceReconnect()
		}
	case botAttachedCmd:
		s.initInFlight[c.username] = false
		delete(s.failedAt, c.username)
		s.bots[c.username] = c.bot
		s.publishStats()
		s.notifyReady()
		slog.Info("bot initialized", slog.Int("shard", s.id), slog.String("bot", truncateUsername(c.username)))
	case initFailedCmd:
		s.initInFlight[c.username] = false
		switch {
		case c.dropped:
			delete(s.creds, c.username)
			slog.Warn("account dropped from partition",
				slog.Int("shard", s.id),
				slog.String("bot", truncateUsername(c.username)),
				slog.Any("error", c.err))
		case c.throttled:
			s.throttledUntil[c.username] = time.Now().Add(s.opts.LoginThrottleCooldown)
			slog.Warn("account login throttled",
				slog.Int("shard", s.id),
				slog.String("bot", truncateUsername(c.username)),
				slog.Duration("cooldown", s.opts.LoginThrottleCooldown))
		default:
			s.failedAt[c.username] = time.Now()
			slog.Warn("account login failed",
				slog.Int("shard", s.id),
				slog.String("bot", truncateUsername(c.username)),
				slog.Any("error", c.err))
		}
		s.publishStats()
	}
}

// dispatch picks a ready bot uniformly at random and runs the transport
// call off-loop. Random choice over the ready set avoids hot-spotting
// and tolerates bots entering or leaving the set mid-batch.
func (s *shard) dispatch(ctx context.Context, c inspectCmd) {
	ready := make([]*Bot, 0, len(s.bots))
	for _, b := range s.bots {
		if b.IsReady() {
			ready = append(ready, b)
		}
	}
	for len(ready) > 0 {
		i := rand.Intn(len(ready)) //nolint:gosec // Load spreading, not security.
		bot := ready[i]
		// The claim may lose a race with a cooldown timer or disconnect;
		// fall through to the next candidate if the bot slipped away.
		if !bot.beginInspect(c.req.AssetID) {
			ready = append(ready[:i], ready[i+1:]...)
			continue
		}
		go func() {
			info, err := bot.runInspect(ctx, c.req.Owner, c.req.AssetID, c.req.Proof)
			c.reply <- Outcome{Info: info, Err: err}
		}()
		return
	}
	c.reply <- Outcome{Err: fmt.Errorf("op=shard.dispatch shard=%d: %w", s.id, domain.ErrNoBotsReady)}
}

func (s *shard) drainBotEvents() {
	for {
		select {
		case <-s.botEvents:
		default:
			return
		}
	}
}

func (s *shard) notifyReady() {
	if s.readySignal != nil {
		s.readySignal()
	}
}

// spawnInit launches one account login attempt chain off-loop and feeds
// the result back as a command.
func (s *shard) spawnInit(ctx context.Context, cred domain.Credential) {
	if s.initInFlight[cred.Username] {
		return
	}
	s.initInFlight[cred.Username] = true
	go func() {
		client := s.factory(cred)
		bot := NewBot(cred.Username, client, s.opts, s.botEvents)

		policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.opts.MaxRetries)), ctx)
		var lastErr error
		err := backoff.Retry(func() error {
			err := bot.Initialize(ctx)
			if err == nil {
				return nil
			}
			lastErr = err
			var te *domain.TransportError
			if errors.As(err, &te) {
				if te.Permanent() || te.Kind == domain.TransportLoginThrottled {
					return backoff.Permanent(err)
				}
			}
			return err
		}, policy)

		if err == nil {
			s.cmds <- botAttachedCmd{username: cred.Username, bot: bot}
			return
		}
		_ = client.Close()
		var te *domain.TransportError
		kind := domain.TransportTransient
		if errors.As(err, &te) {
			kind = te.Kind
		}
		s.cmds <- initFailedCmd{
			username:  cred.Username,
			throttled: kind == domain.TransportLoginThrottled,
			dropped:   te != nil && te.Permanent(),
			err:       lastErr,
		}
	}()
}

// healthCheck walks the bot table: schedules reconnects for stranded
// bots and retries fresh logins for accounts whose failure cooldown has
// elapsed. Ends with a stats snapshot.
func (s *shard) healthCheck(ctx context.Context) {
	now := time.Now()
	for username, b := range s.bots {
		if !(b.IsError() || b.IsDisconnected()) {
			continue
		}
		rs := b.GetReconnectStatus()
		if rs.Scheduled || rs.PermanentlyFailed {
			continue
		}
		if until, ok := s.throttledUntil[username]; ok && now.Before(until) {
			continue
		}
		b.ScheduleReconnect()
	}
	for username, cred := range s.creds {
		if _, ok := s.bots[username]; ok {
			continue
		}
		if s.initInFlight[username] {
			continue
		}
		if until, ok := s.throttledUntil[username]; ok && now.Before(until) {
			continue
		}
		if at, ok := s.failedAt[username]; ok && now.Sub(at) < s.opts.LoginThrottleCooldown {
			continue
		}
		s.spawnInit(ctx, cred)
	}
	s.publishStats()
}

func (s *shard) readyCount() int {
	n := 0
	for _, b := range s.bots {
		if b.IsReady() {
			n++
		}
	}
	return n
}

func (s *shard) snapshot() ShardStats {
	st := ShardStats{
		ShardID:     s.id,
		StateCounts: make(map[string]int),
		TakenAt:     time.Now(),
	}
	for username, b := range s.bots {
		state := b.State()
		st.StateCounts[string(state.Kind)]++
		if state.Kind == StateReady {
			st.ReadyBots++
		}
		st.Bots = append(st.Bots, BotRow{
			Username:  truncateUsername(username),
			State:     string(state.Kind),
			Counters:  b.Counters(),
			Reconnect: b.GetReconnectStatus(),
		})
	}
	// Accounts mid-login have no bot yet but still count as pending
	// capacity, so boot-time requests wait instead of failing fast.
	for username, inFlight := range s.initInFlight {
		if !inFlight {
			continue
		}
		if _, ok := s.bots[username]; !ok {
			st.StateCounts[string(StateInitializing)]++
		}
	}
	return st
}

func (s *shard) publishStats() {
	if s.statsSink != nil {
		s.statsSink(s.snapshot())
	}
}

// shutdown destroys every bot best-effort and waits for all of them.
func (s *shard) shutdown() {
	var wg sync.WaitGroup
	for username, b := range s.bots {
		wg.Add(1)
		go func(username string, b *Bot) {
			defer wg.Done()
			if err := b.Destroy(); err != nil {
				slog.Warn("bot destroy failed",
					slog.Int("shard", s.id),
					slog.String("bot", truncateUsername(username)),
					slog.Any("error", err))
			}
		}(username, b)
	}
	wg.Wait()
	slog.Info("shard shutdown completed", slog.Int("shard", s.id))
}
