package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
)

// BotStateKind enumerates the bot state machine. A bot is in exactly one
// state at any instant.
type BotStateKind string

const (
	StateInitializing      BotStateKind = "initializing"
	StateReady             BotStateKind = "ready"
	StateBusy              BotStateKind = "busy"
	StateCooldown          BotStateKind = "cooldown"
	StateDisconnected      BotStateKind = "disconnected"
	StateError             BotStateKind = "error"
	StatePermanentlyFailed BotStateKind = "permanently_failed"
)

// BotState is the tagged state variant. Only the fields relevant to Kind
// are populated.
type BotState struct {
	Kind      BotStateKind
	AssetID   uint64    // busy
	StartedAt time.Time // busy
	Until     time.Time // cooldown
	ErrorKind domain.TransportErrorKind
	Reason    string // permanently_failed
}

// ReconnectStatus describes the reconnect machinery of one bot.
type ReconnectStatus struct {
	Attempts          int    `json:"attempts"`
	Scheduled         bool   `json:"scheduled"`
	CanReconnect      bool   `json:"can_reconnect"`
	PermanentlyFailed bool   `json:"permanently_failed"`
	LastError         string `json:"last_error,omitempty"`
}

// EventKind enumerates bot lifecycle events forwarded to the owning shard.
type EventKind string

const (
	EventInitialized        EventKind = "initialized"
	EventStateChange        EventKind = "state_change"
	EventReconnectScheduled EventKind = "reconnect_scheduled"
	EventReconnecting       EventKind = "reconnecting"
	EventReconnected        EventKind = "reconnected"
	EventReconnectExhausted EventKind = "max_reconnect_attempts_reached"
)

// Event is one typed lifecycle notification. The shard event loop is the
// only consumer; there is no dynamic dispatch.
type Event struct {
	Kind        EventKind
	Username    string
	State       BotState
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
}

// BotCounters is a snapshot of per-bot counters.
type BotCounters struct {
	InspectCount    uint64    `json:"inspect_count"`
	SuccessCount    uint64    `json:"success_count"`
	FailureCount    uint64    `json:"failure_count"`
	LastInspectTime time.Time `json:"last_inspect_time"`
}

// Bot is one logged-in account. All state transitions happen under mu and
// synchronously emit a typed event to the owning shard's channel.
type Bot struct {
	username string
	client   domain.GameClient
	opts     Options
	events   chan<- Event

	mu             sync.Mutex
	state          BotState
	counters       BotCounters
	recon          ReconnectStatus
	cooldownTimer  *time.Timer
	reconnectTimer *time.Timer
	destroyed      bool
}

// NewBot constructs a bot in the Initializing state. Events are delivered
// to events, which the shard must keep draining.
func NewBot(username string, client domain.GameClient, opts Options, events chan<- Event) *Bot {
	return &Bot{
		username: username,
		client:   client,
		opts:     opts.withDefaults(),
		events:   events,
		state:    BotState{Kind: StateInitializing},
		recon:    ReconnectStatus{CanReconnect: true},
	}
}

// Username returns the account name this bot logs in with.
func (b *Bot) Username() string { return b.username }

// Initialize performs the initial login. On success the bot becomes Ready.
// Permanent transport errors are terminal; every other failure leaves the
// bot in Error for the health check to pick up.
func (b *Bot) Initialize(ctx context.Context) error {
	b.setState(BotState{Kind: StateInitializing})
	if err := b.client.Login(ctx); err != nil {
		b.noteLoginFailure(err)
		return err
	}
	b.setState(BotState{Kind: StateReady})
	b.emit(Event{Kind: EventInitialized, Username: b.username})
	return nil
}

// Inspect performs one serialized inspect round-trip. The bot must be
// Ready; on completion (success or timeout) it rests in Cooldown before
// becoming selectable again.
func (b *Bot) Inspect(ctx context.Context, owner, assetID, proof uint64) (domain.ItemInfo, error) {
	if !b.beginInspect(assetID) {
		return domain.ItemInfo{}, fmt.Errorf("op=bot.inspect bot=%s: %w", b.username, domain.ErrNoBotsReady)
	}
	return b.runInspect(ctx, owner, assetID, proof)
}

// runInspect drives the transport call for a bot already flipped to Busy
// by beginInspect.
func (b *Bot) runInspect(ctx context.Context, owner, assetID, proof uint64) (domain.ItemInfo, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.opts.InspectTimeout)
	defer cancel()

	info, err := b.client.Inspect(callCtx, owner, assetID, proof)
	b.mu.Lock()
	b.counters.InspectCount++
	b.counters.LastInspectTime = time.Now()
	b.mu.Unlock()

	switch {
	case err == nil:
		b.mu.Lock()
		b.counters.SuccessCount++
		b.mu.Unlock()
		b.startCooldown()
		return info, nil
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		b.mu.Lock()
		b.counters.FailureCount++
		b.mu.Unlock()
		// The transport call may still complete server-side; cooling down
		// keeps us under the game-side rate limit either way.
		b.startCooldown()
		return domain.ItemInfo{}, fmt.Errorf("op=bot.inspect bot=%s: %w", b.username, domain.ErrInspectTimeout)
	default:
		b.mu.Lock()
		b.counters.FailureCount++
		b.mu.Unlock()
		b.noteTransportFailure(err)
		return domain.ItemInfo{}, fmt.Errorf("op=bot.inspect bot=%s: %w", b.username, err)
	}
}

// beginInspect atomically flips Ready -> Busy. Returns false if the bot
// was not Ready, which guarantees per-bot serialization.
func (b *Bot) beginInspect(assetID uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed || b.state.Kind != StateReady {
		return false
	}
	b.state = BotState{Kind: StateBusy, AssetID: assetID, StartedAt: time.Now()}
	b.emitLocked(Event{Kind: EventStateChange, Username: b.username, State: b.state})
	return true
}

func (b *Bot) startCooldown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	until := time.Now().Add(b.opts.CooldownTime)
	b.state = BotState{Kind: StateCooldown, Until: until}
	b.emitLocked(Event{Kind: EventStateChange, Username: b.username, State: b.state})
	if b.cooldownTimer != nil {
		b.cooldownTimer.Stop()
	}
	b.cooldownTimer = time.AfterFunc(b.opts.CooldownTime, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.destroyed || b.state.Kind != StateCooldown {
			return
		}
		b.state = BotState{Kind: StateReady}
		b.emitLocked(Event{Kind: EventStateChange, Username: b.username, State: b.state})
	})
}

// Throttle parks the bot in Cooldown until the given time, then
// schedules a fresh reconnect. Applied when the transport reports
// LOGIN_THROTTLED: retrying on the ordinary backoff would hammer a
// login the game server is already refusing.
func (b *Bot) Throttle(until time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed || b.state.Kind == StatePermanentlyFailed {
		return
	}
	b.state = BotState{Kind: StateCooldown, Until: until}
	b.emitLocked(Event{Kind: EventStateChange, Username: b.username, State: b.state})
	if b.cooldownTimer != nil {
		b.cooldownTimer.Stop()
	}
	b.cooldownTimer = time.AfterFunc(time.Until(until), func() {
		b.ScheduleReconnect()
	})
}

func (b *Bot) noteLoginFailure(err error) {
	kind := domain.TransportKindOf(err)
	b.mu.Lock()
	b.recon.LastError = err.Error()
	b.mu.Unlock()
	if te := new(domain.TransportError); errors.As(err, &te) && te.Permanent() {
		b.failPermanently(string(te.Kind))
		return
	}
	b.setState(BotState{Kind: StateError, ErrorKind: kind})
}

func (b *Bot) noteTransportFailure(err error) {
	kind := domain.TransportKindOf(err)
	b.mu.Lock()
	b.recon.LastError = err.Error()
	b.mu.Unlock()
	if te := new(domain.TransportError); errors.As(err, &te) && te.Permanent() {
		b.failPermanently(string(te.Kind))
		return
	}
	if kind == domain.TransportLoginThrottled {
		b.Throttle(time.Now().Add(b.opts.LoginThrottleCooldown))
		return
	}
	if kind == domain.TransportDisconnected {
		b.setState(BotState{Kind: StateDisconnected})
		b.ScheduleReconnect()
		return
	}
	b.setState(BotState{Kind: StateError, ErrorKind: kind})
}

// ScheduleReconnect arms the reconnect timer with exponential backoff and
// full jitter: min(maxDelay, base * 2^attempt) * rand(0.5, 1.0). Once
// attempts exhaust the bot fails permanently.
func (b *Bot) ScheduleReconnect() {
	b.mu.Lock()
	if b.destroyed || b.recon.PermanentlyFailed || b.recon.Scheduled {
		b.mu.Unlock()
		return
	}
	if b.recon.Attempts >= b.opts.MaxReconnectAttempts {
		attempts := b.recon.Attempts
		b.mu.Unlock()
		b.emit(Event{Kind: EventReconnectExhausted, Username: b.username, Attempt: attempts, MaxAttempts: b.opts.MaxReconnectAttempts})
		b.failPermanently("max reconnect attempts reached")
		return
	}
	attempt := b.recon.Attempts
	delay := reconnectDelay(b.opts.BaseReconnectDelay, b.opts.MaxReconnectDelay, attempt)
	b.recon.Scheduled = true
	b.emitLocked(Event{
		Kind:        EventReconnectScheduled,
		Username:    b.username,
		Attempt:     attempt,
		MaxAttempts: b.opts.MaxReconnectAttempts,
		Delay:       delay,
	})
	b.reconnectTimer = time.AfterFunc(delay, b.reconnect)
	b.mu.Unlock()
	slog.Debug("reconnect scheduled",
		slog.String("bot", b.username),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay))
}

// ForceReconnect drops any scheduled attempt, resets the attempt counter,
// and reconnects immediately.
func (b *Bot) ForceReconnect() {
	b.mu.Lock()
	if b.destroyed || b.recon.PermanentlyFailed {
		b.mu.Unlock()
		return
	}
	if b.reconnectTimer != nil {
		b.reconnectTimer.Stop()
	}
	b.recon.Attempts = 0
	b.recon.Scheduled = true
	b.mu.Unlock()
	go b.reconnect()
}

func (b *Bot) reconnect() {
	b.mu.Lock()
	if b.destroyed || b.recon.PermanentlyFailed {
		b.mu.Unlock()
		return
	}
	attempt := b.recon.Attempts
	b.state = BotState{Kind: StateInitializing}
	b.emitLocked(Event{Kind: EventReconnecting, Username: b.username, Attempt: attempt})
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), b.opts.InspectTimeout)
	err := b.client.Login(ctx)
	cancel()

	b.mu.Lock()
	b.recon.Scheduled = false
	if err == nil {
		b.recon.Attempts = 0
		b.recon.LastError = ""
		b.state = BotState{Kind: StateReady}
		b.emitLocked(Event{Kind: EventReconnected, Username: b.username})
		b.mu.Unlock()
		return
	}
	b.recon.Attempts++
	b.recon.LastError = err.Error()
	b.mu.Unlock()

	if te := new(domain.TransportError); errors.As(err, &te) && te.Permanent() {
		b.failPermanently(string(te.Kind))
		return
	}
	if domain.TransportKindOf(err) == domain.TransportLoginThrottled {
		b.Throttle(time.Now().Add(b.opts.LoginThrottleCooldown))
		return
	}
	b.setState(BotState{Kind: StateDisconnected})
	b.ScheduleReconnect()
}

func (b *Bot) failPermanently(reason string) {
	b.mu.Lock()
	b.recon.PermanentlyFailed = true
	b.recon.CanReconnect = false
	if b.reconnectTimer != nil {
		b.reconnectTimer.Stop()
	}
	if b.cooldownTimer != nil {
		b.cooldownTimer.Stop()
	}
	b.state = BotState{Kind: StatePermanentlyFailed, Reason: reason}
	b.emitLocked(Event{Kind: EventStateChange, Username: b.username, State: b.state})
	b.mu.Unlock()
	slog.Warn("bot permanently failed", slog.String("bot", b.username), slog.String("reason", reason))
}

// Destroy tears the bot down best-effort: timers stopped, transport closed.
func (b *Bot) Destroy() error {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return nil
	}
	b.destroyed = true
	if b.cooldownTimer != nil {
		b.cooldownTimer.Stop()
	}
	if b.reconnectTimer != nil {
		b.reconnectTimer.Stop()
	}
	b.mu.Unlock()
	return b.client.Close()
}

func (b *Bot) setState(s BotState) {
	b.mu.Lock()
	b.state = s
	b.emitLocked(Event{Kind: EventStateChange, Username: b.username, State: s})
	b.mu.Unlock()
}

func (b *Bot) emit(e Event) {
	b.mu.Lock()
	b.emitLocked(e)
	b.mu.Unlock()
}

// emitLocked delivers without blocking; a full shard channel drops the
// event rather than deadlocking a timer goroutine.
func (b *Bot) emitLocked(e Event) {
	if b.events == nil {
		return
	}
	select {
	case b.events <- e:
	default:
		slog.Debug("bot event dropped", slog.String("bot", b.username), slog.String("event", string(e.Kind)))
	}
}

// State returns the current state snapshot.
func (b *Bot) State() BotState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Counters returns a snapshot of the per-bot counters.
func (b *Bot) Counters() BotCounters {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counters
}

// GetReconnectStatus returns the reconnect machinery snapshot.
func (b *Bot) GetReconnectStatus() ReconnectStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recon
}

// State predicates.

func (b *Bot) IsReady() bool        { return b.State().Kind == StateReady }
func (b *Bot) IsBusy() bool         { return b.State().Kind == StateBusy }
func (b *Bot) IsCooldown() bool     { return b.State().Kind == StateCooldown }
func (b *Bot) IsDisconnected() bool { return b.State().Kind == StateDisconnected }
func (b *Bot) IsError() bool        { return b.State().Kind == StateError }

// IsPermanentlyFailed reports whether the bot hit a terminal error.
func (b *Bot) IsPermanentlyFailed() bool { return b.State().Kind == StatePermanentlyFailed }

// reconnectDelay computes min(maxDelay, base*2^attempt) scaled by a full
// jitter factor in [0.5, 1.0).
func reconnectDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	d := maxDelay
	if attempt < 30 {
		if shifted := base << uint(attempt); shifted > 0 && shifted < maxDelay {
			d = shifted
		}
	}
	jitter := 0.5 + 0.5*rand.Float64() //nolint:gosec // Jitter does not need crypto randomness.
	return time.Duration(float64(d) * jitter)
}
