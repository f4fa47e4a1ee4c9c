package fleet

import (
	"sort"
	"sync"
	"time"
)

// BotRow is one per-bot line of a shard stats snapshot. Usernames are
// truncated so snapshots can be exposed on /stats without leaking
// credentials.
type BotRow struct {
	Username  string          `json:"username"`
	State     string          `json:"state"`
	Counters  BotCounters     `json:"counters"`
	Reconnect ReconnectStatus `json:"reconnect"`
}

// ShardStats is one shard's periodic snapshot.
type ShardStats struct {
	ShardID     int            `json:"shard_id"`
	Bots        []BotRow       `json:"bots"`
	StateCounts map[string]int `json:"state_counts"`
	ReadyBots   int            `json:"ready_bots"`
	TakenAt     time.Time      `json:"taken_at"`
}

// Counters is the global monotonic counter set.
type Counters struct {
	Success           uint64 `json:"success"`
	Cached            uint64 `json:"cached"`
	Failed            uint64 `json:"failed"`
	Timeouts          uint64 `json:"timeouts"`
	Retried           uint64 `json:"retried"`
	SuccessAfterRetry uint64 `json:"success_after_retry"`
}

// Percentiles summarizes a response-time distribution in milliseconds.
type Percentiles struct {
	Count int     `json:"count"`
	P50   float64 `json:"p50_ms"`
	P95   float64 `json:"p95_ms"`
	P99   float64 `json:"p99_ms"`
}

// QueueStats summarizes the admission queue.
type QueueStats struct {
	Size       int                 `json:"size"`
	MaxSize    int                 `json:"max_size"`
	Priorities map[string]int      `json:"priorities"`
	Entries    []QueueEntryMetrics `json:"entries"`
}

// Snapshot is the aggregated fleet view returned by Manager.Stats.
type Snapshot struct {
	Shards      []ShardStats   `json:"shards"`
	StateCounts map[string]int `json:"state_counts"`
	ReadyBots   int            `json:"ready_bots"`
	TotalBots   int            `json:"total_bots"`
	Queue       QueueStats     `json:"queue"`
	Counters    Counters       `json:"counters"`
	AllTime     Percentiles    `json:"response_times_all"`
	Window      Percentiles    `json:"response_times_5m"`
}

const (
	responseWindow     = 5 * time.Minute
	allTimeSampleLimit = 100_000
)

type rtSample struct {
	at time.Time
	ms float64
}

// responseTimes tracks per-request durations for percentile reporting:
// an exact 5-minute sliding window plus an all-time view over the most
// recent allTimeSampleLimit samples.
type responseTimes struct {
	mu      sync.Mutex
	window  []rtSample
	all     []float64
	allNext int
	allFull bool
}

func newResponseTimes() *responseTimes { return &responseTimes{} }

func (r *responseTimes) Record(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.window = append(r.window, rtSample{at: now, ms: ms})
	r.pruneLocked(now)
	if len(r.all) < allTimeSampleLimit {
		r.all = append(r.all, ms)
		return
	}
	r.all[r.allNext] = ms
	r.allNext = (r.allNext + 1) % allTimeSampleLimit
	r.allFull = true
}

func (r *responseTimes) pruneLocked(now time.Time) {
	cutoff := now.Add(-responseWindow)
	i := 0
	for i < len(r.window) && r.window[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		r.window = append(r.window[:0], r.window[i:]...)
	}
}

// Snapshot returns (allTime, window) percentile summaries.
func (r *responseTimes) Snapshot() (Percentiles, Percentiles) {
	r.mu.Lock()
	r.pruneLocked(time.Now())
	all := make([]float64, len(r.all))
	copy(all, r.all)
	win := make([]float64, len(r.window))
	for i, s := range r.window {
		win[i] = s.ms
	}
	r.mu.Unlock()
	return percentilesOf(all), percentilesOf(win)
}

func percentilesOf(ms []float64) Percentiles {
	p := Percentiles{Count: len(ms)}
	if len(ms) == 0 {
		return p
	}
	sort.Float64s(ms)
	p.P50 = quantile(ms, 0.50)
	p.P95 = quantile(ms, 0.95)
	p.P99 = quantile(ms, 0.99)
	return p
}

// quantile uses the nearest-rank method on a sorted slice.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// truncateUsername keeps a short recognizable prefix for stats output.
func truncateUsername(u string) string {
	if len(u) <= 4 {
		return u
	}
	return u[:4] + "***"
}
