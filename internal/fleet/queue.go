package fleet

import (
	"container/heap"
	"sync"
	"time"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
)

// Priority ranks queue entries: high > normal > low. Ties break by
// insertion time.
type Priority int8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// AddResult reports the outcome of an admission attempt.
type AddResult int

const (
	AddOK AddResult = iota
	AddCoalesced
	AddFull
)

// Outcome resolves one inspect request. Exactly one Outcome is delivered
// per attached completion channel.
type Outcome struct {
	Info domain.ItemInfo
	Err  error
}

// Request is the payload of one admission.
type Request struct {
	AssetID  uint64
	Owner    uint64
	Proof    uint64
	MarketID uint64
	Priority Priority
}

type queueEntry struct {
	req         Request
	enqueuedAt  time.Time
	deadline    time.Time
	retryCount  int
	dispatched  bool
	parked      bool
	completions []chan<- Outcome
	index       int // heap position, -1 when removed
}

// entryHeap orders undispatched entries by (priority desc, enqueuedAt asc).
type entryHeap []*queueEntry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].req.Priority != h[j].req.Priority {
		return h[i].req.Priority > h[j].req.Priority
	}
	return h[i].enqueuedAt.Before(h[j].enqueuedAt)
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x any) {
	e := x.(*queueEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// QueueEntryMetrics is one row of the queue introspection listing.
type QueueEntryMetrics struct {
	AssetID    uint64    `json:"asset_id"`
	Priority   string    `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Deadline   time.Time `json:"deadline"`
	RetryCount int       `json:"retry_count"`
	Waiters    int       `json:"waiters"`
	Dispatched bool      `json:"dispatched"`
}

// Queue is the bounded admission queue. Entries are keyed uniquely by
// asset id: concurrent submissions for the same asset coalesce onto one
// physical inspect. Dispatched entries stay keyed (so coalescing and the
// at-most-one-inflight-per-asset invariant hold) but leave the heap.
type Queue struct {
	mu      sync.Mutex
	maxSize int
	timeout time.Duration
	byAsset map[uint64]*queueEntry
	ready   entryHeap
}

// NewQueue builds an admission queue with the given capacity and
// per-entry deadline.
func NewQueue(maxSize int, timeout time.Duration) *Queue {
	return &Queue{
		maxSize: maxSize,
		timeout: timeout,
		byAsset: make(map[uint64]*queueEntry),
	}
}

// Add admits req, attaching c as a completion. A second submission for an
// asset already queued coalesces; admission past capacity returns AddFull.
func (q *Queue) Add(req Request, c chan<- Outcome) AddResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.byAsset[req.AssetID]; ok {
		e.completions = append(e.completions, c)
		return AddCoalesced
	}
	if len(q.byAsset) >= q.maxSize {
		return AddFull
	}
	now := time.Now()
	e := &queueEntry{
		req:         req,
		enqueuedAt:  now,
		deadline:    now.Add(q.timeout),
		completions: []chan<- Outcome{c},
	}
	q.byAsset[req.AssetID] = e
	heap.Push(&q.ready, e)
	return AddOK
}

// PopReady removes and returns the highest-priority undispatched entry,
// or nil. The entry stays keyed by asset id until resolved.
func (q *Queue) PopReady() *queueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ready.Len() == 0 {
		return nil
	}
	e := heap.Pop(&q.ready).(*queueEntry)
	e.dispatched = true
	return e
}

// Requeue puts a dispatched entry back for another attempt. countRetry
// distinguishes a real retry from parking the entry while all bots are
// busy or cooling. Returns false if the entry was already resolved or
// its deadline passed.
func (q *Queue) Requeue(e *queueEntry, countRetry bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.byAsset[e.req.AssetID] != e {
		return false
	}
	if !time.Now().Before(e.deadline) {
		return false
	}
	if countRetry {
		e.retryCount++
	}
	e.dispatched = false
	e.parked = false
	heap.Push(&q.ready, e)
	return true
}

// Park keeps a dispatched entry keyed but off the heap. Parked entries
// are invisible to PopReady until UnparkAll, so the dispatcher can block
// instead of spinning on work that no bot can take yet. Returns false if
// the entry was already resolved or its deadline passed.
func (q *Queue) Park(e *queueEntry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.byAsset[e.req.AssetID] != e {
		return false
	}
	if !time.Now().Before(e.deadline) {
		return false
	}
	e.dispatched = false
	e.parked = true
	return true
}

// UnparkAll returns every parked entry to the heap. Called when a bot
// may have become ready.
func (q *Queue) UnparkAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.byAsset {
		if e.parked {
			e.parked = false
			heap.Push(&q.ready, e)
		}
	}
}

// Resolve removes the entry for assetID and delivers out to every
// attached completion. Returns false if no entry remained (the result of
// an expired dispatch is dropped here).
func (q *Queue) Resolve(assetID uint64, out Outcome) bool {
	q.mu.Lock()
	e, ok := q.byAsset[assetID]
	if ok {
		delete(q.byAsset, assetID)
		if e.index >= 0 {
			heap.Remove(&q.ready, e.index)
		}
	}
	q.mu.Unlock()
	if !ok {
		return false
	}
	deliver(e, out)
	return true
}

// ExpireBefore removes every entry whose deadline is at or before now and
// resolves its completions with ErrInspectTimeout. Returns the number of
// expired entries.
func (q *Queue) ExpireBefore(now time.Time) int {
	q.mu.Lock()
	var expired []*queueEntry
	for id, e := range q.byAsset {
		if !now.Before(e.deadline) {
			delete(q.byAsset, id)
			if e.index >= 0 {
				heap.Remove(&q.ready, e.index)
			}
			expired = append(expired, e)
		}
	}
	q.mu.Unlock()
	for _, e := range expired {
		deliver(e, Outcome{Err: domain.ErrInspectTimeout})
	}
	return len(expired)
}

// NextDeadline returns the earliest deadline among resident entries, or
// zero time when the queue is empty.
func (q *Queue) NextDeadline() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	var next time.Time
	for _, e := range q.byAsset {
		if next.IsZero() || e.deadline.Before(next) {
			next = e.deadline
		}
	}
	return next
}

// Drain resolves every resident entry with err. Used at shutdown.
func (q *Queue) Drain(err error) {
	q.mu.Lock()
	entries := make([]*queueEntry, 0, len(q.byAsset))
	for id, e := range q.byAsset {
		delete(q.byAsset, id)
		entries = append(entries, e)
	}
	q.ready = q.ready[:0]
	q.mu.Unlock()
	for _, e := range entries {
		deliver(e, Outcome{Err: err})
	}
}

// Size returns the number of resident entries.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byAsset)
}

// IsFull reports whether admission would return AddFull.
func (q *Queue) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byAsset) >= q.maxSize
}

// Metrics lists resident entries with their priorities.
func (q *Queue) Metrics() []QueueEntryMetrics {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueueEntryMetrics, 0, len(q.byAsset))
	for _, e := range q.byAsset {
		out = append(out, QueueEntryMetrics{
			AssetID:    e.req.AssetID,
			Priority:   e.req.Priority.String(),
			EnqueuedAt: e.enqueuedAt,
			Deadline:   e.deadline,
			RetryCount: e.retryCount,
			Waiters:    len(e.completions),
			Dispatched: e.dispatched,
		})
	}
	return out
}

func deliver(e *queueEntry, out Outcome) {
	for _, c := range e.completions {
		select {
		case c <- out:
		default:
			// Completion channels are buffered size 1 and read once; a
			// second delivery attempt lands here and is dropped.
		}
	}
}
