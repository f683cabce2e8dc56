package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusIdle    Status = "idle"
	StatusOffline Status = "offline"
)

// TransitionFunc is invoked for every observable status change. It is
// always called outside the tracker's lock, so implementations may
// broadcast freely.
type TransitionFunc func(userID int64, status Status)

type record struct {
	status       Status
	lastActivity time.Time
}

// Tracker maps connected users to their live status. Records are created
// on first connection and removed on last disconnection; a user has at
// most one record regardless of concurrent sessions, and the latest
// connecting session wins presence writes.
type Tracker struct {
	mu      sync.RWMutex
	records map[int64]*record

	idleAfter     time.Duration
	sweepInterval time.Duration
	onTransition  TransitionFunc

	logger *slog.Logger
	now    func() time.Time
}

func NewTracker(idleAfter, sweepInterval time.Duration, onTransition TransitionFunc, logger *slog.Logger) *Tracker {
	return &Tracker{
		records:       make(map[int64]*record),
		idleAfter:     idleAfter,
		sweepInterval: sweepInterval,
		onTransition:  onTransition,
		logger:        logger.With(slog.String("component", "presence")),
		now:           time.Now,
	}
}

// SetClock overrides the time source; tests only.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// Run drives the idle sweep until the context is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

// Connect marks the user online and reports the transition.
func (t *Tracker) Connect(userID int64) {
	t.mu.Lock()
	t.records[userID] = &record{status: StatusOnline, lastActivity: t.now()}
	t.mu.Unlock()

	t.onTransition(userID, StatusOnline)
}

// Disconnect removes the user's record and reports the offline transition.
func (t *Tracker) Disconnect(userID int64) {
	t.mu.Lock()
	_, existed := t.records[userID]
	delete(t.records, userID)
	t.mu.Unlock()

	if existed {
		t.onTransition(userID, StatusOffline)
	}
}

// Touch records user activity, waking an idle user back to online.
func (t *Tracker) Touch(userID int64) {
	t.mu.Lock()
	rec, ok := t.records[userID]
	var wasIdle bool
	if ok {
		wasIdle = rec.status == StatusIdle
		rec.lastActivity = t.now()
		rec.status = StatusOnline
	}
	t.mu.Unlock()

	if wasIdle {
		t.onTransition(userID, StatusOnline)
	}
}

// Status returns the user's live status, offline when no record exists.
func (t *Tracker) Status(userID int64) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if rec, ok := t.records[userID]; ok {
		return rec.status
	}
	return StatusOffline
}

// IsOnline reports whether the user has a live presence record,
// regardless of the online/idle distinction.
func (t *Tracker) IsOnline(userID int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.records[userID]
	return ok
}

// sweep transitions users online -> idle after prolonged inactivity. The
// lock is released before any transition callback fires.
func (t *Tracker) sweep() {
	now := t.now()

	t.mu.Lock()
	var idled []int64
	for userID, rec := range t.records {
		if rec.status == StatusOnline && now.Sub(rec.lastActivity) > t.idleAfter {
			rec.status = StatusIdle
			idled = append(idled, userID)
		}
	}
	t.mu.Unlock()

	for _, userID := range idled {
		t.logger.Debug("user went idle", slog.Int64("userID", userID))
		t.onTransition(userID, StatusIdle)
	}
}

// Sweep runs a single sweep pass; exported for tests.
func (t *Tracker) Sweep() { t.sweep() }
