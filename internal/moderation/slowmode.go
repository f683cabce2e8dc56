package moderation

import (
	"fmt"
	"sync"
	"time"
)

// SlowmodeError carries the remaining wait back to the sender only; it is
// never broadcast.
type SlowmodeError struct {
	ChannelID int64
	Remaining int // whole seconds, rounded up
}

func (e *SlowmodeError) Error() string {
	return fmt.Sprintf("slowmode: wait %ds before sending again in channel %d", e.Remaining, e.ChannelID)
}

type cooldownKey struct {
	userID    int64
	channelID int64
}

// SlowmodeLimiter tracks the last accepted message per (user, channel).
// State is in-memory only and resets on restart; that trade-off is
// accepted, slowmode is best-effort pacing, not an entitlement.
type SlowmodeLimiter struct {
	mu   sync.Mutex
	last map[cooldownKey]time.Time
	now  func() time.Time
}

func NewSlowmodeLimiter() *SlowmodeLimiter {
	return &SlowmodeLimiter{
		last: make(map[cooldownKey]time.Time),
		now:  time.Now,
	}
}

// SetClock overrides the time source; tests only.
func (l *SlowmodeLimiter) SetClock(now func() time.Time) { l.now = now }

// Check accepts or rejects a message under the channel's slowmode
// interval. An accepted message records the current instant as the new
// cooldown origin; a rejected one leaves state untouched. The owner
// exemption is the caller's concern: exempt senders skip Check entirely.
func (l *SlowmodeLimiter) Check(userID, channelID int64, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := cooldownKey{userID: userID, channelID: channelID}
	now := l.now()
	if last, ok := l.last[key]; ok {
		elapsed := now.Sub(last)
		if elapsed < interval {
			remaining := interval - elapsed
			return &SlowmodeError{
				ChannelID: channelID,
				Remaining: int((remaining + time.Second - 1) / time.Second),
			}
		}
	}
	l.last[key] = now
	return nil
}
