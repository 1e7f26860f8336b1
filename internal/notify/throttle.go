// FILE: throttle.go
// PerAssetThrottle rate-limits repeated notifications that share a key so a
// flapping worker doesn't spam the notification channel. NotifyFor takes
// the key explicitly; Notify uses the message text as the key, so through
// the plain Notifier interface only identical messages are throttled, not
// every message about one asset.
package notify

import (
	"sync"
	"time"
)

// PerAssetThrottle wraps a Notifier and drops repeated messages for the
// same key until delay has elapsed since the last one that went through.
type PerAssetThrottle struct {
	Notifier Notifier
	Delay    time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewPerAssetThrottle(notifier Notifier, delay time.Duration) *PerAssetThrottle {
	return &PerAssetThrottle{Notifier: notifier, Delay: delay, lastSent: make(map[string]time.Time)}
}

// Notify implements Notifier by throttling on the message text itself, so a
// PerAssetThrottle can be used anywhere a plain Notifier is expected. Callers
// that want throttling keyed on something other than the exact message
// (e.g. one key covering several message variants) should call NotifyFor
// directly instead.
func (t *PerAssetThrottle) Notify(msg string) {
	t.NotifyFor(msg, msg)
}

var _ Notifier = (*PerAssetThrottle)(nil)

// NotifyFor sends msg for key, unless delay hasn't elapsed since the last
// message sent for that same key.
func (t *PerAssetThrottle) NotifyFor(key, msg string) {
	t.mu.Lock()
	last, ok := t.lastSent[key]
	now := time.Now()
	if ok && now.Sub(last) <= t.Delay {
		t.mu.Unlock()
		return
	}
	t.lastSent[key] = now
	t.mu.Unlock()
	t.Notifier.Notify(msg)
}
