// Package syncengine implements the Sync Engine (spec §4.3): the state
// machine that drives full and incremental synchronization against a
// caldav.Client, diffs server state against a caldav.SyncState, and invokes
// a caldav.SyncResultHandler to apply changes.
package syncengine

import (
	"sync"
	"time"
)

// FailureTracker quarantines hrefs whose calendar-data has failed to parse
// repeatedly (spec §4.3 "Parse-failure handling"), per-calendar and
// single-writer as spec §5 requires.
type FailureTracker struct {
	mu      sync.Mutex
	entries map[string]*failureEntry
	// MaxRetries is the threshold after which an href is quarantined
	// (default 3, per spec §4.3).
	MaxRetries int
}

type failureEntry struct {
	count       int
	firstSeenAt time.Time
	lastETag    string
}

func NewFailureTracker(maxRetries int) *FailureTracker {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &FailureTracker{entries: map[string]*failureEntry{}, MaxRetries: maxRetries}
}

// RecordFailure increments the failure count for href, observing its
// current etag so a later change can auto-clear the quarantine.
func (t *FailureTracker) RecordFailure(href, etag string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[href]
	if !ok {
		e = &failureEntry{firstSeenAt: time.Now()}
		t.entries[href] = e
	}
	e.count++
	e.lastETag = etag
}

// IsQuarantined reports whether href has met or exceeded MaxRetries.
func (t *FailureTracker) IsQuarantined(href string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[href]
	return ok && e.count >= t.MaxRetries
}

// Clear removes the quarantine for href (external admin action, per spec
// §4.3).
func (t *FailureTracker) Clear(href string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, href)
}

// ObserveETag auto-clears the quarantine for href when the server-observed
// etag differs from the one recorded at the last failure (spec §9 Open
// Question (c), resolved in DESIGN.md).
func (t *FailureTracker) ObserveETag(href, etag string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[href]
	if ok && e.lastETag != "" && e.lastETag != etag {
		delete(t.entries, href)
	}
}
