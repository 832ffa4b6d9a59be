package push

import "github.com/lnshvets/caldavsync/caldav"

// Merger combines a local and a server event into one to replay, for the
// Manual conflict strategy.
type Merger func(local, server caldav.Event) caldav.Event

// ConflictStrategy selects how a parked (412'd) PendingOperation is resolved
// (spec §4.4). It is distinct from caldav.ConflictResolver: that one
// operates inline during a direct PUT; this one operates on queued
// operations pulled from the conflict queue by the host.
type ConflictStrategy struct {
	name   string
	merger Merger
}

func (s ConflictStrategy) String() string { return s.name }

var (
	ServerWins = ConflictStrategy{name: "server-wins"}
	LocalWins  = ConflictStrategy{name: "local-wins"}
	NewestWins = ConflictStrategy{name: "newest-wins"}
)

// Manual returns a strategy that invokes merger(local, server) and replays
// the result with the fresh server ETag.
func Manual(merger Merger) ConflictStrategy {
	return ConflictStrategy{name: "manual", merger: merger}
}

// newestWinner reports whether local beats server under spec §4.4's
// NewestWins rule, comparing DTStamp (or LastModified when either side has
// no DTStamp) and breaking ties in favor of the server (spec §9 Open
// Question (b), pinned for determinism).
func newestWinner(local, server caldav.Event) bool {
	lt, st := local.DTStamp, server.DTStamp
	if lt.IsZero() || st.IsZero() {
		lt, st = local.LastModified, server.LastModified
	}
	return lt.After(st)
}
