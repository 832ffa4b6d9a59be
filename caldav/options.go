package caldav

import (
	"time"

	"github.com/lnshvets/caldavsync/dav"
)

// QueryOptions carries the optional time-range bound for fetchEvents /
// fetchEtagsInRange (spec §4.2).
type QueryOptions struct {
	TimeRangeStart *time.Time
	TimeRangeEnd   *time.Time
}

// PutOptions carries the ETag preconditions for a direct PUT.
type PutOptions struct {
	IfMatch     dav.ConditionalMatch
	IfNoneMatch dav.ConditionalMatch
}
