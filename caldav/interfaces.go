package caldav

// Codec is the iCal codec contract (spec §6): parse/generate is treated as
// an external black box. Round-trip law: for every event accepted by the
// codec, Parse(Generate(e)) must reproduce e modulo the non-round-trippable
// fields noted in spec §3. icalcodec.Codec implements this over
// github.com/emersion/go-ical.
type Codec interface {
	// Parse decodes a single VCALENDAR/VEVENT text blob (as found in a
	// calendar-data property) into zero or more events. Multiple VEVENTs
	// (a master plus overrides) are returned as multiple Events sharing a
	// UID, distinguished by RecurrenceID.
	Parse(text string) ([]Event, error)
	// Generate serializes a single event back into calendar-data text.
	Generate(e Event) (string, error)
}

// LocalEventProvider is the host-implemented read side of local storage
// (spec §6). GetLocalEvents must be a pure read with no side effects.
type LocalEventProvider interface {
	GetLocalEvents(calendarURL string) ([]LocalEvent, error)
}

// LocalEvent is a (uid, etag?, event) triple as read from local storage.
type LocalEvent struct {
	UID   string
	ETag  string // empty if unknown
	Event Event
}

// SyncResultHandler is the host-implemented write side invoked per change
// during the Apply phase (spec §6). Every method must be idempotent, since
// a cancelled or retried sync may replay the same change.
type SyncResultHandler interface {
	UpsertEvent(e EventWithMetadata) error
	DeleteEvent(uid string) error
	RecordEtag(uid, href, etag string) error
}
