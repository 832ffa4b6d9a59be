package caldav

import "time"

// EventStatus mirrors RFC 5545 STATUS for VEVENT.
type EventStatus string

const (
	StatusTentative EventStatus = "tentative"
	StatusConfirmed EventStatus = "confirmed"
	StatusCancelled EventStatus = "cancelled"
)

// Transparency mirrors RFC 5545 TRANSP.
type Transparency string

const (
	TransparencyOpaque      Transparency = "opaque"
	TransparencyTransparent Transparency = "transparent"
)

// DateTimeValue is a single dtstart/dtend/recurrence-id style timestamp: it
// may be date-only, UTC, a named zone, or floating (no zone at all), exactly
// as RFC 5545 allows, so the codec can round-trip whichever form the source
// used instead of normalizing it away.
type DateTimeValue struct {
	Time     time.Time
	DateOnly bool
	// TZID is the named zone, empty when the value is UTC (Time.Location
	// is time.UTC) or floating (Time.Location is time.Local and IsFloating
	// is true).
	TZID       string
	IsFloating bool
}

// Attendee is a single VEVENT ATTENDEE line.
type Attendee struct {
	Email       string
	CommonName  string
	Role        string
	PartStat    string
	RSVP        bool
	IsOrganizer bool
}

// Alarm is a single VALARM subcomponent.
type Alarm struct {
	Action      string
	TriggerText string // raw TRIGGER value text, round-tripped verbatim
	Description string
}

// Event is the core domain type (spec §3). uid is the stable identity;
// Href/ETag addressing lives one layer up in EventWithMetadata/ResourceHref
// so that Event itself stays a pure value, comparable across round-trips.
type Event struct {
	UID          string
	Summary      string
	Description  string
	Location     string
	Status       EventStatus
	Transparency Transparency
	Sequence     int

	DTStart DateTimeValue
	DTEnd   DateTimeValue // zero value if Duration is authoritative instead
	Duration time.Duration
	HasDuration bool
	IsAllDay bool

	RRule          string // raw RRULE text, round-tripped, never expanded
	ExceptionDates []DateTimeValue
	RecurrenceID   *DateTimeValue

	Alarms     []Alarm
	Categories []string
	Organizer  *Attendee
	Attendees  []Attendee
	Color      string

	DTStamp      time.Time
	LastModified time.Time
	Created      time.Time
	URL          string

	// Extra holds raw extension properties (X- properties and anything the
	// codec doesn't model explicitly) so they survive a read-modify-write
	// round trip untouched.
	Extra map[string][]string
}

// Validate checks the structural invariants spec §3 states for Event. It
// does not validate RRULE syntax (see icalcodec.ValidateRRULE) or perform
// any network or persistence check.
func (e Event) Validate() error {
	if e.UID == "" {
		return &ValidationError{Message: "uid must not be empty"}
	}
	if e.Sequence < 0 {
		return &ValidationError{Message: "sequence must not be negative"}
	}
	if e.HasDuration && !e.DTEnd.Time.IsZero() {
		return &ValidationError{Message: "dtend and duration are mutually exclusive"}
	}
	if !e.HasDuration && !e.DTEnd.Time.IsZero() && e.DTEnd.Time.Before(e.DTStart.Time) {
		return &ValidationError{Message: "dtstart must not be after dtend"}
	}
	if e.IsAllDay {
		if !e.DTStart.DateOnly || (!e.DTEnd.Time.IsZero() && !e.DTEnd.DateOnly) {
			return &ValidationError{Message: "all-day events must use date-only endpoints"}
		}
	}
	return nil
}

// ValidationError reports a violated Event invariant.
type ValidationError struct{ Message string }

func (e *ValidationError) Error() string { return "caldav: invalid event: " + e.Message }

// ResourceHref is the (href, etag) pair addressing a resource on the server.
// Equality is by Href alone (see Equal).
type ResourceHref struct {
	Href string
	ETag string
}

// Equal reports whether r and o address the same resource (same Href).
func (r ResourceHref) Equal(o ResourceHref) bool { return r.Href == o.Href }

// EventWithMetadata pairs a materialized Event with its server address.
// Href is authoritative for addressing; Event.UID is authoritative for
// identity — both must survive round-trips untouched.
type EventWithMetadata struct {
	Href  string
	ETag  string // empty if unknown
	Event Event
}

// EtagInfo is an (href, etag) pair returned by an ETag-only calendar-query,
// with the ETag already unquoted per the active QuirkProfile.
type EtagInfo struct {
	Href string
	ETag string
}

// Calendar is one discovered calendar collection (spec §4.2 discovery step
// 3/4).
type Calendar struct {
	URL              string
	DisplayName      string
	Color            string
	SupportedComps   []string
	CTag             string
	SyncToken        string
}

// Account bundles the result of the full discovery chain (spec's
// supplemented discoverAccount): principal, home set, and the calendars
// found under it.
type Account struct {
	PrincipalURL    string
	CalendarHomeSet string
	Calendars       []Calendar
}

// SyncState is the persistent per-calendar cursor (spec §3). The engine
// mutates it only atomically on completion of a sync phase; the host
// persists it verbatim.
type SyncState struct {
	CalendarURL string
	CTag        string
	SyncToken   string
	ETags       map[string]string // href -> etag
	URLMap      map[string]string // uid -> href
	LastSync    time.Time
}

// NewSyncState returns an empty cursor for a calendar that has never
// synced (the engine's Initial state).
func NewSyncState(calendarURL string) *SyncState {
	return &SyncState{
		CalendarURL: calendarURL,
		ETags:       map[string]string{},
		URLMap:      map[string]string{},
	}
}

// SyncResult is the parsed outcome of a sync-collection report (spec §3).
type SyncResult struct {
	Added        []EventWithMetadata
	Deleted      []string // hrefs signaled 404/410
	AddedHrefs   []EtagInfo // etag-only entries needing a follow-up multiget
	NewSyncToken string
}
