package caldav

import (
	"time"

	"github.com/lnshvets/caldavsync/dav"
)

// AuthType selects how the transport should attach credentials; the core
// itself never holds them (spec §6 HTTP transport contract).
type AuthType int

const (
	AuthBasic AuthType = iota
	AuthBearer
)

// QuirkProfile is the table-driven value object spec §4.2/§9 asks for in
// place of a provider subclass hierarchy: every piece of per-provider
// behavior the client needs is a field here, constructed once by the host
// after inspecting the target URL and threaded through every call.
type QuirkProfile struct {
	Name string

	// UnquoteETags strips surrounding quotes from getetag values (iCloud).
	UnquoteETags bool

	// EventualConsistency enables the bounded backoff read-after-write
	// loop in spec §4.4.
	EventualConsistency bool
	MaxRetries          int
	RetryBaseDelay      time.Duration
	RetryFactor         float64

	Auth AuthType
}

func (q QuirkProfile) parseOptions() dav.ParseOptions {
	return dav.ParseOptions{UnquoteETags: q.UnquoteETags}
}

// RFCStrictProfile is the default: no quirks enabled, matching a
// standards-compliant server.
var RFCStrictProfile = QuirkProfile{
	Name:           "rfc-strict",
	MaxRetries:     3,
	RetryBaseDelay: 100 * time.Millisecond,
	RetryFactor:    2,
	Auth:           AuthBasic,
}

// ICloudProfile accounts for iCloud's observed behavior: quoted ETags that
// need stripping, duplicate sync-collection entries (handled unconditionally
// in dav.ParseMultiStatus), and eventual consistency after writes.
var ICloudProfile = QuirkProfile{
	Name:                "icloud",
	UnquoteETags:        true,
	EventualConsistency: true,
	MaxRetries:          3,
	RetryBaseDelay:      100 * time.Millisecond,
	RetryFactor:         2,
	Auth:                AuthBasic,
}

// GoogleProfile uses bearer auth (OAuth2) and RFC-compliant ETag quoting.
var GoogleProfile = QuirkProfile{
	Name:           "google",
	MaxRetries:     3,
	RetryBaseDelay: 100 * time.Millisecond,
	RetryFactor:    2,
	Auth:           AuthBearer,
}
