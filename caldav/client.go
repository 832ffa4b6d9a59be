package caldav

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/mo"

	"github.com/lnshvets/caldavsync/dav"
)

// Client is the CalDAV Client (spec §4.2): discovery, property reads,
// calendar-query/multiget, sync-collection, and event CRUD, built on the
// protocol primitives in package dav rather than on github.com/emersion/
// go-webdav directly — see DESIGN.md for why the adapter is reimplemented
// in-tree instead of depended on.
type Client struct {
	dav *dav.Client

	quirk QuirkProfile
	codec Codec
	log   zerolog.Logger

	conflictResolver ConflictResolver
}

func NewClient(doer dav.HTTPDoer, baseURL string, quirk QuirkProfile, codec Codec, logger zerolog.Logger) *Client {
	return &Client{
		dav:   dav.NewClient(doer, baseURL),
		quirk: quirk,
		codec: codec,
		log:   logger.With().Str("component", "caldav.Client").Logger(),
	}
}

// SetConflictResolver sets the direct-PUT conflict resolution strategy.
// Pass nil to disable automatic resolution (a 412 is then returned as-is).
func (c *Client) SetConflictResolver(r ConflictResolver) {
	c.conflictResolver = r
}

func (c *Client) parseOpts() dav.ParseOptions { return c.quirk.parseOptions() }

// DiscoverAccount implements the discovery chain spec §4.2 names, including
// the current-user-principal hop the teacher never needed (see
// SPEC_FULL.md's "Discovery chain" supplement).
func (c *Client) DiscoverAccount(ctx context.Context, baseURL string) DavResult[Account] {
	principalURL, err := c.discoverPrincipal(ctx, baseURL)
	if err != nil {
		return Failure[Account](err)
	}

	ms, err := c.dav.Propfind(ctx, principalURL, dav.Depth0, []dav.PropName{dav.PropCalendarHomeSet}, c.parseOpts())
	if err != nil {
		return Failure[Account](err)
	}
	if len(ms.Responses) == 0 {
		return Failure[Account](&dav.HTTPError{Code: 404, Message: "no calendar-home-set response"})
	}
	homeEl, ok := ms.Responses[0].Text(dav.PropCalendarHomeSet)
	if !ok {
		// Text already reads an <href> nested inside the property; a
		// response that lacks the property entirely falls back to the
		// response's own href.
		homeEl = ms.Responses[0].Href
	}
	homeSet := homeEl

	calendars, err := c.discoverCalendars(ctx, homeSet)
	if err != nil {
		return Failure[Account](err)
	}

	return Success(Account{
		PrincipalURL:    principalURL,
		CalendarHomeSet: homeSet,
		Calendars:       calendars,
	})
}

func (c *Client) discoverPrincipal(ctx context.Context, baseURL string) (string, error) {
	candidates := []string{strings.TrimSuffix(baseURL, "/") + "/.well-known/caldav", baseURL}
	var lastErr error
	for _, url := range candidates {
		ms, err := c.dav.Propfind(ctx, url, dav.Depth0, []dav.PropName{dav.PropCurrentUserPrin}, c.parseOpts())
		if err != nil {
			lastErr = err
			continue
		}
		if len(ms.Responses) == 0 {
			continue
		}
		if v, ok := ms.Responses[0].Text(dav.PropCurrentUserPrin); ok && v != "" {
			return v, nil
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", &dav.HTTPError{Code: 404, Message: "current-user-principal not found"}
}

func (c *Client) discoverCalendars(ctx context.Context, homeSet string) ([]Calendar, error) {
	names := []dav.PropName{
		dav.PropResourceType,
		dav.PropDisplayName,
		dav.PropColor,
		dav.PropSupportedCompSet,
		dav.PropGetCTag,
		dav.PropSyncToken,
	}
	ms, err := c.dav.Propfind(ctx, homeSet, dav.Depth1, names, c.parseOpts())
	if err != nil {
		return nil, err
	}

	var out []Calendar
	for _, resp := range ms.Responses {
		if !resp.IsCalendar() {
			continue
		}
		cal := Calendar{URL: resp.Href}
		cal.DisplayName, _ = resp.Text(dav.PropDisplayName)
		cal.Color, _ = resp.Text(dav.PropColor)
		cal.CTag, _ = resp.Text(dav.PropGetCTag)
		cal.SyncToken, _ = resp.Text(dav.PropSyncToken)
		out = append(out, cal)
	}
	return out, nil
}

// GetCtag implements spec §4.2's property read: missing properties are
// Success(None), not an error.
func (c *Client) GetCtag(ctx context.Context, url string) DavResult[mo.Option[string]] {
	v, err := c.dav.GetCtag(ctx, url, c.parseOpts())
	if err != nil {
		return Failure[mo.Option[string]](err)
	}
	return Success(v)
}

// GetSyncToken implements spec §4.2's property read.
func (c *Client) GetSyncToken(ctx context.Context, url string) DavResult[mo.Option[string]] {
	v, err := c.dav.GetSyncToken(ctx, url, c.parseOpts())
	if err != nil {
		return Failure[mo.Option[string]](err)
	}
	return Success(v)
}

func utcStamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("20060102T150405Z")
}

// FetchEvents implements the full calendar-query (spec §4.2): unparseable
// entries are logged and skipped, not a batch failure.
func (c *Client) FetchEvents(ctx context.Context, url string, opts QueryOptions) DavResult[[]EventWithMetadata] {
	filter := dav.CompFilter{Name: "VEVENT"}
	if opts.TimeRangeStart != nil {
		filter.TimeRangeStart = utcStamp(*opts.TimeRangeStart)
	}
	if opts.TimeRangeEnd != nil {
		filter.TimeRangeEnd = utcStamp(*opts.TimeRangeEnd)
	}
	doc := dav.BuildCalendarQuery(filter, true)

	ms, err := c.dav.Report(ctx, url, dav.Depth1, doc, c.parseOpts())
	if err != nil {
		return Failure[[]EventWithMetadata](err)
	}
	return Success(c.decodeEventResponses(ms))
}

// FetchEtagsInRange implements the ETag-only calendar-query (spec §4.2):
// the request body must not contain calendar-data.
func (c *Client) FetchEtagsInRange(ctx context.Context, url string, start, end time.Time) DavResult[[]EtagInfo] {
	filter := dav.CompFilter{Name: "VEVENT", TimeRangeStart: utcStamp(start), TimeRangeEnd: utcStamp(end)}
	doc := dav.BuildCalendarQuery(filter, false)

	ms, err := c.dav.Report(ctx, url, dav.Depth1, doc, c.parseOpts())
	if err != nil {
		return Failure[[]EtagInfo](err)
	}

	var out []EtagInfo
	for _, resp := range ms.Responses {
		if resp.Href == "" {
			continue
		}
		etag, ok := resp.ETag(c.parseOpts())
		if !ok {
			continue
		}
		out = append(out, EtagInfo{Href: resp.Href, ETag: etag})
	}
	return Success(out)
}

// FetchEventsByHref implements calendar-multiget (spec §4.2): empty input
// is a no-op success with no network call; per-href 404s are dropped.
func (c *Client) FetchEventsByHref(ctx context.Context, url string, hrefs []string) DavResult[[]EventWithMetadata] {
	if len(hrefs) == 0 {
		return Success[[]EventWithMetadata](nil)
	}
	doc := dav.BuildCalendarMultiget(hrefs, true)

	ms, err := c.dav.Report(ctx, url, dav.Depth1, doc, c.parseOpts())
	if err != nil {
		return Failure[[]EventWithMetadata](err)
	}
	return Success(c.decodeEventResponses(ms))
}

// decodeEventResponses parses calendar-data inline in a multistatus,
// skipping (and logging) both per-href 404s and codec parse failures.
func (c *Client) decodeEventResponses(ms *dav.MultiStatus) []EventWithMetadata {
	var out []EventWithMetadata
	for _, resp := range ms.Responses {
		if dav.StatusCode(resp.EffectiveStatus()) == 404 {
			continue
		}
		data, ok := resp.CalendarData()
		if !ok {
			continue
		}
		etag, _ := resp.ETag(c.parseOpts())
		events, err := c.codec.Parse(data)
		if err != nil {
			c.log.Warn().Str("href", resp.Href).Err(err).Msg("skipping unparseable calendar-data")
			continue
		}
		for _, e := range events {
			out = append(out, EventWithMetadata{Href: resp.Href, ETag: etag, Event: e})
		}
	}
	return out
}

// SyncCollection implements RFC 6578 sync-collection (spec §4.2). An empty
// syncToken performs an initial sync.
func (c *Client) SyncCollection(ctx context.Context, url string, syncToken string) DavResult[SyncResult] {
	doc := dav.BuildSyncCollection(syncToken, 0)

	ms, err := c.dav.Report(ctx, url, dav.Depth1, doc, c.parseOpts())
	if err != nil {
		var httpErr *dav.HTTPError
		if ok := asHTTPError(err, &httpErr); ok && (httpErr.Code == 403 || httpErr.Code == 410) {
			return Failure[SyncResult](ErrSyncTokenExpired)
		}
		return Failure[SyncResult](err)
	}

	result := SyncResult{NewSyncToken: ms.SyncToken}
	for _, resp := range ms.Responses {
		if resp.Href == "" || resp.Href == url {
			continue
		}
		status := resp.EffectiveStatus()
		code := dav.StatusCode(status)
		switch {
		case code == 404 || code == 410:
			result.Deleted = append(result.Deleted, resp.Href)
		default:
			if data, ok := resp.CalendarData(); ok {
				etag, _ := resp.ETag(c.parseOpts())
				events, err := c.codec.Parse(data)
				if err != nil {
					c.log.Warn().Str("href", resp.Href).Err(err).Msg("skipping unparseable calendar-data")
					continue
				}
				for _, e := range events {
					result.Added = append(result.Added, EventWithMetadata{Href: resp.Href, ETag: etag, Event: e})
				}
			} else if etag, ok := resp.ETag(c.parseOpts()); ok {
				result.AddedHrefs = append(result.AddedHrefs, EtagInfo{Href: resp.Href, ETag: etag})
			}
		}
	}
	return Success(result)
}

func asHTTPError(err error, target **dav.HTTPError) bool {
	he, ok := err.(*dav.HTTPError)
	if !ok {
		return false
	}
	*target = he
	return true
}

// CreateEvent implements spec §4.2's createEvent: PUT with
// If-None-Match: "*"; a 412 means the resource already exists.
func (c *Client) CreateEvent(ctx context.Context, calendarURL string, e Event) DavResult[ResourceHref] {
	href, err := buildEventUrl(calendarURL, e.UID)
	if err != nil {
		return Failure[ResourceHref](err)
	}
	body, err := c.codec.Generate(e)
	if err != nil {
		return Failure[ResourceHref](&dav.ParseError{Message: "generating calendar-data", Cause: err})
	}

	newHref, etag, err := c.dav.Put(ctx, href, []byte(body), "text/calendar; charset=utf-8", "", "*")
	if err != nil {
		if he, ok := err.(*dav.HTTPError); ok && he.Code == 412 {
			return Failure[ResourceHref](ErrConflict)
		}
		return Failure[ResourceHref](err)
	}
	c.maybeWaitForConsistency(ctx, newHref)
	return Success(ResourceHref{Href: newHref, ETag: etag})
}

// UpdateEvent implements spec §4.2's updateEvent: PUT with If-Match when an
// ETag baseline is known; a 412 means the ETag no longer matches (conflict).
func (c *Client) UpdateEvent(ctx context.Context, href string, e Event, etag string) DavResult[string] {
	body, err := c.codec.Generate(e)
	if err != nil {
		return Failure[string](&dav.ParseError{Message: "generating calendar-data", Cause: err})
	}

	ifMatch := dav.ConditionalMatch("")
	if etag != "" {
		ifMatch = dav.ConditionalMatch(`"` + etag + `"`)
	}

	newHref, newEtag, err := c.dav.Put(ctx, href, []byte(body), "text/calendar; charset=utf-8", ifMatch, "")
	if err != nil {
		if he, ok := err.(*dav.HTTPError); ok && he.Code == 412 {
			return Failure[string](ErrConflict)
		}
		return Failure[string](err)
	}
	c.maybeWaitForConsistency(ctx, newHref)
	return Success(newEtag)
}

// DeleteEvent implements spec §4.2's deleteEvent: idempotent on 404.
func (c *Client) DeleteEvent(ctx context.Context, href string, etag string) DavResult[struct{}] {
	ifMatch := dav.ConditionalMatch("")
	if etag != "" {
		ifMatch = dav.ConditionalMatch(`"` + etag + `"`)
	}
	if err := c.dav.Delete(ctx, href, ifMatch); err != nil {
		if he, ok := err.(*dav.HTTPError); ok && he.Code == 412 {
			return Failure[struct{}](ErrConflict)
		}
		return Failure[struct{}](err)
	}
	return Success(struct{}{})
}

// PutEvent handles a direct PUT with inline conflict resolution (spec's
// supplemented per-PUT conflict path — see SPEC_FULL.md). On a 412, if a
// ConflictResolver is set it is consulted; otherwise ErrPreconditionFailed
// is returned for manual handling.
func (c *Client) PutEvent(ctx context.Context, href string, e Event, opts PutOptions) DavResult[ResourceHref] {
	body, err := c.codec.Generate(e)
	if err != nil {
		return Failure[ResourceHref](&dav.ParseError{Message: "generating calendar-data", Cause: err})
	}

	newHref, etag, err := c.dav.Put(ctx, href, []byte(body), "text/calendar; charset=utf-8", opts.IfMatch, opts.IfNoneMatch)
	if err == nil {
		return Success(ResourceHref{Href: newHref, ETag: etag})
	}

	he, ok := err.(*dav.HTTPError)
	if !ok || he.Code != 412 {
		return Failure[ResourceHref](err)
	}
	if c.conflictResolver == nil {
		return Failure[ResourceHref](ErrPreconditionFailed)
	}
	return c.handleConflict(ctx, href, e)
}

func (c *Client) handleConflict(ctx context.Context, href string, local Event) DavResult[ResourceHref] {
	remote, err := c.fetchOne(ctx, href)
	if err != nil && !dav.IsNotFound(err) {
		return Failure[ResourceHref](fmt.Errorf("fetching remote version: %w", err))
	}

	localMeta := &EventWithMetadata{Href: href, Event: local}
	decision := c.conflictResolver.Resolve(localMeta, remote)

	switch decision {
	case UseLocal:
		return c.PutEvent(ctx, href, local, PutOptions{})
	case UseRemote:
		if remote == nil {
			return Failure[ResourceHref](ErrConflict)
		}
		return Success(ResourceHref{Href: remote.Href, ETag: remote.ETag})
	case Skip:
		return Failure[ResourceHref](ErrPreconditionFailed)
	case Merge:
		return Failure[ResourceHref](ErrMergeNotSupported)
	default:
		return Failure[ResourceHref](fmt.Errorf("caldav: unknown conflict decision: %v", decision))
	}
}

func (c *Client) fetchOne(ctx context.Context, href string) (*EventWithMetadata, error) {
	data, etag, _, err := c.dav.Get(ctx, href)
	if err != nil {
		return nil, err
	}
	events, err := c.codec.Parse(string(data))
	if err != nil || len(events) == 0 {
		return nil, &dav.ParseError{Message: "parsing remote calendar-data", Cause: err}
	}
	return &EventWithMetadata{Href: href, ETag: etag, Event: events[0]}, nil
}

// maybeWaitForConsistency implements spec §4.4's eventual-consistency read
// loop for quirk profiles that declare it; failing to observe the write is
// not treated as an error, the loop simply ends.
func (c *Client) maybeWaitForConsistency(ctx context.Context, href string) {
	if !c.quirk.EventualConsistency {
		return
	}
	delay := c.quirk.RetryBaseDelay
	for attempt := 0; attempt < c.quirk.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if _, _, _, err := c.dav.Get(ctx, href); err == nil {
			return
		}
		delay = time.Duration(float64(delay) * math.Max(c.quirk.RetryFactor, 1))
	}
}
