package syncengine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lnshvets/caldavsync/caldav"
	"github.com/lnshvets/caldavsync/dav"
)

// Engine is the Sync Engine (spec §4.3): one entry point,
// syncWithIncremental, composing the CalDAV Client's operations into the
// Initial/Resume/Forced -> FullFetch/IncrementalReport -> Multiget -> Diff
// -> Apply -> Finalize state machine.
type Engine struct {
	client *caldav.Client
	log    zerolog.Logger

	failures *FailureTracker
}

func NewEngine(client *caldav.Client, logger zerolog.Logger) *Engine {
	return &Engine{
		client:   client,
		log:      logger.With().Str("component", "syncengine.Engine").Logger(),
		failures: NewFailureTracker(3),
	}
}

// Failures exposes the engine's FailureTracker so a host can clear a
// quarantine (spec §4.3's "external admin action" path).
func (e *Engine) Failures() *FailureTracker { return e.failures }

// SyncWithIncremental is the engine's single entry point (spec §4.3).
// previous may be nil, which is equivalent to a fresh caldav.NewSyncState.
func (e *Engine) SyncWithIncremental(
	ctx context.Context,
	calendarURL string,
	previous *caldav.SyncState,
	localProvider caldav.LocalEventProvider,
	handler caldav.SyncResultHandler,
	forceFullSync bool,
) (*caldav.SyncState, *SyncReport) {
	log := e.log.With().Str("calendar", calendarURL).Logger()
	report := &SyncReport{}

	if previous == nil {
		previous = caldav.NewSyncState(calendarURL)
	}

	select {
	case <-ctx.Done():
		report.Cancelled = true
		return previous, report
	default:
	}

	var server []caldav.EventWithMetadata
	var incResult *caldav.SyncResult
	usedFullSync := forceFullSync || previous.SyncToken == ""

	if !usedFullSync {
		result := e.client.SyncCollection(ctx, calendarURL, previous.SyncToken)
		if result.Ok() {
			r := result.Value
			if len(r.AddedHrefs) > 0 {
				mg := e.fetchByHrefWithRetry(ctx, calendarURL, r.AddedHrefs, report)
				r.Added = append(r.Added, mg...)
			}
			incResult = &r
		} else if result.Err == caldav.ErrSyncTokenExpired {
			log.Info().Msg("sync token expired, falling back to full sync")
			usedFullSync = true
		} else if isParseError(result.Err) {
			log.Warn().Err(result.Err).Msg("sync-collection report failed to parse, retaining previous token")
			report.HasErrors = true
			return previous, report
		} else {
			log.Warn().Err(result.Err).Msg("sync-collection failed")
			report.HasErrors = true
			return previous, report
		}
	}

	select {
	case <-ctx.Done():
		report.Cancelled = true
		return previous, report
	default:
	}

	if usedFullSync {
		report.UsedFullSync = true
		fetchResult := e.client.FetchEvents(ctx, calendarURL, caldav.QueryOptions{})
		if !fetchResult.Ok() {
			log.Warn().Err(fetchResult.Err).Msg("full fetch failed")
			report.HasErrors = true
			return previous, report
		}
		server = fetchResult.Value
	}

	var local []caldav.LocalEvent
	if localProvider != nil {
		var err error
		local, err = localProvider.GetLocalEvents(calendarURL)
		if err != nil {
			log.Warn().Err(err).Msg("local provider read failed")
			report.HasErrors = true
			return previous, report
		}
	}

	next := cloneState(previous)
	var changes []change
	if usedFullSync {
		changes = diffFull(server, local, previous)
		for _, ev := range server {
			next.ETags[ev.Href] = ev.ETag
			next.URLMap[ev.Event.UID] = ev.Href
		}
		liveHrefs := make(map[string]struct{}, len(server))
		for _, ev := range server {
			liveHrefs[ev.Href] = struct{}{}
		}
		for href := range previous.ETags {
			if _, ok := liveHrefs[href]; !ok {
				delete(next.ETags, href)
			}
		}
		for uid, href := range previous.URLMap {
			if _, ok := liveHrefs[href]; !ok {
				delete(next.URLMap, uid)
			}
		}
	} else {
		changes = diffIncremental(*incResult, previous)
		for _, ev := range incResult.Added {
			next.ETags[ev.Href] = ev.ETag
			next.URLMap[ev.Event.UID] = ev.Href
		}
		for _, href := range incResult.Deleted {
			delete(next.ETags, href)
		}
	}

	for _, ch := range changes {
		select {
		case <-ctx.Done():
			report.Cancelled = true
			return previous, report
		default:
		}
		if handler == nil {
			continue
		}
		if ch.upsert != nil {
			if err := handler.UpsertEvent(*ch.upsert); err != nil {
				log.Warn().Str("href", ch.upsert.Href).Err(err).Msg("upsert handler failed")
				report.HasErrors = true
				continue
			}
			if err := handler.RecordEtag(ch.upsert.Event.UID, ch.upsert.Href, ch.upsert.ETag); err != nil {
				log.Warn().Err(err).Msg("record-etag handler failed")
				report.HasErrors = true
			}
			if _, known := previous.ETags[ch.upsert.Href]; known {
				report.Updated++
			} else {
				report.Created++
			}
		} else {
			if err := handler.DeleteEvent(ch.delete); err != nil {
				log.Warn().Str("uid", ch.delete).Err(err).Msg("delete handler failed")
				report.HasErrors = true
				continue
			}
			delete(next.URLMap, ch.delete)
			report.Deleted++
		}
	}

	// Sync-token safety (spec §4.3): only persist the advance if Apply
	// reported no unrecoverable errors.
	if report.HasErrors {
		return previous, report
	}

	ctagResult := e.client.GetCtag(ctx, calendarURL)
	if ctagResult.Ok() {
		next.CTag = ctagResult.Value.OrElse("")
	}
	if usedFullSync {
		tokenResult := e.client.GetSyncToken(ctx, calendarURL)
		if tokenResult.Ok() {
			next.SyncToken = tokenResult.Value.OrElse("")
		}
	} else {
		next.SyncToken = incResult.NewSyncToken
	}
	next.LastSync = time.Now()

	return next, report
}

// fetchByHrefWithRetry isolates a whole-batch ParseError from a multiget by
// retrying each href individually (spec §4.3 "Parse-failure handling").
func (e *Engine) fetchByHrefWithRetry(ctx context.Context, calendarURL string, infos []caldav.EtagInfo, report *SyncReport) []caldav.EventWithMetadata {
	hrefs := make([]string, len(infos))
	for i, h := range infos {
		hrefs[i] = h.Href
	}
	batch := e.client.FetchEventsByHref(ctx, calendarURL, hrefs)
	if batch.Ok() {
		return batch.Value
	}
	if !isParseError(batch.Err) {
		report.HasErrors = true
		return nil
	}

	var survivors []caldav.EventWithMetadata
	for _, info := range infos {
		href := info.Href
		// An ETag that changed since the last failure lifts the quarantine.
		e.failures.ObserveETag(href, info.ETag)
		if e.failures.IsQuarantined(href) {
			report.ParseFailures = append(report.ParseFailures, href)
			continue
		}
		single := e.client.FetchEventsByHref(ctx, calendarURL, []string{href})
		if single.Ok() && len(single.Value) > 0 {
			survivors = append(survivors, single.Value...)
			e.failures.ObserveETag(href, single.Value[0].ETag)
			continue
		}
		e.failures.RecordFailure(href, info.ETag)
		report.ParseFailures = append(report.ParseFailures, href)
	}
	return survivors
}

func isParseError(err error) bool {
	_, ok := err.(*dav.ParseError)
	return ok
}

func cloneState(s *caldav.SyncState) *caldav.SyncState {
	next := &caldav.SyncState{
		CalendarURL: s.CalendarURL,
		CTag:        s.CTag,
		SyncToken:   s.SyncToken,
		ETags:       make(map[string]string, len(s.ETags)),
		URLMap:      make(map[string]string, len(s.URLMap)),
		LastSync:    s.LastSync,
	}
	for k, v := range s.ETags {
		next.ETags[k] = v
	}
	for k, v := range s.URLMap {
		next.URLMap[k] = v
	}
	return next
}
