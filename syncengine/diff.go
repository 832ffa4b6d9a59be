package syncengine

import "github.com/lnshvets/caldavsync/caldav"

// change is an internal upsert/delete instruction produced by diffing,
// applied during the Apply phase.
type change struct {
	upsert *caldav.EventWithMetadata
	delete string // uid, set only when upsert is nil
}

// diffFull replaces the local list with the server list wholesale (spec
// §4.3 "For a full sync, the server list replaces the local list").
func diffFull(server []caldav.EventWithMetadata, local []caldav.LocalEvent, state *caldav.SyncState) []change {
	serverUIDs := make(map[string]struct{}, len(server))
	var changes []change

	for _, ev := range server {
		serverUIDs[ev.Event.UID] = struct{}{}
		if storedEtag, ok := state.ETags[ev.Href]; !ok || storedEtag != ev.ETag {
			e := ev
			changes = append(changes, change{upsert: &e})
		}
	}

	for _, le := range local {
		if _, ok := serverUIDs[le.UID]; !ok {
			changes = append(changes, change{delete: le.UID})
		}
	}
	return changes
}

// diffIncremental applies the parsed SyncResult on top of the previous
// urlMap (spec §4.3 "For an incremental sync, added is applied as upserts;
// deleted hrefs are mapped through the previous urlMap").
func diffIncremental(result caldav.SyncResult, state *caldav.SyncState) []change {
	var changes []change
	for _, ev := range result.Added {
		e := ev
		changes = append(changes, change{upsert: &e})
	}
	for _, href := range result.Deleted {
		if uid, ok := uidForHref(state.URLMap, href); ok {
			changes = append(changes, change{delete: uid})
		}
	}
	return changes
}

// uidForHref reverse-scans a uid->href map (caldav.SyncState.URLMap's
// canonical direction, see caldav/types.go) for the uid owning href.
func uidForHref(urlMap map[string]string, href string) (string, bool) {
	for uid, h := range urlMap {
		if h == href {
			return uid, true
		}
	}
	return "", false
}
