package syncengine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lnshvets/caldavsync/caldav"
)

func TestDiffFull_NewAndChangedAreUpserts(t *testing.T) {
	state := caldav.NewSyncState("https://example.com/cal/")
	state.ETags["https://example.com/cal/a.ics"] = "etag-old"

	server := []caldav.EventWithMetadata{
		{Href: "https://example.com/cal/a.ics", ETag: "etag-new", Event: caldav.Event{UID: "a"}},
		{Href: "https://example.com/cal/b.ics", ETag: "etag-1", Event: caldav.Event{UID: "b"}},
	}

	changes := diffFull(server, nil, state)
	require.Len(t, changes, 2)
	for _, ch := range changes {
		require.NotNil(t, ch.upsert)
	}
}

func TestDiffFull_UnchangedIsSkipped(t *testing.T) {
	state := caldav.NewSyncState("https://example.com/cal/")
	state.ETags["https://example.com/cal/a.ics"] = "etag-1"

	server := []caldav.EventWithMetadata{
		{Href: "https://example.com/cal/a.ics", ETag: "etag-1", Event: caldav.Event{UID: "a"}},
	}

	changes := diffFull(server, nil, state)
	require.Empty(t, changes)
}

func TestDiffFull_LocalOnlyIsDeleted(t *testing.T) {
	state := caldav.NewSyncState("https://example.com/cal/")
	server := []caldav.EventWithMetadata{
		{Href: "https://example.com/cal/a.ics", ETag: "etag-1", Event: caldav.Event{UID: "a"}},
	}
	local := []caldav.LocalEvent{
		{UID: "a"},
		{UID: "stale"},
	}

	// "a" has no stored ETag yet, so it is upserted ahead of the delete.
	changes := diffFull(server, local, state)
	require.Len(t, changes, 2)
	require.NotNil(t, changes[0].upsert)
	require.Equal(t, "stale", changes[1].delete)
}

func TestDiffIncremental_AddedBecomesUpsert(t *testing.T) {
	state := caldav.NewSyncState("https://example.com/cal/")
	result := caldav.SyncResult{
		Added: []caldav.EventWithMetadata{
			{Href: "https://example.com/cal/a.ics", ETag: "etag-1", Event: caldav.Event{UID: "a"}},
		},
	}

	changes := diffIncremental(result, state)
	require.Len(t, changes, 1)
	require.NotNil(t, changes[0].upsert)
	require.Equal(t, "a", changes[0].upsert.Event.UID)
}

func TestDiffIncremental_DeletedResolvesThroughURLMap(t *testing.T) {
	state := caldav.NewSyncState("https://example.com/cal/")
	// URLMap is keyed uid -> href (caldav/types.go), not href -> uid.
	state.URLMap["a"] = "https://example.com/cal/a.ics"
	result := caldav.SyncResult{
		Deleted: []string{"https://example.com/cal/a.ics"},
	}

	changes := diffIncremental(result, state)
	require.Len(t, changes, 1)
	require.Equal(t, "a", changes[0].delete)
}

func TestDiffIncremental_UnresolvableDeleteIsDropped(t *testing.T) {
	state := caldav.NewSyncState("https://example.com/cal/")
	result := caldav.SyncResult{
		Deleted: []string{"https://example.com/cal/unknown.ics"},
	}

	changes := diffIncremental(result, state)
	require.Empty(t, changes)
}
