package push

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lnshvets/caldavsync/caldav"
)

func TestCoalesce_Table(t *testing.T) {
	tests := []struct {
		name       string
		prior      PendingOperation
		hasPrior   bool
		next       PendingOperation
		wantDrop   bool
		wantKind   OpKind
		wantResult string
	}{
		{
			name:     "no prior op is as-submitted",
			hasPrior: false,
			next:     PendingOperation{Kind: OpCreate, Event: caldav.Event{Summary: "new"}},
			wantKind: OpCreate,
		},
		{
			name:     "create then update becomes create of the latest",
			prior:    PendingOperation{Kind: OpCreate, Event: caldav.Event{Summary: "v1"}},
			hasPrior: true,
			next:     PendingOperation{Kind: OpUpdate, Event: caldav.Event{Summary: "v2"}},
			wantKind: OpCreate,
		},
		{
			name:     "create then delete drops both",
			prior:    PendingOperation{Kind: OpCreate},
			hasPrior: true,
			next:     PendingOperation{Kind: OpDelete},
			wantDrop: true,
		},
		{
			name:     "update then update keeps the latest",
			prior:    PendingOperation{Kind: OpUpdate, Event: caldav.Event{Summary: "v1"}},
			hasPrior: true,
			next:     PendingOperation{Kind: OpUpdate, Event: caldav.Event{Summary: "v2"}},
			wantKind: OpUpdate,
		},
		{
			name:     "update then delete becomes delete",
			prior:    PendingOperation{Kind: OpUpdate, Event: caldav.Event{Summary: "v1"}},
			hasPrior: true,
			next:     PendingOperation{Kind: OpDelete},
			wantKind: OpDelete,
		},
		{
			name:     "delete then create becomes update keeping href",
			prior:    PendingOperation{Kind: OpDelete, Href: "/cal/a.ics"},
			hasPrior: true,
			next:     PendingOperation{Kind: OpCreate, Event: caldav.Event{Summary: "reborn"}},
			wantKind: OpUpdate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, drop := coalesce(tt.prior, tt.hasPrior, tt.next)
			if tt.wantDrop {
				require.True(t, drop)
				return
			}
			require.False(t, drop)
			require.Equal(t, tt.wantKind, result.Kind)
		})
	}
}

func TestCoalesce_DeleteThenCreateKeepsHref(t *testing.T) {
	prior := PendingOperation{Kind: OpDelete, Href: "/cal/a.ics"}
	next := PendingOperation{Kind: OpCreate, Event: caldav.Event{UID: "a", Summary: "reborn"}}

	result, drop := coalesce(prior, true, next)
	require.False(t, drop)
	require.Equal(t, "/cal/a.ics", result.Href)
	require.Equal(t, "reborn", result.Event.Summary)
}

func TestCoalesce_IsIdempotentOnceApplied(t *testing.T) {
	prior := PendingOperation{Kind: OpUpdate, Event: caldav.Event{Summary: "v1"}}
	next := PendingOperation{Kind: OpUpdate, Event: caldav.Event{Summary: "v2"}}

	once, _ := coalesce(prior, true, next)
	// Re-coalescing the already-merged op against the same submission is a
	// no-op in effect: the store holds at most one operation per uid, so a
	// second coalesce call would only occur with a new submission.
	twice, _ := coalesce(once, true, next)
	require.Equal(t, once.Kind, twice.Kind)
	require.Equal(t, once.Event.Summary, twice.Event.Summary)
}
