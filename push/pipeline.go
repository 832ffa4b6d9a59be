package push

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lnshvets/caldavsync/caldav"
)

// PushReport is the outcome of one Push call.
type PushReport struct {
	Pushed    int
	Conflicts []PendingOperation
	Failed    []FailedOp
}

// FailedOp pairs a pending operation with the error it last failed with.
type FailedOp struct {
	Op  PendingOperation
	Err error
}

// Pipeline is the Push Pipeline (spec §4.4): coalesces queued local
// mutations, then executes them serially against a caldav.Client, parking
// 412s in the conflict queue for explicit resolution.
type Pipeline struct {
	client *caldav.Client
	store  PendingStore
	log    zerolog.Logger

	maxRetries int
	seq        uint64
}

func NewPipeline(client *caldav.Client, store PendingStore, quirk caldav.QuirkProfile, logger zerolog.Logger) *Pipeline {
	retries := quirk.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &Pipeline{
		client:     client,
		store:      store,
		log:        logger.With().Str("component", "push.Pipeline").Logger(),
		maxRetries: retries,
	}
}

func (p *Pipeline) nextSeq() uint64 { return atomic.AddUint64(&p.seq, 1) }

// QueueCreate enqueues a create, coalescing against any pending operation
// already queued for e.UID (spec §4.4's coalescing table).
func (p *Pipeline) QueueCreate(calendarURL string, e caldav.Event) error {
	op := PendingOperation{ID: uuid.New(), Seq: p.nextSeq(), Kind: OpCreate, UID: e.UID, CalendarURL: calendarURL, Event: e}
	return p.enqueue(op)
}

// QueueUpdate enqueues an update against an existing resource (href/etag
// known from a prior sync).
func (p *Pipeline) QueueUpdate(calendarURL, href, etag string, e caldav.Event) error {
	op := PendingOperation{ID: uuid.New(), Seq: p.nextSeq(), Kind: OpUpdate, UID: e.UID, CalendarURL: calendarURL, Href: href, ETag: etag, Event: e}
	return p.enqueue(op)
}

// QueueDelete enqueues a deletion.
func (p *Pipeline) QueueDelete(calendarURL, uid, href, etag string) error {
	op := PendingOperation{ID: uuid.New(), Seq: p.nextSeq(), Kind: OpDelete, UID: uid, CalendarURL: calendarURL, Href: href, ETag: etag}
	return p.enqueue(op)
}

// enqueue coalesces op against any prior pending operation for the same
// uid, then appends (or drops) per the coalescing result.
func (p *Pipeline) enqueue(op PendingOperation) error {
	ops, err := p.store.List()
	if err != nil {
		return fmt.Errorf("push: listing pending ops: %w", err)
	}

	var prior PendingOperation
	hasPrior := false
	for _, existing := range ops {
		if existing.UID == op.UID {
			prior = existing
			hasPrior = true
			break
		}
	}

	merged, drop := coalesce(prior, hasPrior, op)
	if drop {
		return p.store.Remove(prior.ID)
	}
	if hasPrior {
		merged.ID = prior.ID
		return p.store.Replace(prior.ID, merged)
	}
	return p.store.Append(merged)
}

// Push flushes pending operations in queue order, processing serially to
// preserve causality with the server's ETag regime (spec §4.4, §5).
func (p *Pipeline) Push(ctx context.Context) PushReport {
	var report PushReport

	ops, err := p.store.List()
	if err != nil {
		p.log.Warn().Err(err).Msg("listing pending ops failed")
		return report
	}
	orderBySeq(ops)

	for _, op := range ops {
		select {
		case <-ctx.Done():
			return report
		default:
		}

		if err := p.execute(ctx, op); err != nil {
			if err == caldav.ErrConflict {
				report.Conflicts = append(report.Conflicts, op)
				continue
			}
			op.RetryCount++
			op.LastError = err.Error()
			if op.RetryCount >= p.maxRetries {
				report.Failed = append(report.Failed, FailedOp{Op: op, Err: err})
				_ = p.store.Drop(op.ID)
				continue
			}
			if replaceErr := p.store.Replace(op.ID, op); replaceErr != nil {
				p.log.Warn().Err(replaceErr).Msg("failed to persist retry count")
			}
			continue
		}

		if err := p.store.Remove(op.ID); err != nil {
			p.log.Warn().Err(err).Str("uid", op.UID).Msg("failed to remove completed op from store")
		}
		report.Pushed++
	}

	return report
}

func (p *Pipeline) execute(ctx context.Context, op PendingOperation) error {
	switch op.Kind {
	case OpCreate:
		result := p.client.CreateEvent(ctx, op.CalendarURL, op.Event)
		_, err := result.Unwrap()
		return err
	case OpUpdate:
		result := p.client.UpdateEvent(ctx, op.Href, op.Event, op.ETag)
		_, err := result.Unwrap()
		return err
	case OpDelete:
		result := p.client.DeleteEvent(ctx, op.Href, op.ETag)
		_, err := result.Unwrap()
		return err
	default:
		return fmt.Errorf("push: unknown op kind %v", op.Kind)
	}
}

func orderBySeq(ops []PendingOperation) {
	for i := 1; i < len(ops); i++ {
		for j := i; j > 0 && ops[j].Seq < ops[j-1].Seq; j-- {
			ops[j], ops[j-1] = ops[j-1], ops[j]
		}
	}
}

// ResolveConflict applies strategy to a parked operation (spec §4.4). It
// re-fetches the server's current version of the resource and, depending on
// the strategy, either hands that version to handler (ServerWins / the
// server side of NewestWins) or replays the local operation with the fresh
// ETag (LocalWins / the local side of NewestWins / Manual).
func (p *Pipeline) ResolveConflict(ctx context.Context, op PendingOperation, strategy ConflictStrategy, handler caldav.SyncResultHandler) error {
	remote, remoteErr := p.fetchRemote(ctx, op)

	switch strategy.name {
	case "server-wins":
		return p.takeServer(op, remote, remoteErr, handler)

	case "local-wins":
		return p.replayLocal(ctx, op, remote, remoteErr, op.Event)

	case "newest-wins":
		if remote == nil {
			// Server-side resource is gone; the local write has nothing to
			// lose against, so it proceeds.
			return p.replayLocal(ctx, op, remote, remoteErr, op.Event)
		}
		if newestWinner(op.Event, remote.Event) {
			return p.replayLocal(ctx, op, remote, remoteErr, op.Event)
		}
		// Tie or server newer: server wins (spec §9 Open Question (b)).
		return p.takeServer(op, remote, remoteErr, handler)

	case "manual":
		if remote == nil {
			return p.replayLocal(ctx, op, remote, remoteErr, op.Event)
		}
		merged := strategy.merger(op.Event, remote.Event)
		return p.replayLocal(ctx, op, remote, remoteErr, merged)

	default:
		return fmt.Errorf("push: unknown conflict strategy %q", strategy.name)
	}
}

func (p *Pipeline) fetchRemote(ctx context.Context, op PendingOperation) (*caldav.EventWithMetadata, error) {
	if op.Href == "" {
		return nil, nil
	}
	result := p.client.FetchEventsByHref(ctx, op.CalendarURL, []string{op.Href})
	events, err := result.Unwrap()
	if err != nil {
		if result.IsNotFound() {
			return nil, nil
		}
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// takeServer drops the local op and hands the server's version to handler.
func (p *Pipeline) takeServer(op PendingOperation, remote *caldav.EventWithMetadata, remoteErr error, handler caldav.SyncResultHandler) error {
	if remoteErr != nil {
		return remoteErr
	}
	if remote == nil {
		// The server has no version either (it was deleted there too).
		if handler != nil {
			_ = handler.DeleteEvent(op.UID)
		}
		return p.store.Remove(op.ID)
	}
	if handler != nil {
		if err := handler.UpsertEvent(*remote); err != nil {
			return err
		}
		_ = handler.RecordEtag(remote.Event.UID, remote.Href, remote.ETag)
	}
	return p.store.Remove(op.ID)
}

// replayLocal re-issues the local mutation against the server using the
// freshly observed ETag.
func (p *Pipeline) replayLocal(ctx context.Context, op PendingOperation, remote *caldav.EventWithMetadata, remoteErr error, event caldav.Event) error {
	if remoteErr != nil {
		return remoteErr
	}
	freshEtag := op.ETag
	href := op.Href
	if remote != nil {
		freshEtag = remote.ETag
		href = remote.Href
	}

	switch op.Kind {
	case OpDelete:
		result := p.client.DeleteEvent(ctx, href, freshEtag)
		if _, err := result.Unwrap(); err != nil {
			return err
		}
	case OpCreate:
		result := p.client.CreateEvent(ctx, op.CalendarURL, event)
		if _, err := result.Unwrap(); err != nil {
			return err
		}
	default:
		result := p.client.UpdateEvent(ctx, href, event, freshEtag)
		if _, err := result.Unwrap(); err != nil {
			return err
		}
	}
	return p.store.Remove(op.ID)
}
