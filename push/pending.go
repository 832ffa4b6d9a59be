// Package push implements the Push Pipeline (spec §4.4): coalescing of
// pending local operations, serial execution against the CalDAV Client with
// ETag preconditions, and conflict resolution on 412.
package push

import (
	"time"

	"github.com/google/uuid"

	"github.com/lnshvets/caldavsync/caldav"
)

// OpKind tags a PendingOperation's variant.
type OpKind int

const (
	OpCreate OpKind = iota
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// PendingOperation is a queued local mutation awaiting push (spec §4.4). ID
// is independent of Seq: ID is a stable key for the store, Seq is the
// enqueue-order tiebreaker that execution and coalescing both respect.
type PendingOperation struct {
	ID   uuid.UUID
	Seq  uint64
	Kind OpKind

	UID         string
	CalendarURL string
	Href        string
	ETag        string
	Event       caldav.Event
	RetryCount  int
	LastError   string
	CreatedAt   time.Time
}

// PendingStore is the durable pending-operation log (spec §6): append, list,
// remove, replace, drop. Implemented by the host application.
type PendingStore interface {
	Append(op PendingOperation) error
	List() ([]PendingOperation, error)
	Remove(opID uuid.UUID) error
	Replace(opID uuid.UUID, op PendingOperation) error
	Drop(opID uuid.UUID) error
}
