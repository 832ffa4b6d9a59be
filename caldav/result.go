// Package caldav implements the CalDAV Client (spec §4.2): discovery,
// property reads, calendar-query/multiget, RFC 6578 sync-collection, and
// event CRUD, layered on top of the protocol primitives in package dav.
package caldav

import "github.com/lnshvets/caldavsync/dav"

// DavResult is the tagged outcome every client operation returns: exactly
// one of a value or one of the three error kinds named in spec §7
// (HttpError, NetworkError, ParseError) plus ArgumentError for synchronous
// validation failures. Go already expresses "value or error" natively, so
// DavResult wraps a plain (T, error) pair rather than reinventing sum types;
// callers that want to switch on the error kind use errors.As against
// *dav.HTTPError / *dav.NetworkError / *dav.ParseError / *dav.ArgumentError.
type DavResult[T any] struct {
	Value T
	Err   error
}

func Success[T any](v T) DavResult[T] { return DavResult[T]{Value: v} }

func Failure[T any](err error) DavResult[T] {
	var zero T
	return DavResult[T]{Value: zero, Err: err}
}

// Ok reports whether the result carries a value.
func (r DavResult[T]) Ok() bool { return r.Err == nil }

// Unwrap returns (value, error) for callers that prefer idiomatic Go
// multi-return over inspecting the struct directly.
func (r DavResult[T]) Unwrap() (T, error) { return r.Value, r.Err }

// IsNotFound reports whether the result failed with a 404 HttpError.
func (r DavResult[T]) IsNotFound() bool { return dav.IsNotFound(r.Err) }
