// Package dav implements the WebDAV Protocol Adapter: request construction
// and tolerant multistatus parsing for PROPFIND, REPORT, PUT, DELETE and
// MKCALENDAR. It has no knowledge of calendars or events — that belongs to
// the caldav package, which builds CalDAV-specific request bodies on top of
// the primitives here and applies a QuirkProfile to the parsing options.
package dav

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/beevik/etree"
)

// maxResponseBody bounds how much of a response body the adapter will read,
// per spec §4.1 ("Response bodies larger than 10 MiB are refused").
const maxResponseBody = 10 * 1024 * 1024

// Depth mirrors the WebDAV Depth header.
type Depth int

const (
	Depth0 Depth = iota
	Depth1
	DepthInfinity
)

func (d Depth) String() string {
	switch d {
	case Depth0:
		return "0"
	case Depth1:
		return "1"
	default:
		return "infinity"
	}
}

// ConditionalMatch is the (already-quoted, per RFC 7232) value of an
// If-Match/If-None-Match header, or "*".
type ConditionalMatch string

// IsSet reports whether a conditional header should be sent at all.
func (c ConditionalMatch) IsSet() bool { return c != "" }

// HTTPDoer is the transport contract from spec §6: the core never configures
// connection pooling, retries or redirects itself, it only requires
// something that can execute a built *http.Request.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the stateless low-level adapter described in spec §4.1. It holds
// nothing calendar-specific; CalDAV semantics live one layer up.
type Client struct {
	Doer    HTTPDoer
	BaseURL string
}

func NewClient(doer HTTPDoer, baseURL string) *Client {
	return &Client{Doer: doer, BaseURL: baseURL}
}

func (c *Client) resolve(path string) string {
	if len(path) > 0 && path[0] == '/' && len(c.BaseURL) > 0 {
		// Absolute path against the configured host; keep BaseURL's scheme/host.
		if i := schemeHostLen(c.BaseURL); i > 0 {
			return c.BaseURL[:i] + path
		}
	}
	return path
}

// schemeHostLen returns the length of "scheme://host" within a URL, or 0 if
// it can't be found (caller falls back to treating path as already-absolute).
func schemeHostLen(u string) int {
	i := indexAfterScheme(u)
	if i < 0 {
		return 0
	}
	for j := i; j < len(u); j++ {
		if u[j] == '/' {
			return j
		}
	}
	return len(u)
}

func indexAfterScheme(u string) int {
	for i := 0; i+2 < len(u); i++ {
		if u[i] == ':' && u[i+1] == '/' && u[i+2] == '/' {
			return i + 3
		}
	}
	return -1
}

// do executes a request, classifying every failure into the dav error
// taxonomy (§7) rather than letting it escape as a bare error.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.Doer.Do(req)
	if err != nil {
		return nil, &NetworkError{Cause: err}
	}
	return resp, nil
}

// readLimited reads a response body bounded by maxResponseBody, converting
// an oversized body into the dedicated HTTPError the spec calls for.
func readLimited(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	lr := io.LimitReader(resp.Body, maxResponseBody+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, &NetworkError{Cause: err}
	}
	if len(data) > maxResponseBody {
		return nil, &HTTPError{Code: 0, Message: "response too large"}
	}
	return data, nil
}

func newRequest(ctx context.Context, method, url string, body []byte, headers map[string]string) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, &ArgumentError{Message: err.Error()}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// Propfind issues a PROPFIND request at the given depth for the named
// properties and returns the parsed multistatus.
func (c *Client) Propfind(ctx context.Context, url string, depth Depth, names []PropName, opts ParseOptions) (*MultiStatus, error) {
	doc := buildPropfind(names)
	body, err := writeDoc(doc)
	if err != nil {
		return nil, err
	}
	req, err := newRequest(ctx, "PROPFIND", c.resolve(url), body, map[string]string{
		"Content-Type": "application/xml; charset=utf-8",
		"Depth":        depth.String(),
	})
	if err != nil {
		return nil, err
	}
	return c.doMultiStatus(req, opts)
}

// Report issues a REPORT request (calendar-query, calendar-multiget or
// sync-collection) with a pre-built XML document and returns the parsed
// multistatus.
func (c *Client) Report(ctx context.Context, url string, depth Depth, doc *etree.Document, opts ParseOptions) (*MultiStatus, error) {
	body, err := writeDoc(doc)
	if err != nil {
		return nil, err
	}
	req, err := newRequest(ctx, "REPORT", c.resolve(url), body, map[string]string{
		"Content-Type": "application/xml; charset=utf-8",
		"Depth":        depth.String(),
	})
	if err != nil {
		return nil, err
	}
	return c.doMultiStatus(req, opts)
}

// Put uploads body to url with optional ETag preconditions and returns the
// new ETag (if the server sent one) alongside the final href.
func (c *Client) Put(ctx context.Context, url string, body []byte, contentType string, ifMatch, ifNoneMatch ConditionalMatch) (string, string, error) {
	headers := map[string]string{"Content-Type": contentType}
	if ifMatch.IsSet() {
		headers["If-Match"] = string(ifMatch)
	}
	if ifNoneMatch.IsSet() {
		headers["If-None-Match"] = string(ifNoneMatch)
	}
	req, err := newRequest(ctx, http.MethodPut, c.resolve(url), body, headers)
	if err != nil {
		return "", "", err
	}
	resp, err := c.do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPreconditionFailed {
		return "", "", &HTTPError{Code: resp.StatusCode, Message: "precondition failed"}
	}
	if resp.StatusCode/100 != 2 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return "", "", &HTTPError{Code: resp.StatusCode, Message: "put failed", Body: data}
	}

	newHref := url
	if loc := resp.Header.Get("Location"); loc != "" {
		newHref = loc
	}
	return newHref, unquoteETag(resp.Header.Get("ETag")), nil
}

// Delete removes the resource at url, treating 404 as an idempotent success
// per spec §4.2.
func (c *Client) Delete(ctx context.Context, url string, ifMatch ConditionalMatch) error {
	headers := map[string]string{}
	if ifMatch.IsSet() {
		headers["If-Match"] = string(ifMatch)
	}
	req, err := newRequest(ctx, http.MethodDelete, c.resolve(url), nil, headers)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode == http.StatusPreconditionFailed {
		return &HTTPError{Code: resp.StatusCode, Message: "precondition failed"}
	}
	if resp.StatusCode/100 != 2 {
		return &HTTPError{Code: resp.StatusCode, Message: "delete failed"}
	}
	return nil
}

// Mkcalendar creates a calendar collection with the given displayname.
func (c *Client) Mkcalendar(ctx context.Context, url, displayName string) error {
	doc := buildMkcalendar(displayName)
	body, err := writeDoc(doc)
	if err != nil {
		return err
	}
	req, err := newRequest(ctx, "MKCALENDAR", c.resolve(url), body, map[string]string{
		"Content-Type": "application/xml; charset=utf-8",
	})
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &HTTPError{Code: resp.StatusCode, Message: "mkcalendar failed"}
	}
	return nil
}

// Get fetches the raw body at url along with its ETag and Content-Type.
func (c *Client) Get(ctx context.Context, url string) ([]byte, string, string, error) {
	req, err := newRequest(ctx, http.MethodGet, c.resolve(url), nil, nil)
	if err != nil {
		return nil, "", "", err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, "", "", err
	}
	if resp.StatusCode/100 != 2 {
		resp.Body.Close()
		return nil, "", "", &HTTPError{Code: resp.StatusCode, Message: "get failed"}
	}
	data, err := readLimited(resp)
	if err != nil {
		return nil, "", "", err
	}
	return data, unquoteETag(resp.Header.Get("ETag")), resp.Header.Get("Content-Type"), nil
}

func (c *Client) doMultiStatus(req *http.Request, opts ParseOptions) (*MultiStatus, error) {
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusMultiStatus && resp.StatusCode/100 != 2 {
		data, _ := readLimited(resp)
		return nil, &HTTPError{Code: resp.StatusCode, Message: "unexpected status", Body: data}
	}
	data, err := readLimited(resp)
	if err != nil {
		return nil, err
	}
	return ParseMultiStatus(data, opts)
}

func writeDoc(doc *etree.Document) ([]byte, error) {
	s, err := doc.WriteToString()
	if err != nil {
		return nil, &ArgumentError{Message: fmt.Sprintf("encoding request body: %v", err)}
	}
	return []byte(s), nil
}

func unquoteETag(etag string) string {
	if len(etag) >= 2 && etag[0] == '"' && etag[len(etag)-1] == '"' {
		return etag[1 : len(etag)-1]
	}
	return etag
}
