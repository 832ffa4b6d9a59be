package caldav

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// stubCodec is a minimal Codec used only to exercise Client wiring in these
// tests without pulling in a real iCalendar parser; icalcodec.Codec (over
// emersion/go-ical) is tested separately in package icalcodec.
type stubCodec struct{}

func (stubCodec) Parse(text string) ([]Event, error) {
	uid := extractBetween(text, "UID:", "\n")
	if uid == "" {
		return nil, fmt.Errorf("stubCodec: no UID found")
	}
	return []Event{{UID: strings.TrimSpace(uid), Summary: extractBetween(text, "SUMMARY:", "\n")}}, nil
}

func (stubCodec) Generate(e Event) (string, error) {
	return fmt.Sprintf("BEGIN:VCALENDAR\nBEGIN:VEVENT\nUID:%s\nSUMMARY:%s\nEND:VEVENT\nEND:VCALENDAR\n", e.UID, e.Summary), nil
}

func extractBetween(s, prefix, suffix string) string {
	i := strings.Index(s, prefix)
	if i < 0 {
		return ""
	}
	rest := s[i+len(prefix):]
	j := strings.Index(rest, suffix)
	if j < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:j])
}

type mockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

type mockCalDAVServer struct {
	*httptest.Server
	mu        sync.RWMutex
	responses map[string]mockResponse
}

func newMockCalDAVServer() *mockCalDAVServer {
	m := &mockCalDAVServer{responses: make(map[string]mockResponse)}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handler))
	return m
}

func (m *mockCalDAVServer) handler(w http.ResponseWriter, r *http.Request) {
	key := r.Method + ":" + r.URL.Path
	m.mu.RLock()
	resp, ok := m.responses[key]
	m.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	w.Write([]byte(resp.Body))
}

func (m *mockCalDAVServer) SetResponse(method, path string, resp mockResponse) {
	m.mu.Lock()
	m.responses[method+":"+path] = resp
	m.mu.Unlock()
}

const syncCollectionFixture = `<?xml version="1.0" encoding="UTF-8"?>
<multistatus xmlns="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <response>
    <href>/calendars/user/events/test-event.ics</href>
    <propstat>
      <prop>
        <getetag>"etag-1"</getetag>
        <C:calendar-data>BEGIN:VCALENDAR
BEGIN:VEVENT
UID:test-event
SUMMARY:Test Event
END:VEVENT
END:VCALENDAR
</C:calendar-data>
      </prop>
      <status>HTTP/1.1 200 OK</status>
    </propstat>
  </response>
  <sync-token>https://example.com/sync/1</sync-token>
</multistatus>`

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	return NewClient(http.DefaultClient, serverURL, RFCStrictProfile, stubCodec{}, zerolog.Nop())
}

func TestClient_SyncCollection_WithMockServer(t *testing.T) {
	mock := newMockCalDAVServer()
	defer mock.Close()

	mock.SetResponse("REPORT", "/calendars/user/events/", mockResponse{
		StatusCode: 207,
		Body:       syncCollectionFixture,
		Headers:    map[string]string{"Content-Type": "application/xml; charset=utf-8"},
	})

	client := newTestClient(t, mock.URL)
	result := client.SyncCollection(context.Background(), mock.URL+"/calendars/user/events/", "")
	if !result.Ok() {
		t.Fatalf("SyncCollection failed: %v", result.Err)
	}
	if result.Value.NewSyncToken == "" {
		t.Error("expected non-empty sync token")
	}
	if len(result.Value.Added) != 1 {
		t.Fatalf("expected 1 added event, got %d", len(result.Value.Added))
	}
	if result.Value.Added[0].Event.UID != "test-event" {
		t.Errorf("expected uid test-event, got %q", result.Value.Added[0].Event.UID)
	}
}

func TestClient_SyncCollection_TokenExpired(t *testing.T) {
	mock := newMockCalDAVServer()
	defer mock.Close()

	mock.SetResponse("REPORT", "/calendars/user/events/", mockResponse{StatusCode: 410})

	client := newTestClient(t, mock.URL)
	result := client.SyncCollection(context.Background(), mock.URL+"/calendars/user/events/", "expired-token")
	if result.Ok() {
		t.Fatal("expected failure for expired sync token")
	}
	if result.Err != ErrSyncTokenExpired {
		t.Errorf("expected ErrSyncTokenExpired, got %v", result.Err)
	}
}

func TestClient_CreateEvent_WithMockServer(t *testing.T) {
	mock := newMockCalDAVServer()
	defer mock.Close()

	mock.SetResponse("PUT", "/calendars/user/events/test-uid-123.ics", mockResponse{
		StatusCode: 201,
		Headers:    map[string]string{"ETag": `"test-etag-123"`},
	})

	client := newTestClient(t, mock.URL)
	result := client.CreateEvent(context.Background(), mock.URL+"/calendars/user/events/", Event{UID: "test-uid-123", Summary: "Hi"})
	if !result.Ok() {
		t.Fatalf("CreateEvent failed: %v", result.Err)
	}
	if result.Value.ETag == "" {
		t.Error("expected non-empty ETag")
	}
}

func TestClient_UpdateEvent_PreconditionFailed(t *testing.T) {
	mock := newMockCalDAVServer()
	defer mock.Close()

	mock.SetResponse("PUT", "/calendars/user/events/test.ics", mockResponse{StatusCode: 412})

	client := newTestClient(t, mock.URL)
	result := client.UpdateEvent(context.Background(), mock.URL+"/calendars/user/events/test.ics", Event{UID: "test"}, "old-etag")
	if result.Ok() {
		t.Fatal("expected error")
	}
	if result.Err != ErrConflict {
		t.Errorf("expected ErrConflict, got %v", result.Err)
	}
}

func TestClient_DeleteEvent_WithMockServer(t *testing.T) {
	mock := newMockCalDAVServer()
	defer mock.Close()

	mock.SetResponse("DELETE", "/calendars/user/events/test.ics", mockResponse{StatusCode: 204})

	client := newTestClient(t, mock.URL)
	result := client.DeleteEvent(context.Background(), mock.URL+"/calendars/user/events/test.ics", "")
	if !result.Ok() {
		t.Fatalf("DeleteEvent failed: %v", result.Err)
	}
}

func TestClient_DeleteEvent_NotFoundIsIdempotent(t *testing.T) {
	mock := newMockCalDAVServer()
	defer mock.Close()
	// No response registered -> handler returns 404.

	client := newTestClient(t, mock.URL)
	result := client.DeleteEvent(context.Background(), mock.URL+"/calendars/user/events/missing.ics", "")
	if !result.Ok() {
		t.Fatalf("expected idempotent success on 404, got: %v", result.Err)
	}
}

func TestClient_FetchEventsByHref_EmptyIsNoOp(t *testing.T) {
	mock := newMockCalDAVServer()
	defer mock.Close()

	client := newTestClient(t, mock.URL)
	result := client.FetchEventsByHref(context.Background(), mock.URL+"/calendars/user/events/", nil)
	if !result.Ok() {
		t.Fatalf("expected success, got %v", result.Err)
	}
	if len(result.Value) != 0 {
		t.Error("expected no events for empty href list")
	}
}
