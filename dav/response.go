package dav

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// ParseOptions carries the quirk-profile knobs that affect response parsing
// (spec §4.1, §9): ETag unquoting varies by provider, so the dav package
// takes it as plain data rather than hard-coding RFC-strict behavior. CDATA
// unwrapping and whitespace normalization are not options; they always
// apply.
type ParseOptions struct {
	// UnquoteETags strips surrounding double quotes from getetag values.
	// iCloud is observed to double-quote; RFC servers already return a
	// bare quoted ETag that net/http itself would otherwise leave intact.
	UnquoteETags bool
}

// PropStat is one <propstat> block: a status line and the properties it
// covers.
type PropStat struct {
	Status string
	Props  map[string]*etree.Element // keyed by local (unprefixed) tag name
}

// Response is one <response> element of a multistatus body.
type Response struct {
	Href      string
	Status    string // top-level <response><status>, if present (no propstat)
	PropStats []PropStat
}

// MultiStatus is the parsed result of any PROPFIND/REPORT call. SyncToken is
// populated only for sync-collection reports.
type MultiStatus struct {
	Responses []Response
	SyncToken string
}

// StatusCode extracts the numeric HTTP status from a "HTTP/1.1 200 OK"-style
// status line. Returns 0 if it cannot be parsed.
func StatusCode(status string) int {
	parts := strings.Fields(status)
	for _, p := range parts {
		if n, err := strconv.Atoi(p); err == nil && n >= 100 && n < 600 {
			return n
		}
	}
	return 0
}

// EffectiveStatus returns the best-available status for a response: the
// top-level status if there were no propstats, otherwise the first
// propstat's status (callers needing a specific property's status should
// use PropStats directly).
func (r Response) EffectiveStatus() string {
	if r.Status != "" {
		return r.Status
	}
	for _, ps := range r.PropStats {
		return ps.Status
	}
	return ""
}

// prop finds the named property across all propstats that reported 2xx,
// tolerant of namespace prefix (matches on local tag name only, per spec
// §4.1's "accepts both DAV:-prefixed and default-namespace-prefixed
// elements").
func (r Response) prop(local string) *etree.Element {
	for _, ps := range r.PropStats {
		if StatusCode(ps.Status)/100 != 2 && ps.Status != "" {
			continue
		}
		if el, ok := ps.Props[local]; ok {
			return el
		}
	}
	return nil
}

// Text returns the normalized text content of a named property (namespace
// ignored), with surrounding whitespace collapsed per spec §4.1.
func (r Response) Text(name PropName) (string, bool) {
	el := r.prop(name.Local)
	if el == nil {
		return "", false
	}
	return normalizeText(elementText(el)), true
}

func (r Response) ETag(opts ParseOptions) (string, bool) {
	v, ok := r.Text(PropGetETag)
	if !ok {
		return "", false
	}
	if opts.UnquoteETags {
		v = unquoteETag(v)
	}
	return v, true
}

// CalendarData returns the raw (non-whitespace-normalized) calendar-data
// text, CDATA already unwrapped by the XML parser itself.
func (r Response) CalendarData() (string, bool) {
	el := r.prop(PropCalendarData.Local)
	if el == nil {
		return "", false
	}
	return elementText(el), true
}

// ResourceTypes returns the local names of every child of <resourcetype>,
// e.g. "collection", "calendar".
func (r Response) ResourceTypes() []string {
	el := r.prop(PropResourceType.Local)
	if el == nil {
		return nil
	}
	var out []string
	for _, c := range el.ChildElements() {
		out = append(out, c.Tag)
	}
	return out
}

// IsCalendar reports whether resourcetype includes {caldav}calendar.
func (r Response) IsCalendar() bool {
	for _, t := range r.ResourceTypes() {
		if t == "calendar" {
			return true
		}
	}
	return false
}

// elementText concatenates the text of el and all its descendants, so a
// property wrapping a nested <href> yields the href's text.
func elementText(el *etree.Element) string {
	var b strings.Builder
	for _, ch := range el.Child {
		switch c := ch.(type) {
		case *etree.CharData:
			b.WriteString(c.Data)
		case *etree.Element:
			b.WriteString(elementText(c))
		}
	}
	return b.String()
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ParseMultiStatus parses a <multistatus> document body, tolerant of
// namespace prefixes (matches local tag names only) per spec §4.1.
func ParseMultiStatus(body []byte, opts ParseOptions) (*MultiStatus, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, &ParseError{Message: "invalid XML body", Cause: err}
	}
	root := doc.Root()
	if root == nil || localName(root.Tag) != "multistatus" {
		return nil, &ParseError{Message: "missing multistatus root"}
	}

	ms := &MultiStatus{}
	if st := findChildLocal(root, "sync-token"); st != nil {
		ms.SyncToken = normalizeText(elementText(st))
	}

	seen := make(map[string]int) // href -> index into ms.Responses, for last-occurrence de-dup
	for _, respEl := range findChildrenLocal(root, "response") {
		r := parseResponse(respEl)
		if idx, ok := seen[r.Href]; ok {
			ms.Responses[idx] = r
			continue
		}
		seen[r.Href] = len(ms.Responses)
		ms.Responses = append(ms.Responses, r)
	}
	return ms, nil
}

func parseResponse(el *etree.Element) Response {
	r := Response{}
	if h := findChildLocal(el, "href"); h != nil {
		r.Href = normalizeText(elementText(h))
	}
	if s := findChildLocal(el, "status"); s != nil {
		r.Status = normalizeText(elementText(s))
	}
	for _, psEl := range findChildrenLocal(el, "propstat") {
		ps := PropStat{Props: map[string]*etree.Element{}}
		if s := findChildLocal(psEl, "status"); s != nil {
			ps.Status = normalizeText(elementText(s))
		}
		if propEl := findChildLocal(psEl, "prop"); propEl != nil {
			for _, p := range propEl.ChildElements() {
				ps.Props[localName(p.Tag)] = p
			}
		}
		r.PropStats = append(r.PropStats, ps)
	}
	return r
}

// localName strips any "ns:" prefix etree may have left attached to Tag
// when a document uses a prefixed (non-default) namespace declaration.
func localName(tag string) string {
	if i := strings.IndexByte(tag, ':'); i >= 0 {
		return tag[i+1:]
	}
	return tag
}

func findChildLocal(el *etree.Element, local string) *etree.Element {
	for _, c := range el.ChildElements() {
		if localName(c.Tag) == local {
			return c
		}
	}
	return nil
}

func findChildrenLocal(el *etree.Element, local string) []*etree.Element {
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if localName(c.Tag) == local {
			out = append(out, c)
		}
	}
	return out
}
