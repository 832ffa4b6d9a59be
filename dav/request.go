package dav

import (
	"fmt"

	"github.com/beevik/etree"
)

// newRootDoc creates a document whose root element carries DAV: as the
// default namespace, per spec §4.1 ("emitted as UTF-8 XML with a single
// default namespace plus explicit prefixes for caldav and calendarserver").
func newRootDoc(rootLocal string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(rootLocal)
	root.CreateAttr("xmlns", NSDav)
	root.CreateAttr("xmlns:C", NSCalDAV)
	root.CreateAttr("xmlns:CS", NSCalendarServer)
	return doc, root
}

// addProp appends a named, empty property element under parent, using the
// conventional prefix for its namespace.
func addProp(parent *etree.Element, name PropName) *etree.Element {
	tag := name.Local
	if p := qualifiedPrefix(name.Namespace); p != "" {
		tag = p + ":" + name.Local
	}
	return parent.CreateElement(tag)
}

func buildPropfind(names []PropName) *etree.Document {
	doc, root := newRootDoc("propfind")
	prop := root.CreateElement("prop")
	for _, n := range names {
		addProp(prop, n)
	}
	return doc
}

func buildMkcalendar(displayName string) *etree.Document {
	doc, root := newRootDoc("mkcalendar")
	set := root.CreateElement("set")
	prop := set.CreateElement("prop")
	if displayName != "" {
		dn := addProp(prop, PropDisplayName)
		dn.SetText(displayName)
	}
	resType := addProp(prop, PropResourceType)
	resType.CreateElement("collection")
	resType.CreateElement("C:calendar")
	return doc
}

// CompFilter restricts a calendar-query to a single component type (and
// optionally a time-range within it), e.g. VEVENT within [start, end).
type CompFilter struct {
	Name           string
	TimeRangeStart string // UTC "YYYYMMDDTHHMMSSZ", empty if unbounded
	TimeRangeEnd   string
}

// BuildCalendarQuery builds a REPORT body per RFC 4791 §7.8. When
// includeData is false the request omits calendar-data entirely (spec
// §4.2 "fetchEtagsInRange... MUST NOT contain calendar-data").
func BuildCalendarQuery(filter CompFilter, includeData bool) *etree.Document {
	doc, root := newRootDoc("C:calendar-query")
	prop := root.CreateElement("prop")
	addProp(prop, PropGetETag)
	if includeData {
		addProp(prop, PropCalendarData)
	}

	cfilter := root.CreateElement("C:filter")
	vcalFilter := cfilter.CreateElement("C:comp-filter")
	vcalFilter.CreateAttr("name", "VCALENDAR")
	compFilter := vcalFilter.CreateElement("C:comp-filter")
	compFilter.CreateAttr("name", filter.Name)

	if filter.TimeRangeStart != "" || filter.TimeRangeEnd != "" {
		tr := compFilter.CreateElement("C:time-range")
		if filter.TimeRangeStart != "" {
			tr.CreateAttr("start", filter.TimeRangeStart)
		}
		if filter.TimeRangeEnd != "" {
			tr.CreateAttr("end", filter.TimeRangeEnd)
		}
	}
	return doc
}

// BuildCalendarMultiget builds a REPORT body per RFC 4791 §7.9 over an
// explicit set of hrefs.
func BuildCalendarMultiget(hrefs []string, includeData bool) *etree.Document {
	doc, root := newRootDoc("C:calendar-multiget")
	prop := root.CreateElement("prop")
	addProp(prop, PropGetETag)
	if includeData {
		addProp(prop, PropCalendarData)
	}
	for _, h := range hrefs {
		root.CreateElement("href").SetText(h)
	}
	return doc
}

// BuildSyncCollection builds a REPORT body per RFC 6578 §3. token is the
// empty string on an initial (non-incremental) sync.
func BuildSyncCollection(token string, limit int) *etree.Document {
	doc, root := newRootDoc("sync-collection")
	root.CreateElement("sync-token").SetText(token)
	root.CreateElement("sync-level").SetText("1")
	if limit > 0 {
		root.CreateElement("limit").CreateElement("nresults").SetText(fmt.Sprint(limit))
	}
	prop := root.CreateElement("prop")
	addProp(prop, PropGetETag)
	addProp(prop, PropCalendarData)
	return doc
}
