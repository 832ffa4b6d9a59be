// Package icalcodec implements the iCal codec contract (spec §6) as a thin
// adapter over github.com/emersion/go-ical: Parse turns RFC 5545 text into
// caldav.Event values, Generate turns a caldav.Event back into text, and the
// pair is expected to satisfy the round-trip law parse(generate(e)) == e for
// every field the codec models explicitly.
package icalcodec

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/lnshvets/caldavsync/caldav"
)

// Codec implements caldav.Codec over go-ical.
type Codec struct{}

func New() Codec { return Codec{} }

// Parse decodes one or more VEVENT components from an iCalendar document
// (spec §6's parse(text) -> List<Event> | Error).
func (Codec) Parse(text string) ([]caldav.Event, error) {
	cal, err := ical.NewDecoder(strings.NewReader(text)).Decode()
	if err != nil {
		return nil, fmt.Errorf("icalcodec: decoding calendar: %w", err)
	}

	var events []caldav.Event
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		e, err := componentToEvent(comp)
		if err != nil {
			return nil, fmt.Errorf("icalcodec: decoding VEVENT: %w", err)
		}
		events = append(events, e)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("icalcodec: no VEVENT component found")
	}
	return events, nil
}

// Generate encodes a single Event as a complete VCALENDAR document (spec
// §6's generate(event) -> text).
func (Codec) Generate(e caldav.Event) (string, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//caldavsync//EN")

	comp, err := eventToComponent(e)
	if err != nil {
		return "", fmt.Errorf("icalcodec: encoding VEVENT: %w", err)
	}
	cal.Children = append(cal.Children, comp)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return "", fmt.Errorf("icalcodec: encoding calendar: %w", err)
	}
	return buf.String(), nil
}

var modeledProps = map[string]bool{
	ical.PropUID: true, ical.PropSummary: true, ical.PropDescription: true,
	ical.PropLocation: true, ical.PropStatus: true, "TRANSP": true,
	ical.PropSequence: true, ical.PropDateTimeStart: true, ical.PropDateTimeEnd: true,
	ical.PropDuration: true, ical.PropRecurrenceRule: true, ical.PropExceptionDates: true,
	ical.PropRecurrenceID: true, "CATEGORIES": true, ical.PropOrganizer: true,
	ical.PropAttendee: true, ical.PropColor: true, ical.PropDateTimeStamp: true,
	ical.PropLastModified: true, ical.PropCreated: true, ical.PropURL: true,
}

func componentToEvent(comp *ical.Component) (caldav.Event, error) {
	var e caldav.Event

	uid := comp.Props.Get(ical.PropUID)
	if uid == nil || uid.Value == "" {
		return e, fmt.Errorf("missing UID")
	}
	e.UID = uid.Value

	if p := comp.Props.Get(ical.PropSummary); p != nil {
		e.Summary = p.Value
	}
	if p := comp.Props.Get(ical.PropDescription); p != nil {
		e.Description = p.Value
	}
	if p := comp.Props.Get(ical.PropLocation); p != nil {
		e.Location = p.Value
	}
	if p := comp.Props.Get(ical.PropStatus); p != nil {
		e.Status = caldav.EventStatus(strings.ToLower(p.Value))
	}
	if p := comp.Props.Get("TRANSP"); p != nil {
		e.Transparency = caldav.Transparency(strings.ToLower(p.Value))
	}
	if p := comp.Props.Get(ical.PropSequence); p != nil {
		if n, err := strconv.Atoi(p.Value); err == nil {
			e.Sequence = n
		}
	}
	if p := comp.Props.Get(ical.PropColor); p != nil {
		e.Color = p.Value
	}
	if p := comp.Props.Get(ical.PropURL); p != nil {
		e.URL = p.Value
	}
	if p := comp.Props.Get(ical.PropDateTimeStamp); p != nil {
		if dt, err := parseDateTimeValue(p); err == nil {
			e.DTStamp = dt.Time
		}
	}
	if p := comp.Props.Get(ical.PropLastModified); p != nil {
		if dt, err := parseDateTimeValue(p); err == nil {
			e.LastModified = dt.Time
		}
	}
	if p := comp.Props.Get(ical.PropCreated); p != nil {
		if dt, err := parseDateTimeValue(p); err == nil {
			e.Created = dt.Time
		}
	}

	dtstart := comp.Props.Get(ical.PropDateTimeStart)
	if dtstart == nil {
		return e, fmt.Errorf("missing DTSTART")
	}
	start, err := parseDateTimeValue(dtstart)
	if err != nil {
		return e, fmt.Errorf("invalid DTSTART: %w", err)
	}
	e.DTStart = start
	e.IsAllDay = start.DateOnly

	if dtend := comp.Props.Get(ical.PropDateTimeEnd); dtend != nil {
		end, err := parseDateTimeValue(dtend)
		if err != nil {
			return e, fmt.Errorf("invalid DTEND: %w", err)
		}
		e.DTEnd = end
	} else if durProp := comp.Props.Get(ical.PropDuration); durProp != nil {
		dur, err := parseISODuration(durProp.Value)
		if err != nil {
			return e, fmt.Errorf("invalid DURATION: %w", err)
		}
		e.Duration = dur
		e.HasDuration = true
	}

	if p := comp.Props.Get(ical.PropRecurrenceRule); p != nil {
		e.RRule = p.Value
	}
	for _, p := range comp.Props.Values(ical.PropExceptionDates) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			exProp := &ical.Prop{Name: ical.PropExceptionDates, Value: part, Params: p.Params}
			if dt, err := parseDateTimeValue(exProp); err == nil {
				e.ExceptionDates = append(e.ExceptionDates, dt)
			}
		}
	}
	if p := comp.Props.Get(ical.PropRecurrenceID); p != nil {
		if dt, err := parseDateTimeValue(p); err == nil {
			e.RecurrenceID = &dt
		}
	}

	if p := comp.Props.Get("CATEGORIES"); p != nil && p.Value != "" {
		for _, c := range strings.Split(p.Value, ",") {
			c = strings.TrimSpace(c)
			if c != "" {
				e.Categories = append(e.Categories, c)
			}
		}
	}

	if p := comp.Props.Get(ical.PropOrganizer); p != nil {
		e.Organizer = attendeeFromProp(p, true)
	}
	for _, p := range comp.Props.Values(ical.PropAttendee) {
		prop := p
		e.Attendees = append(e.Attendees, *attendeeFromProp(&prop, false))
	}

	for _, child := range comp.Children {
		if child.Name != ical.CompAlarm {
			continue
		}
		alarm := caldav.Alarm{}
		if p := child.Props.Get("ACTION"); p != nil {
			alarm.Action = p.Value
		}
		if p := child.Props.Get("TRIGGER"); p != nil {
			alarm.TriggerText = p.Value
		}
		if p := child.Props.Get(ical.PropDescription); p != nil {
			alarm.Description = p.Value
		}
		e.Alarms = append(e.Alarms, alarm)
	}

	e.Extra = extractExtra(comp)

	return e, nil
}

func attendeeFromProp(p *ical.Prop, isOrganizer bool) *caldav.Attendee {
	a := &caldav.Attendee{
		Email:       strings.TrimPrefix(p.Value, "mailto:"),
		CommonName:  p.Params.Get("CN"),
		Role:        p.Params.Get("ROLE"),
		PartStat:    p.Params.Get(ical.ParamParticipationStatus),
		RSVP:        strings.EqualFold(p.Params.Get("RSVP"), "TRUE"),
		IsOrganizer: isOrganizer,
	}
	return a
}

// extractExtra round-trips any property this codec doesn't model explicitly
// (X- extensions and anything else) so a read-modify-write cycle doesn't
// silently drop them.
func extractExtra(comp *ical.Component) map[string][]string {
	var extra map[string][]string
	for name, props := range comp.Props {
		if modeledProps[name] {
			continue
		}
		if extra == nil {
			extra = map[string][]string{}
		}
		for _, p := range props {
			extra[name] = append(extra[name], p.Value)
		}
	}
	return extra
}

func eventToComponent(e caldav.Event) (*ical.Component, error) {
	comp := ical.NewComponent(ical.CompEvent)
	comp.Props.SetText(ical.PropUID, e.UID)

	if e.Summary != "" {
		comp.Props.SetText(ical.PropSummary, e.Summary)
	}
	if e.Description != "" {
		comp.Props.SetText(ical.PropDescription, e.Description)
	}
	if e.Location != "" {
		comp.Props.SetText(ical.PropLocation, e.Location)
	}
	if e.Status != "" {
		comp.Props.SetText(ical.PropStatus, strings.ToUpper(string(e.Status)))
	}
	if e.Transparency != "" {
		comp.Props.SetText("TRANSP", strings.ToUpper(string(e.Transparency)))
	}
	comp.Props.SetText(ical.PropSequence, strconv.Itoa(e.Sequence))
	if e.Color != "" {
		comp.Props.SetText(ical.PropColor, e.Color)
	}
	if e.URL != "" {
		comp.Props.SetText(ical.PropURL, e.URL)
	}

	dtstamp := e.DTStamp
	if dtstamp.IsZero() {
		dtstamp = time.Now().UTC()
	}
	comp.Props.Set(buildDateTimeProp(ical.PropDateTimeStamp, caldav.DateTimeValue{Time: dtstamp}))
	if !e.LastModified.IsZero() {
		comp.Props.Set(buildDateTimeProp(ical.PropLastModified, caldav.DateTimeValue{Time: e.LastModified}))
	}
	if !e.Created.IsZero() {
		comp.Props.Set(buildDateTimeProp(ical.PropCreated, caldav.DateTimeValue{Time: e.Created}))
	}

	comp.Props.Set(buildDateTimeProp(ical.PropDateTimeStart, e.DTStart))
	if e.HasDuration {
		comp.Props.SetText(ical.PropDuration, formatISODuration(e.Duration))
	} else if !e.DTEnd.Time.IsZero() {
		comp.Props.Set(buildDateTimeProp(ical.PropDateTimeEnd, e.DTEnd))
	}

	if e.RRule != "" {
		comp.Props.SetText(ical.PropRecurrenceRule, e.RRule)
	}
	for _, ex := range e.ExceptionDates {
		comp.Props.Add(buildDateTimeProp(ical.PropExceptionDates, ex))
	}
	if e.RecurrenceID != nil {
		comp.Props.Set(buildDateTimeProp(ical.PropRecurrenceID, *e.RecurrenceID))
	}

	if len(e.Categories) > 0 {
		comp.Props.SetText("CATEGORIES", strings.Join(e.Categories, ","))
	}

	if e.Organizer != nil {
		comp.Props.Set(attendeeToProp(ical.PropOrganizer, *e.Organizer))
	}
	for _, a := range e.Attendees {
		comp.Props.Add(attendeeToProp(ical.PropAttendee, a))
	}

	for _, alarm := range e.Alarms {
		alarmComp := ical.NewComponent(ical.CompAlarm)
		if alarm.Action != "" {
			alarmComp.Props.SetText("ACTION", alarm.Action)
		}
		if alarm.TriggerText != "" {
			alarmComp.Props.SetText("TRIGGER", alarm.TriggerText)
		}
		if alarm.Description != "" {
			alarmComp.Props.SetText(ical.PropDescription, alarm.Description)
		}
		comp.Children = append(comp.Children, alarmComp)
	}

	for name, values := range e.Extra {
		for _, v := range values {
			comp.Props.Add(&ical.Prop{Name: name, Value: v})
		}
	}

	return comp, nil
}

func attendeeToProp(name string, a caldav.Attendee) *ical.Prop {
	p := &ical.Prop{Name: name, Value: "mailto:" + a.Email, Params: ical.Params{}}
	if a.CommonName != "" {
		p.Params["CN"] = []string{a.CommonName}
	}
	if a.Role != "" {
		p.Params["ROLE"] = []string{a.Role}
	}
	if a.PartStat != "" {
		p.Params[ical.ParamParticipationStatus] = []string{a.PartStat}
	}
	if a.RSVP {
		p.Params["RSVP"] = []string{"TRUE"}
	}
	return p
}

// parseDateTimeValue parses a DTSTART/DTEND/RECURRENCE-ID/EXDATE-style
// property, preserving whether the value was date-only, zoned, or floating
// (spec §3's DateTimeValue) instead of normalizing to a single timezone.
func parseDateTimeValue(p *ical.Prop) (caldav.DateTimeValue, error) {
	value := strings.TrimSpace(p.Value)
	dateOnly := p.Params.Get(ical.ParamValue) == string(ical.ValueDate) || len(value) == 8

	if dateOnly {
		t, err := time.Parse("20060102", value)
		if err != nil {
			return caldav.DateTimeValue{}, err
		}
		return caldav.DateTimeValue{Time: t, DateOnly: true}, nil
	}

	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse("20060102T150405Z", value)
		if err != nil {
			return caldav.DateTimeValue{}, err
		}
		return caldav.DateTimeValue{Time: t}, nil
	}

	if tzid := p.Params.Get("TZID"); tzid != "" {
		loc, err := time.LoadLocation(tzid)
		if err != nil {
			loc = time.Local
		}
		t, err := time.ParseInLocation("20060102T150405", value, loc)
		if err != nil {
			return caldav.DateTimeValue{}, err
		}
		return caldav.DateTimeValue{Time: t, TZID: tzid}, nil
	}

	t, err := time.ParseInLocation("20060102T150405", value, time.Local)
	if err != nil {
		return caldav.DateTimeValue{}, err
	}
	return caldav.DateTimeValue{Time: t, IsFloating: true}, nil
}

// buildDateTimeProp is parseDateTimeValue's inverse.
func buildDateTimeProp(name string, dt caldav.DateTimeValue) *ical.Prop {
	prop := &ical.Prop{Name: name}
	switch {
	case dt.DateOnly:
		prop.Value = dt.Time.Format("20060102")
		prop.Params = ical.Params{ical.ParamValue: []string{string(ical.ValueDate)}}
	case dt.TZID != "":
		prop.Value = dt.Time.Format("20060102T150405")
		prop.Params = ical.Params{"TZID": []string{dt.TZID}}
	case dt.IsFloating:
		prop.Value = dt.Time.Format("20060102T150405")
	default:
		prop.Value = dt.Time.UTC().Format("20060102T150405Z")
	}
	return prop
}

// parseISODuration and formatISODuration implement RFC 5545 §3.3.6's
// DURATION value, scoped to the day/hour/minute/second form this codec
// emits (weeks are accepted on parse, never produced on generate).
func parseISODuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+")
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	var days, weeks, hours, minutes, seconds int
	var inTime bool
	var current strings.Builder
	for _, r := range s[1:] {
		switch r {
		case 'W':
			weeks, _ = strconv.Atoi(current.String())
			current.Reset()
		case 'D':
			days, _ = strconv.Atoi(current.String())
			current.Reset()
		case 'T':
			inTime = true
			current.Reset()
		case 'H':
			if inTime {
				hours, _ = strconv.Atoi(current.String())
			}
			current.Reset()
		case 'M':
			if inTime {
				minutes, _ = strconv.Atoi(current.String())
			}
			current.Reset()
		case 'S':
			if inTime {
				seconds, _ = strconv.Atoi(current.String())
			}
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}

	total := time.Duration(weeks)*7*24*time.Hour +
		time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second
	if neg {
		total = -total
	}
	return total, nil
}

func formatISODuration(d time.Duration) string {
	if d == 0 {
		return "PT0S"
	}
	neg := d < 0
	if neg {
		d = -d
	}

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('P')
	if days > 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	if hours > 0 || minutes > 0 || seconds > 0 {
		b.WriteByte('T')
		if hours > 0 {
			fmt.Fprintf(&b, "%dH", hours)
		}
		if minutes > 0 {
			fmt.Fprintf(&b, "%dM", minutes)
		}
		if seconds > 0 {
			fmt.Fprintf(&b, "%dS", seconds)
		}
	}
	return b.String()
}
