package icalcodec

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lnshvets/caldavsync/caldav"
)

func TestParse_BasicEvent(t *testing.T) {
	text := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//test//EN\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:event-1@example.com\r\n" +
		"DTSTAMP:20260101T100000Z\r\n" +
		"DTSTART:20260115T090000Z\r\n" +
		"DTEND:20260115T100000Z\r\n" +
		"SUMMARY:Standup\r\n" +
		"DESCRIPTION:Daily sync\r\n" +
		"LOCATION:Room 4\r\n" +
		"STATUS:CONFIRMED\r\n" +
		"SEQUENCE:2\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	codec := New()
	events, err := codec.Parse(text)
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	require.Equal(t, "event-1@example.com", e.UID)
	require.Equal(t, "Standup", e.Summary)
	require.Equal(t, "Daily sync", e.Description)
	require.Equal(t, "Room 4", e.Location)
	require.Equal(t, caldav.StatusConfirmed, e.Status)
	require.Equal(t, 2, e.Sequence)
	require.False(t, e.DTStart.DateOnly)
	require.Equal(t, 2026, e.DTStart.Time.Year())
	require.False(t, e.IsAllDay)
}

func TestParse_MissingUID(t *testing.T) {
	text := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nBEGIN:VEVENT\r\nDTSTART:20260115T090000Z\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"
	_, err := New().Parse(text)
	require.Error(t, err)
}

func TestParse_MissingDTStart(t *testing.T) {
	text := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nBEGIN:VEVENT\r\nUID:x\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"
	_, err := New().Parse(text)
	require.Error(t, err)
}

func TestGenerate_RoundTripsBasicFields(t *testing.T) {
	codec := New()
	e := caldav.Event{
		UID:          "round-trip-1",
		Summary:      "Team sync",
		Description:  "Weekly planning",
		Location:     "HQ",
		Status:       caldav.StatusTentative,
		Transparency: caldav.TransparencyOpaque,
		Sequence:     1,
		DTStart:      caldav.DateTimeValue{Time: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)},
		DTEnd:        caldav.DateTimeValue{Time: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)},
		DTStamp:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	text, err := codec.Generate(e)
	require.NoError(t, err)
	require.Contains(t, text, "UID:round-trip-1")
	require.Contains(t, text, "BEGIN:VCALENDAR")
	require.Contains(t, text, "BEGIN:VEVENT")

	parsed, err := codec.Parse(text)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	got := parsed[0]

	require.Equal(t, e.UID, got.UID)
	require.Equal(t, e.Summary, got.Summary)
	require.Equal(t, e.Description, got.Description)
	require.Equal(t, e.Location, got.Location)
	require.Equal(t, e.Status, got.Status)
	require.Equal(t, e.Transparency, got.Transparency)
	require.Equal(t, e.Sequence, got.Sequence)
	require.True(t, e.DTStart.Time.Equal(got.DTStart.Time))
	require.True(t, e.DTEnd.Time.Equal(got.DTEnd.Time))
}

func TestGenerate_AllDayUsesDateOnly(t *testing.T) {
	e := caldav.Event{
		UID:      "all-day-1",
		Summary:  "Company holiday",
		IsAllDay: true,
		DTStart:  caldav.DateTimeValue{Time: time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC), DateOnly: true},
		DTEnd:    caldav.DateTimeValue{Time: time.Date(2026, 7, 5, 0, 0, 0, 0, time.UTC), DateOnly: true},
	}

	text, err := New().Generate(e)
	require.NoError(t, err)
	require.Contains(t, text, "VALUE=DATE")

	parsed, err := New().Parse(text)
	require.NoError(t, err)
	require.True(t, parsed[0].DTStart.DateOnly)
	require.True(t, parsed[0].IsAllDay)
}

func TestGenerate_RoundTripsDuration(t *testing.T) {
	e := caldav.Event{
		UID:         "dur-1",
		Summary:     "Flight",
		HasDuration: true,
		Duration:    90 * time.Minute,
		DTStart:     caldav.DateTimeValue{Time: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)},
	}

	text, err := New().Generate(e)
	require.NoError(t, err)
	require.Contains(t, text, "DURATION:PT1H30M")

	parsed, err := New().Parse(text)
	require.NoError(t, err)
	require.True(t, parsed[0].HasDuration)
	require.Equal(t, 90*time.Minute, parsed[0].Duration)
}

func TestGenerate_RoundTripsRRuleAndExceptionDates(t *testing.T) {
	e := caldav.Event{
		UID:     "recurring-1",
		Summary: "Weekly review",
		DTStart: caldav.DateTimeValue{Time: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)},
		DTEnd:   caldav.DateTimeValue{Time: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)},
		RRule:   "FREQ=WEEKLY;BYDAY=MO",
		ExceptionDates: []caldav.DateTimeValue{
			{Time: time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)},
		},
	}

	text, err := New().Generate(e)
	require.NoError(t, err)
	require.NoError(t, ValidateRRULE(e.RRule))

	parsed, err := New().Parse(text)
	require.NoError(t, err)
	require.Equal(t, e.RRule, parsed[0].RRule)
	require.Len(t, parsed[0].ExceptionDates, 1)
	require.True(t, e.ExceptionDates[0].Time.Equal(parsed[0].ExceptionDates[0].Time))
}

func TestGenerate_RoundTripsAttendeesAndOrganizer(t *testing.T) {
	e := caldav.Event{
		UID:     "attendees-1",
		Summary: "Planning",
		DTStart: caldav.DateTimeValue{Time: time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC)},
		Organizer: &caldav.Attendee{
			Email:       "alice@example.com",
			CommonName:  "Alice",
			IsOrganizer: true,
		},
		Attendees: []caldav.Attendee{
			{Email: "bob@example.com", CommonName: "Bob", Role: "REQ-PARTICIPANT", PartStat: "NEEDS-ACTION", RSVP: true},
		},
	}

	text, err := New().Generate(e)
	require.NoError(t, err)
	require.Contains(t, text, "ORGANIZER")
	require.Contains(t, text, "mailto:alice@example.com")
	require.Contains(t, text, "ATTENDEE")

	parsed, err := New().Parse(text)
	require.NoError(t, err)
	got := parsed[0]
	require.NotNil(t, got.Organizer)
	require.Equal(t, "alice@example.com", got.Organizer.Email)
	require.Equal(t, "Alice", got.Organizer.CommonName)
	require.Len(t, got.Attendees, 1)
	require.Equal(t, "bob@example.com", got.Attendees[0].Email)
	require.Equal(t, "REQ-PARTICIPANT", got.Attendees[0].Role)
	require.True(t, got.Attendees[0].RSVP)
}

func TestGenerate_RoundTripsAlarmsAndCategories(t *testing.T) {
	e := caldav.Event{
		UID:        "alarm-1",
		Summary:    "Dentist",
		DTStart:    caldav.DateTimeValue{Time: time.Date(2026, 4, 4, 9, 0, 0, 0, time.UTC)},
		Categories: []string{"Personal", "Health"},
		Alarms: []caldav.Alarm{
			{Action: "DISPLAY", TriggerText: "-PT15M", Description: "Reminder"},
		},
	}

	text, err := New().Generate(e)
	require.NoError(t, err)
	require.Contains(t, text, "BEGIN:VALARM")
	require.Contains(t, text, "TRIGGER:-PT15M")

	parsed, err := New().Parse(text)
	require.NoError(t, err)
	got := parsed[0]
	require.ElementsMatch(t, []string{"Personal", "Health"}, got.Categories)
	require.Len(t, got.Alarms, 1)
	require.Equal(t, "DISPLAY", got.Alarms[0].Action)
	require.Equal(t, "-PT15M", got.Alarms[0].TriggerText)
}

func TestGenerate_RoundTripsExtraProperties(t *testing.T) {
	e := caldav.Event{
		UID:     "extra-1",
		Summary: "Custom",
		DTStart: caldav.DateTimeValue{Time: time.Date(2026, 6, 6, 9, 0, 0, 0, time.UTC)},
		Extra: map[string][]string{
			"X-CUSTOM-FIELD": {"keep-me"},
		},
	}

	text, err := New().Generate(e)
	require.NoError(t, err)
	require.True(t, strings.Contains(text, "X-CUSTOM-FIELD"))

	parsed, err := New().Parse(text)
	require.NoError(t, err)
	require.Equal(t, []string{"keep-me"}, parsed[0].Extra["X-CUSTOM-FIELD"])
}

func TestGenerate_ZonedDateTimeRoundTrips(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	e := caldav.Event{
		UID:     "zoned-1",
		Summary: "Zoned meeting",
		DTStart: caldav.DateTimeValue{Time: time.Date(2026, 9, 1, 9, 0, 0, 0, loc), TZID: "America/New_York"},
		DTEnd:   caldav.DateTimeValue{Time: time.Date(2026, 9, 1, 10, 0, 0, 0, loc), TZID: "America/New_York"},
	}

	text, err := New().Generate(e)
	require.NoError(t, err)
	require.Contains(t, text, "TZID=America/New_York")

	parsed, err := New().Parse(text)
	require.NoError(t, err)
	require.Equal(t, "America/New_York", parsed[0].DTStart.TZID)
	require.Equal(t, 9, parsed[0].DTStart.Time.Hour())
}
