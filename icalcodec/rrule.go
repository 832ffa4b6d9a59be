package icalcodec

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// ValidateRRULE checks that rule is syntactically valid RFC 5545 RRULE text.
// It never expands occurrences (spec's recurrence Non-goal) — the core only
// needs to know the string round-trips cleanly, not what it produces.
func ValidateRRULE(rule string) error {
	if rule == "" {
		return nil
	}
	// rrule-go only parses a full rule set, so a DTSTART is prefixed the
	// same way the recurrence expanders elsewhere in the pack do it; the
	// current time serves as the anchor, since only syntax is being checked.
	full := fmt.Sprintf("DTSTART:%s\nRRULE:%s", time.Now().UTC().Format("20060102T150405Z"), rule)
	if _, err := rrule.StrToRRule(full); err != nil {
		return fmt.Errorf("icalcodec: invalid RRULE %q: %w", rule, err)
	}
	return nil
}
