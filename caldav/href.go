package caldav

import (
	"strings"

	"github.com/lnshvets/caldavsync/dav"
)

// buildEventUrl implements spec §4.2's "Href sanitization": every character
// outside [A-Za-z0-9@.-] is replaced with '_', and any input attempting
// path traversal or containing control characters is rejected outright
// rather than silently sanitized.
func buildEventUrl(calendarURL, uid string) (string, error) {
	if uid == "" {
		return "", &dav.ArgumentError{Message: "uid must not be empty"}
	}
	if strings.Contains(uid, "..") || strings.ContainsAny(uid, "/\\") {
		return "", &dav.ArgumentError{Message: "uid must not contain path separators or \"..\""}
	}
	for _, r := range uid {
		if r < 0x20 || r == 0x7f {
			return "", &dav.ArgumentError{Message: "uid must not contain control characters"}
		}
	}

	sanitized := sanitizeUID(uid)
	base := calendarURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + sanitized + ".ics", nil
}

// sanitizeUID is deterministic and idempotent: applying it twice yields the
// same result as applying it once, since every character it emits is
// already in the allowed set.
func sanitizeUID(uid string) string {
	var b strings.Builder
	b.Grow(len(uid))
	for _, r := range uid {
		if isAllowedHrefRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isAllowedHrefRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '@' || r == '.' || r == '-':
		return true
	default:
		return false
	}
}
