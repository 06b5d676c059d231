package notify

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// partSeparator joins key parts unambiguously; the ASCII unit separator
// never appears in identifiers, type tags, or formatted dates.
const partSeparator = "\x1f"

// Key returns the deterministic fingerprint for an ordered list of parts.
// Identical logical events always produce the same digest across process
// restarts, which the notifications uniq_key constraint relies on.
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, partSeparator)))
	return hex.EncodeToString(sum[:])
}

// EventKey builds the canonical fingerprint for a business event:
// (type, audience, subject id, trigger date). The date is normalised to a
// UTC calendar day so re-running a sweep on the same day is a no-op while
// the next day produces a fresh key.
func EventKey(eventType, audience, subjectID string, day time.Time) string {
	return Key(eventType, audience, subjectID, day.UTC().Format("2006-01-02"))
}

// MilestoneKey fingerprints a reminder milestone: the day is the event's
// due/end date, and daysAhead distinguishes the "7 days before" record from
// the "1 day before" record for the same event.
func MilestoneKey(eventType, audience, subjectID string, day time.Time, daysAhead int) string {
	return Key(eventType, audience, subjectID, day.UTC().Format("2006-01-02"), strconv.Itoa(daysAhead))
}
