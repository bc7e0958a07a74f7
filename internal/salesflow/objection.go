package salesflow

import (
	"time"
	"unicode/utf8"
)

const (
	// DefaultObjectionHistory is how many objections a context keeps.
	DefaultObjectionHistory = 10
	maxObjectionRunes       = 200
)

// AppendObjection adds an objection to history, truncating the message and
// keeping only the newest limit entries. It never modifies history in place.
func AppendObjection(history []ObjectionRecord, t ObjectionType, message string, at time.Time, limit int) []ObjectionRecord {
	if limit <= 0 {
		limit = DefaultObjectionHistory
	}
	out := make([]ObjectionRecord, 0, len(history)+1)
	out = append(out, history...)
	out = append(out, ObjectionRecord{Type: t, Message: truncateRunes(message, maxObjectionRunes), At: at.UTC()})
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// CountObjections returns how many recorded objections have type t.
func CountObjections(history []ObjectionRecord, t ObjectionType) int {
	n := 0
	for _, o := range history {
		if o.Type == t {
			n++
		}
	}
	return n
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
