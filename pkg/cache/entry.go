package cache

import (
	"encoding/json"
	"time"
)

// Entry is a cached GraphQL response body.
type Entry struct {
	// Body is the raw {data, errors} document
	Body json.RawMessage `json:"body"`

	// Endpoint the response came from; used to purge per endpoint
	Endpoint string `json:"endpoint"`

	StoredAt time.Time `json:"stored_at"`
	Expires  time.Time `json:"expires"`
}

// Fresh reports whether the entry may still be served at now.
func (e *Entry) Fresh(now time.Time) bool {
	return e != nil && now.Before(e.Expires)
}

// Remaining is how long the entry stays fresh after now, never negative.
func (e *Entry) Remaining(now time.Time) time.Duration {
	if !e.Fresh(now) {
		return 0
	}
	return e.Expires.Sub(now)
}

// Age is the time since the entry was stored.
func (e *Entry) Age(now time.Time) time.Duration {
	if e == nil || e.StoredAt.IsZero() {
		return 0
	}
	return now.Sub(e.StoredAt)
}
