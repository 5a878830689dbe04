package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTTL is the fallback TTL when the response carries no caching headers.
// Hosted subgraphs index roughly one block every few seconds.
const DefaultTTL = 30 * time.Second

// NewEntry builds an entry for body as returned by endpoint. The lifetime
// comes from the response headers, else defaultTTL.
func NewEntry(endpoint string, header http.Header, body []byte, defaultTTL time.Duration, now time.Time) *Entry {
	return &Entry{
		Body:     append([]byte(nil), body...),
		Endpoint: endpoint,
		StoredAt: now,
		Expires:  parseExpires(header, defaultTTL, now),
	}
}

// parseExpires derives the expiration time from Cache-Control max-age or
// Expires, falling back to now + defaultTTL.
func parseExpires(header http.Header, defaultTTL time.Duration, now time.Time) time.Time {
	if maxAge, ok := parseMaxAge(header.Get("Cache-Control")); ok {
		return now.Add(maxAge)
	}

	raw := header.Get("Expires")
	if raw == "" {
		return now.Add(defaultTTL)
	}
	expires, err := http.ParseTime(raw)
	if err != nil {
		return now.Add(defaultTTL)
	}
	if expires.Before(now) {
		return now
	}
	return expires
}

// parseMaxAge reads max-age; no-store and no-cache mean zero.
func parseMaxAge(cacheControl string) (time.Duration, bool) {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(strings.ToLower(directive))
		if directive == "no-store" || directive == "no-cache" {
			return 0, true
		}
		if v, ok := strings.CutPrefix(directive, "max-age="); ok {
			secs, err := strconv.Atoi(v)
			if err != nil || secs < 0 {
				return 0, false
			}
			return time.Duration(secs) * time.Second, true
		}
	}
	return 0, false
}
