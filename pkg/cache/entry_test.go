package cache

import (
	"testing"
	"time"
)

func TestEntry_Freshness(t *testing.T) {
	stored := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	entry := &Entry{
		Body:     []byte(`{"data":{}}`),
		StoredAt: stored,
		Expires:  stored.Add(30 * time.Second),
	}

	tests := []struct {
		name          string
		now           time.Time
		wantFresh     bool
		wantRemaining time.Duration
		wantAge       time.Duration
	}{
		{"just stored", stored, true, 30 * time.Second, 0},
		{"half way", stored.Add(10 * time.Second), true, 20 * time.Second, 10 * time.Second},
		{"at expiry", stored.Add(30 * time.Second), false, 0, 30 * time.Second},
		{"long expired", stored.Add(time.Hour), false, 0, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := entry.Fresh(tt.now); got != tt.wantFresh {
				t.Errorf("Fresh() = %v, want %v", got, tt.wantFresh)
			}
			if got := entry.Remaining(tt.now); got != tt.wantRemaining {
				t.Errorf("Remaining() = %v, want %v", got, tt.wantRemaining)
			}
			if got := entry.Age(tt.now); got != tt.wantAge {
				t.Errorf("Age() = %v, want %v", got, tt.wantAge)
			}
		})
	}
}

func TestEntry_Nil(t *testing.T) {
	var entry *Entry
	now := time.Now()
	if entry.Fresh(now) || entry.Remaining(now) != 0 || entry.Age(now) != 0 {
		t.Error("nil entry should be stale with zero durations")
	}
}
