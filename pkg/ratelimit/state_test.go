package ratelimit

import (
	"testing"
	"time"
)

func TestNewBudget(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b := NewBudget(DefaultErrorBudget, DefaultBudgetWindow, now)

	if b.Remaining != DefaultErrorBudget {
		t.Errorf("Remaining = %d, want %d", b.Remaining, DefaultErrorBudget)
	}
	if !b.Healthy() {
		t.Error("full budget should be healthy")
	}
	if !b.ResetAt.Equal(now.Add(DefaultBudgetWindow)) {
		t.Errorf("ResetAt = %v, want %v", b.ResetAt, now.Add(DefaultBudgetWindow))
	}
	if b.Expired(now) {
		t.Error("fresh window reported as expired")
	}
	if !b.Expired(now.Add(DefaultBudgetWindow)) {
		t.Error("window should be expired at ResetAt")
	}
}

func TestBudget_Level(t *testing.T) {
	tests := []struct {
		remaining int
		want      Level
	}{
		{100, LevelHealthy},
		{ErrorThresholdHealthy, LevelHealthy},
		{ErrorThresholdHealthy - 1, LevelDegraded},
		{ErrorThresholdWarning, LevelDegraded},
		{ErrorThresholdWarning - 1, LevelThrottled},
		{ErrorThresholdCritical, LevelThrottled},
		{ErrorThresholdCritical - 1, LevelBlocked},
		{0, LevelBlocked},
	}

	for _, tt := range tests {
		b := &Budget{Remaining: tt.remaining}
		if got := b.Level(); got != tt.want {
			t.Errorf("Level() with %d remaining = %v, want %v", tt.remaining, got, tt.want)
		}
	}
}

func TestBudget_Spend(t *testing.T) {
	tests := []struct {
		name  string
		start int
		spend int
		want  int
	}{
		{name: "single failure", start: 100, spend: 1, want: 99},
		{name: "drain on 429", start: 40, spend: 40, want: 0},
		{name: "never negative", start: 2, spend: 10, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Budget{Remaining: tt.start}
			b.Spend(tt.spend)
			if b.Remaining != tt.want {
				t.Errorf("Remaining = %d, want %d", b.Remaining, tt.want)
			}
		})
	}
}

func TestBudget_ResetIn(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b := &Budget{ResetAt: now.Add(30 * time.Second)}

	if got := b.ResetIn(now); got != 30*time.Second {
		t.Errorf("ResetIn() = %v, want 30s", got)
	}
	if got := b.ResetIn(now.Add(time.Minute)); got != 0 {
		t.Errorf("ResetIn() after reset = %v, want 0", got)
	}
}

func TestLevel_String(t *testing.T) {
	for level, want := range map[Level]string{
		LevelHealthy:   "healthy",
		LevelDegraded:  "degraded",
		LevelThrottled: "throttled",
		LevelBlocked:   "blocked",
	} {
		if got := level.String(); got != want {
			t.Errorf("Level(%d).String() = %q, want %q", level, got, want)
		}
	}
}

func TestRedisKey(t *testing.T) {
	if got := RedisKey("api.thegraph.com"); got != "subgraph:error_budget:api.thegraph.com" {
		t.Errorf("RedisKey() = %q", got)
	}
}

func TestDecodeBudget(t *testing.T) {
	b, err := decodeBudget(map[string]string{
		fieldRemaining: "12",
		fieldResetAt:   "1714564800",
		fieldUpdatedAt: "1714564740000",
	})
	if err != nil {
		t.Fatalf("decodeBudget() error = %v", err)
	}
	if b.Remaining != 12 || b.ResetAt.Unix() != 1714564800 || b.UpdatedAt.UnixMilli() != 1714564740000 {
		t.Errorf("decodeBudget() = %+v", b)
	}

	if _, err := decodeBudget(map[string]string{fieldRemaining: "x", fieldResetAt: "1"}); err == nil {
		t.Error("expected error for a non-numeric remaining field")
	}
}
