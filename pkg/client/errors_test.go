package client

import (
	"errors"
	"fmt"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		errorClass ErrorClass
		expected   bool
	}{
		{ErrorClassClient, false},
		{ErrorClassQuery, false},
		{ErrorClassServer, true},
		{ErrorClassRateLimit, true},
		{ErrorClassNetwork, true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errorClass), func(t *testing.T) {
			if result := shouldRetry(tt.errorClass); result != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, result, tt.expected)
			}
		})
	}
}

func TestSubgraphError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *SubgraphError
		expected string
	}{
		{
			name: "with wrapped error",
			err: &SubgraphError{
				StatusCode: 502,
				ErrorClass: ErrorClassServer,
				Message:    "502 Bad Gateway",
				Err:        errors.New("upstream reset"),
			},
			expected: "subgraph server error (status 502): 502 Bad Gateway: upstream reset",
		},
		{
			name: "without wrapped error",
			err: &SubgraphError{
				StatusCode: 429,
				ErrorClass: ErrorClassRateLimit,
				Message:    "429 Too Many Requests",
			},
			expected: "subgraph rate_limit error (status 429): 429 Too Many Requests",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.err.Error(); result != tt.expected {
				t.Errorf("Error() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestSubgraphError_Unwrap(t *testing.T) {
	inner := errors.New("invalid character")
	err := fmt.Errorf("query failed: %w", &SubgraphError{
		StatusCode: 200,
		ErrorClass: ErrorClassClient,
		Message:    "invalid GraphQL response",
		Err:        inner,
	})

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}

	var se *SubgraphError
	if !errors.As(err, &se) {
		t.Fatal("errors.As should find *SubgraphError")
	}
	if se.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", se.StatusCode)
	}

	if (&SubgraphError{}).Unwrap() != nil {
		t.Error("Unwrap() of empty error should be nil")
	}
}

func TestQueryError(t *testing.T) {
	err := &QueryError{
		Endpoint: "https://api.thegraph.com/subgraphs/name/org/dex-ethereum",
		Errors: []GraphQLError{
			{Message: "Type `LiquidityPool` has no field `dailyVolumeUSD`"},
			{Message: "indexing_error"},
		},
	}

	want := "graphql: Type `LiquidityPool` has no field `dailyVolumeUSD`; indexing_error"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !err.Contains("has no field") {
		t.Error("Contains(has no field) = false, want true")
	}
	if err.Contains("timeout") {
		t.Error("Contains(timeout) = true, want false")
	}

	var qe *QueryError
	if !errors.As(fmt.Errorf("page 2: %w", err), &qe) {
		t.Error("errors.As should find *QueryError")
	}
}
