package client

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrRequestBlocked is returned when the endpoint's error budget is exhausted.
	ErrRequestBlocked = errors.New("request blocked: error budget critical")
)

// SubgraphError is an HTTP-level failure talking to a subgraph endpoint.
type SubgraphError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *SubgraphError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("subgraph %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("subgraph %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *SubgraphError) Unwrap() error {
	return e.Err
}

// GraphQLError is a single entry of a GraphQL "errors" array.
type GraphQLError struct {
	Message   string           `json:"message"`
	Path      []any            `json:"path,omitempty"`
	Locations []map[string]int `json:"locations,omitempty"`
}

// QueryError is returned when the endpoint answered with GraphQL errors.
// The accompanying Response may still carry partial data.
type QueryError struct {
	Endpoint string
	Errors   []GraphQLError
}

// Error joins the GraphQL messages.
func (e *QueryError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ge := range e.Errors {
		msgs = append(msgs, ge.Message)
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// Contains reports whether any GraphQL message contains substr.
func (e *QueryError) Contains(substr string) bool {
	for _, ge := range e.Errors {
		if strings.Contains(ge.Message, substr) {
			return true
		}
	}
	return false
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient, ErrorClassQuery:
		// malformed queries fail the same way every time
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
