// Package diagnostics classifies pipeline failures and derives the single
// error banner shown above a pool overview.
package diagnostics

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/subgraph-dashboard-client/pkg/client"
)

// Kind classifies a banner.
type Kind string

const (
	// KindUnreachable means the endpoint is not a working subgraph.
	KindUnreachable Kind = "unreachable"
	// KindSchemaMismatch means the query asked for fields the deployed
	// schema lacks. The rest of the data may still load.
	KindSchemaMismatch Kind = "schema_mismatch"
	// KindIndexingFailure means the deployment stopped indexing.
	KindIndexingFailure Kind = "indexing_failure"
	// KindQuery is any other query failure.
	KindQuery Kind = "query"
)

// schemaMismatchMarker is how graph-node reports an unknown field.
const schemaMismatchMarker = "has no field"

// Banner is the error shown to the user.
type Banner struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (b *Banner) String() string {
	if b == nil {
		return ""
	}
	return b.Message
}

// IsSchemaMismatch reports whether err describes a field missing from the
// deployed schema.
func IsSchemaMismatch(err error) bool {
	if err == nil {
		return false
	}
	var qe *client.QueryError
	if errors.As(err, &qe) {
		return qe.Contains(schemaMismatchMarker)
	}
	return strings.Contains(err.Error(), schemaMismatchMarker)
}

// Retriable reports whether a page error may succeed on a retry. Schema
// mismatches and blocked requests never do.
func Retriable(err error) bool {
	return !IsSchemaMismatch(err) && !errors.Is(err, client.ErrRequestBlocked)
}

// Classify maps an error to a banner kind.
func Classify(err error) Kind {
	if IsSchemaMismatch(err) {
		return KindSchemaMismatch
	}
	return KindQuery
}

// Inputs is everything the banner depends on.
type Inputs struct {
	// Endpoint being queried, used in messages
	Endpoint string
	// ProtocolErr is the error of the protocol detection query
	ProtocolErr error
	// ProtocolFound is true when the protocol query returned any data
	ProtocolFound bool
	// OverviewErr is the pool overview error, if any
	OverviewErr error
	// IndexingFatal is the fatal indexing error of the viewed version
	IndexingFatal string
}

// UnreachableMessage is shown when the endpoint does not serve a subgraph.
func UnreachableMessage(endpoint string) string {
	return fmt.Sprintf("DEPLOYMENT UNREACHABLE - %s is not a valid subgraph endpoint URL. "+
		"If a subgraph namestring was used, make sure that the namestring points to a hosted service "+
		"deployment named using the standard naming convention (for example 'messari/uniswap-v3-ethereum').",
		endpoint)
}

// IndexingMessage is shown when the deployment failed indexing.
func IndexingMessage(endpoint, fatal string) string {
	return fmt.Sprintf("SUBGRAPH DATA UNREACHABLE - %s. INDEXING ERROR - \"%s\".", endpoint, fatal)
}

// Evaluate returns the banner for in, nil when there is nothing to show.
// Later rules override earlier ones:
//  1. a protocol query error is reported as unreachable when no protocol
//     data came back and it is not a schema mismatch, else verbatim;
//  2. an overview error replaces it;
//  3. only when nothing else failed, a fatal indexing error is reported.
//
// A banner is never cleared because some data did load.
func Evaluate(in Inputs) *Banner {
	var b *Banner

	if in.ProtocolErr != nil {
		if !in.ProtocolFound && !IsSchemaMismatch(in.ProtocolErr) {
			b = &Banner{Kind: KindUnreachable, Message: UnreachableMessage(in.Endpoint)}
		} else {
			b = &Banner{Kind: Classify(in.ProtocolErr), Message: in.ProtocolErr.Error()}
		}
	}

	if in.OverviewErr != nil {
		b = &Banner{Kind: Classify(in.OverviewErr), Message: in.OverviewErr.Error()}
	}

	if b == nil && in.IndexingFatal != "" {
		b = &Banner{Kind: KindIndexingFailure, Message: IndexingMessage(in.Endpoint, in.IndexingFatal)}
	}

	return b
}
