// Package schema detects the protocol a subgraph indexes and builds the
// GraphQL queries that match its schema type and version.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"
)

// ProtocolType is the protocol category reported by the protocols entity.
type ProtocolType string

const (
	Exchange ProtocolType = "EXCHANGE"
	Lending  ProtocolType = "LENDING"
	Yield    ProtocolType = "YIELD"
	Generic  ProtocolType = "GENERIC"

	// Unknown is used when the endpoint reports no protocol.
	Unknown ProtocolType = "N/A"
)

// PoolNames maps a protocol type to its pool collection.
var PoolNames = map[ProtocolType]string{
	Exchange: "liquidityPools",
	Lending:  "markets",
	Yield:    "vaults",
	Generic:  "pools",
}

// poolEntity is the singular entity name used for lookups by id.
var poolEntity = map[ProtocolType]string{
	Exchange: "liquidityPool",
	Lending:  "market",
	Yield:    "vault",
	Generic:  "pool",
}

// ParseType normalizes a reported type; unrecognised values map to Unknown.
func ParseType(s string) ProtocolType {
	t := ProtocolType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := PoolNames[t]; ok {
		return t
	}
	return Unknown
}

// Collection returns the pool collection name for t, "" when unknown.
func (t ProtocolType) Collection() string {
	return PoolNames[t]
}

// TokenKey is the field holding a pool's input token(s).
// Lending markets and yield vaults have a single input token.
func (t ProtocolType) TokenKey() string {
	if t == Lending || t == Yield {
		return "inputToken"
	}
	return "inputTokens"
}

// HasVolumeSnapshots reports whether pools of t carry daily volume.
func (t ProtocolType) HasVolumeSnapshots() bool {
	return t == Exchange
}

// ProtocolQuery selects the protocol entity and the deployment id.
const ProtocolQuery = `{
  protocols {
    type
    schemaVersion
    subgraphVersion
    methodologyVersion
    name
    id
    network
  }
  _meta {
    deployment
  }
}`

// Protocol is one entry of the protocols collection.
type Protocol struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Type               string `json:"type"`
	Network            string `json:"network"`
	SchemaVersion      string `json:"schemaVersion"`
	SubgraphVersion    string `json:"subgraphVersion"`
	MethodologyVersion string `json:"methodologyVersion,omitempty"`
}

// ProtocolType returns the normalized type.
func (p Protocol) ProtocolType() ProtocolType {
	return ParseType(p.Type)
}

// ProtocolData is the decoded result of ProtocolQuery.
type ProtocolData struct {
	Protocols []Protocol `json:"protocols"`
	Meta      struct {
		Deployment string `json:"deployment"`
	} `json:"_meta"`
}

// First returns the first protocol, if any.
func (d *ProtocolData) First() (Protocol, bool) {
	if d == nil || len(d.Protocols) == 0 {
		return Protocol{}, false
	}
	return d.Protocols[0], true
}

// ParseProtocols decodes the data object of a ProtocolQuery response.
func ParseProtocols(data json.RawMessage) (*ProtocolData, error) {
	var out ProtocolData
	if len(data) == 0 || string(data) == "null" {
		return &out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode protocols: %w", err)
	}
	return &out, nil
}

// FallbackProtocol derives a placeholder protocol from a subgraph name such
// as "messari/uniswap-v3-ethereum": the last dash-separated part is the
// network, the rest the name.
func FallbackProtocol(subgraphName string) Protocol {
	p := Protocol{
		Type:            string(Unknown),
		SchemaVersion:   "N/A",
		SubgraphVersion: "N/A",
	}

	parts := strings.Split(subgraphName, "/")
	if len(parts) < 2 {
		return p
	}
	words := strings.Split(parts[1], "-")
	p.Network = strings.ToUpper(words[len(words)-1])
	p.Name = strings.Join(words[:len(words)-1], " ")
	return p
}

// AtLeast reports whether schemaVersion >= min. Unparsable versions
// compare as older.
func AtLeast(schemaVersion, min string) bool {
	v, err := version.NewVersion(strings.TrimSpace(schemaVersion))
	if err != nil {
		return false
	}
	m, err := version.NewVersion(min)
	if err != nil {
		return false
	}
	return v.GreaterThanOrEqual(m)
}
