package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := map[string]ProtocolType{
		"EXCHANGE":  Exchange,
		"lending":   Lending,
		" Yield ":   Yield,
		"GENERIC":   Generic,
		"BRIDGE":    Unknown,
		"":          Unknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseType(in), "ParseType(%q)", in)
	}
}

func TestProtocolType_Collection(t *testing.T) {
	assert.Equal(t, "liquidityPools", Exchange.Collection())
	assert.Equal(t, "markets", Lending.Collection())
	assert.Equal(t, "vaults", Yield.Collection())
	assert.Equal(t, "pools", Generic.Collection())
	assert.Empty(t, Unknown.Collection())
}

func TestProtocolType_TokenKey(t *testing.T) {
	assert.Equal(t, "inputTokens", Exchange.TokenKey())
	assert.Equal(t, "inputToken", Lending.TokenKey())
	assert.Equal(t, "inputToken", Yield.TokenKey())
	assert.Equal(t, "inputTokens", Generic.TokenKey())
	assert.Equal(t, "inputTokens", Unknown.TokenKey())
}

func TestHasVolumeSnapshots(t *testing.T) {
	assert.True(t, Exchange.HasVolumeSnapshots())
	for _, pt := range []ProtocolType{Lending, Yield, Generic, Unknown} {
		assert.False(t, pt.HasVolumeSnapshots(), string(pt))
	}
}

func TestParseProtocols(t *testing.T) {
	data := json.RawMessage(`{
		"protocols": [{"id":"0x1f98","name":"Uniswap V3","type":"EXCHANGE","network":"MAINNET","schemaVersion":"1.3.0","subgraphVersion":"1.0.2","methodologyVersion":"1.0.0"}],
		"_meta": {"deployment": "QmXyz"}
	}`)

	pd, err := ParseProtocols(data)
	require.NoError(t, err)

	p, ok := pd.First()
	require.True(t, ok)
	assert.Equal(t, "0x1f98", p.ID)
	assert.Equal(t, Exchange, p.ProtocolType())
	assert.Equal(t, "1.3.0", p.SchemaVersion)
	assert.Equal(t, "QmXyz", pd.Meta.Deployment)
}

func TestParseProtocols_Empty(t *testing.T) {
	for _, raw := range []string{"", "null", `{"protocols":[]}`} {
		pd, err := ParseProtocols(json.RawMessage(raw))
		require.NoError(t, err, raw)
		_, ok := pd.First()
		assert.False(t, ok, raw)
	}

	_, err := ParseProtocols(json.RawMessage(`{"protocols": "nope"}`))
	assert.Error(t, err)
}

func TestFallbackProtocol(t *testing.T) {
	p := FallbackProtocol("messari/uniswap-v3-ethereum")
	assert.Equal(t, "uniswap v3", p.Name)
	assert.Equal(t, "ETHEREUM", p.Network)
	assert.Equal(t, "N/A", p.Type)
	assert.Equal(t, "N/A", p.SchemaVersion)
	assert.Equal(t, "N/A", p.SubgraphVersion)

	p = FallbackProtocol("org/aave-polygon")
	assert.Equal(t, "aave", p.Name)
	assert.Equal(t, "POLYGON", p.Network)

	p = FallbackProtocol("")
	assert.Empty(t, p.Name)
	assert.Empty(t, p.Network)
}

func TestAtLeast(t *testing.T) {
	tests := []struct {
		v, min string
		want   bool
	}{
		{"1.3.0", "1.3.0", true},
		{"1.3.1", "1.3.0", true},
		{"1.10.0", "1.3.0", true},
		{"1.2.9", "1.3.0", false},
		{"2.0.0", "1.3.0", true},
		{"", "1.2.0", false},
		{"N/A", "1.2.0", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AtLeast(tt.v, tt.min), "%s >= %s", tt.v, tt.min)
	}
}

func TestPoolOverviewQuery(t *testing.T) {
	q, err := PoolOverviewQuery(Exchange, "1.3.0", 10)
	require.NoError(t, err)
	assert.Contains(t, q, "query Data($skipAmt: Int!)")
	assert.Contains(t, q, "liquidityPools(first: 10, skip: $skipAmt, orderBy: totalValueLockedUSD, orderDirection: desc)")
	assert.Contains(t, q, "totalValueLockedUSD")

	_, err = PoolOverviewQuery(Unknown, "", 10)
	assert.Error(t, err)
}

func TestPoolOverviewQuery_LendingVersions(t *testing.T) {
	newer, err := PoolOverviewQuery(Lending, "1.3.0", 10)
	require.NoError(t, err)
	assert.Contains(t, newer, "markets(first: 10")
	assert.Contains(t, newer, "totalDepositBalanceUSD")
	assert.NotContains(t, newer, "totalDepositUSD\n")

	older, err := PoolOverviewQuery(Lending, "1.2.1", 10)
	require.NoError(t, err)
	assert.Contains(t, older, "totalDepositUSD")
	assert.NotContains(t, older, "totalDepositBalanceUSD")
}

func TestTokenOverlayQuery(t *testing.T) {
	q, err := TokenOverlayQuery(Lending, 10)
	require.NoError(t, err)

	assert.Contains(t, q, "$pool1Id: String")
	assert.Contains(t, q, "$pool10Id: String")
	assert.Contains(t, q, "pool1: market(id: $pool1Id)")
	assert.Contains(t, q, "pool10: market(id: $pool10Id)")
	assert.Contains(t, q, "inputToken {")
	assert.Contains(t, q, "rewardTokens {")
	assert.Equal(t, 10, strings.Count(q, "rewardTokens {"))

	_, err = TokenOverlayQuery(Unknown, 10)
	assert.Error(t, err)
}

func TestSnapshotVolumeQuery(t *testing.T) {
	q := SnapshotVolumeQuery("1.3.0", 3)
	assert.Contains(t, q, "pool3: liquidityPoolDailySnapshots(")
	assert.Contains(t, q, "where: {pool: $pool3Id}")
	assert.Contains(t, q, "dailySupplySideRevenueUSD")
	assert.NotContains(t, q, "pool4")

	old := SnapshotVolumeQuery("1.1.0", 3)
	assert.Contains(t, old, "dailyVolumeUSD")
	assert.NotContains(t, old, "dailySupplySideRevenueUSD")
}

func TestAliasAndVariable(t *testing.T) {
	assert.Equal(t, "pool1", Alias(1))
	assert.Equal(t, "pool10Id", IDVariable(10))
}
