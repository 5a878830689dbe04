package schema

import (
	"fmt"
	"strings"
)

// Alias returns the response alias of the n-th (1-based) pool in an
// overlay query.
func Alias(n int) string {
	return fmt.Sprintf("pool%d", n)
}

// IDVariable returns the variable carrying the id of the n-th pool.
func IDVariable(n int) string {
	return fmt.Sprintf("pool%dId", n)
}

// pool fields shared by every schema version, per protocol type
var overviewFields = map[ProtocolType][]string{
	Exchange: {
		"id", "name", "totalValueLockedUSD", "cumulativeVolumeUSD",
		"inputTokenBalances", "outputTokenSupply", "stakedOutputTokenAmount",
		"rewardTokenEmissionsUSD", "createdTimestamp",
	},
	Yield: {
		"id", "name", "symbol", "totalValueLockedUSD", "inputTokenBalance",
		"outputTokenSupply", "pricePerShare", "stakedOutputTokenAmount",
		"rewardTokenEmissionsUSD", "createdTimestamp",
	},
	Generic: {
		"id", "name", "totalValueLockedUSD", "cumulativeSupplySideRevenueUSD",
		"cumulativeProtocolSideRevenueUSD", "createdTimestamp",
	},
}

// lendingFields returns market fields; balance fields were renamed in 1.3.0.
func lendingFields(schemaVersion string) []string {
	fields := []string{
		"id", "name", "totalValueLockedUSD", "inputTokenBalance",
		"rewardTokenEmissionsUSD", "createdTimestamp",
	}
	if AtLeast(schemaVersion, "1.3.0") {
		return append(fields, "totalDepositBalanceUSD", "totalBorrowBalanceUSD",
			"cumulativeDepositUSD", "cumulativeBorrowUSD", "rates { rate side type }")
	}
	return append(fields, "totalDepositUSD", "totalBorrowUSD",
		"depositRate", "variableBorrowRate", "stableBorrowRate")
}

// PoolOverviewQuery returns the paged pool query for t. The query takes a
// single $skipAmt variable and orders pools by locked value, descending.
func PoolOverviewQuery(t ProtocolType, schemaVersion string, pageSize int) (string, error) {
	collection := t.Collection()
	if collection == "" {
		return "", fmt.Errorf("no pool collection for protocol type %q", t)
	}

	fields := overviewFields[t]
	if t == Lending {
		fields = lendingFields(schemaVersion)
	}

	var b strings.Builder
	b.WriteString("query Data($skipAmt: Int!) {\n")
	fmt.Fprintf(&b, "  %s(first: %d, skip: $skipAmt, orderBy: totalValueLockedUSD, orderDirection: desc) {\n",
		collection, pageSize)
	for _, f := range fields {
		b.WriteString("    ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	b.WriteString("  }\n}")
	return b.String(), nil
}

// TokenOverlayQuery looks up size pools by id and selects their input and
// reward tokens under aliases pool1..pool{size}.
func TokenOverlayQuery(t ProtocolType, size int) (string, error) {
	entity := poolEntity[t]
	if entity == "" {
		return "", fmt.Errorf("no pool entity for protocol type %q", t)
	}

	var b strings.Builder
	b.WriteString("query Tokens(")
	writeIDParams(&b, size)
	b.WriteString(") {\n")
	for n := 1; n <= size; n++ {
		fmt.Fprintf(&b, "  %s: %s(id: $%s) {\n", Alias(n), entity, IDVariable(n))
		fmt.Fprintf(&b, "    %s {\n      id\n      name\n      symbol\n      decimals\n    }\n", t.TokenKey())
		b.WriteString("    rewardTokens {\n      id\n      type\n      token {\n        id\n        name\n        symbol\n        decimals\n      }\n    }\n")
		b.WriteString("  }\n")
	}
	b.WriteString("}")
	return b.String(), nil
}

// SnapshotVolumeQuery selects the latest daily snapshot of size liquidity
// pools. dailySupplySideRevenueUSD exists from schema 1.2.0 on.
func SnapshotVolumeQuery(schemaVersion string, size int) string {
	fields := "dailyVolumeUSD\n      timestamp"
	if AtLeast(schemaVersion, "1.2.0") {
		fields = "dailyVolumeUSD\n      dailySupplySideRevenueUSD\n      timestamp"
	}

	var b strings.Builder
	b.WriteString("query Snapshots(")
	writeIDParams(&b, size)
	b.WriteString(") {\n")
	for n := 1; n <= size; n++ {
		fmt.Fprintf(&b, "  %s: liquidityPoolDailySnapshots(first: 1, orderBy: timestamp, orderDirection: desc, where: {pool: $%s}) {\n      %s\n  }\n",
			Alias(n), IDVariable(n), fields)
	}
	b.WriteString("}")
	return b.String()
}

func writeIDParams(b *strings.Builder, size int) {
	for n := 1; n <= size; n++ {
		if n > 1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "$%s: String", IDVariable(n))
	}
}
