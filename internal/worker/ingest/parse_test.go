package ingest

import (
	"testing"

	"github.com/shopspring/decimal"
)

const (
	testMint  = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testMint2 = "So11111111111111111111111111111111111111112"
)

func trackedSet(wallets ...string) func(string) bool {
	set := make(map[string]struct{}, len(wallets))
	for _, w := range wallets {
		set[w] = struct{}{}
	}
	return func(a string) bool {
		_, ok := set[a]
		return ok
	}
}

func TestParsePayloadArray(t *testing.T) {
	payload := []byte(`[{
		"signature": "sig1",
		"timestamp": 1700000000,
		"tokenTransfers": [
			{"mint": "` + testMint + `", "toUserAccount": "walletA", "fromUserAccount": "pool", "tokenAmount": 5},
			{"mint": "` + testMint + `", "toUserAccount": "walletB", "fromUserAccount": "pool", "tokenAmount": 7}
		],
		"nativeTransfers": [
			{"fromUserAccount": "walletA", "toUserAccount": "pool", "amount": 1000000000}
		]
	}]`)

	events := ParsePayload(payload, trackedSet("walletA"))
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	e := events[0]
	if e.Wallet != "walletA" || e.Mint != testMint || e.Signature != "sig1" {
		t.Fatalf("event = %+v", e)
	}
	if !e.Amount.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("amount = %s, want 5", e.Amount)
	}
	// walletA 出了 1 SOL
	if !e.NativeDelta.Equal(decimal.NewFromInt(-1)) {
		t.Fatalf("native delta = %s, want -1", e.NativeDelta)
	}
	if e.BlockTime != 1700000000 {
		t.Fatalf("block time = %d", e.BlockTime)
	}
}

func TestParsePayloadSingleObject(t *testing.T) {
	payload := []byte(`{
		"signature": "sig1",
		"blockTime": 1700000000,
		"tokenTransfers": [
			{"mint": "` + testMint + `", "toUserAccount": "walletA", "tokenAmount": 3}
		]
	}`)

	events := ParsePayload(payload, trackedSet("walletA"))
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
}

func TestParsePayloadDropsBadRecords(t *testing.T) {
	cases := map[string][]byte{
		"garbage":        []byte(`{{{not json`),
		"no signature":   []byte(`[{"timestamp": 1, "tokenTransfers": [{"mint": "` + testMint + `", "toUserAccount": "walletA", "tokenAmount": 1}]}]`),
		"no timestamp":   []byte(`[{"signature": "s", "tokenTransfers": [{"mint": "` + testMint + `", "toUserAccount": "walletA", "tokenAmount": 1}]}]`),
		"invalid mint":   []byte(`[{"signature": "s", "timestamp": 1, "tokenTransfers": [{"mint": "not-a-mint", "toUserAccount": "walletA", "tokenAmount": 1}]}]`),
		"zero amount":    []byte(`[{"signature": "s", "timestamp": 1, "tokenTransfers": [{"mint": "` + testMint + `", "toUserAccount": "walletA", "tokenAmount": 0}]}]`),
		"untracked dest": []byte(`[{"signature": "s", "timestamp": 1, "tokenTransfers": [{"mint": "` + testMint + `", "toUserAccount": "stranger", "tokenAmount": 1}]}]`),
	}
	for name, payload := range cases {
		if events := ParsePayload(payload, trackedSet("walletA")); len(events) != 0 {
			t.Fatalf("%s: events = %+v, want none", name, events)
		}
	}
}

func TestParsePayloadAggregatesLegsPerMint(t *testing.T) {
	payload := []byte(`[{
		"signature": "sig1",
		"timestamp": 1700000000,
		"tokenTransfers": [
			{"mint": "` + testMint + `", "toUserAccount": "walletA", "tokenAmount": 2},
			{"mint": "` + testMint + `", "toUserAccount": "walletA", "tokenAmount": 3},
			{"mint": "` + testMint2 + `", "toUserAccount": "walletA", "tokenAmount": 1}
		]
	}]`)

	events := ParsePayload(payload, trackedSet("walletA"))
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	byMint := make(map[string]decimal.Decimal)
	for _, e := range events {
		byMint[e.Mint] = e.Amount
	}
	if !byMint[testMint].Equal(decimal.NewFromInt(5)) {
		t.Fatalf("aggregated amount = %s, want 5", byMint[testMint])
	}
}

func TestFoldEventsGroupsBySignature(t *testing.T) {
	events := ParsePayload([]byte(`[
		{"signature": "s1", "timestamp": 100, "tokenTransfers": [{"mint": "`+testMint+`", "toUserAccount": "walletA", "tokenAmount": 5}]},
		{"signature": "s2", "timestamp": 200, "tokenTransfers": [{"mint": "`+testMint+`", "toUserAccount": "walletA", "tokenAmount": 7}]}
	]`), trackedSet("walletA"))

	byWallet := FoldEvents(events)
	deltas := byWallet["walletA"]
	if len(deltas) != 2 {
		t.Fatalf("deltas = %d, want 2", len(deltas))
	}
	for _, d := range deltas {
		if len(d.TokenDeltas) != 1 {
			t.Fatalf("token deltas = %+v", d.TokenDeltas)
		}
	}
}
