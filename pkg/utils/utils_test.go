package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeUnixSeconds(t *testing.T) {
	if got := NormalizeUnixSeconds(1700000000); got != 1700000000 {
		t.Fatalf("seconds passthrough = %d", got)
	}
	if got := NormalizeUnixSeconds(1700000000123); got != 1700000000 {
		t.Fatalf("millis normalized = %d, want 1700000000", got)
	}
}

func TestRawAmountToDecimal(t *testing.T) {
	if got := RawAmountToDecimal("101000000", 6); !got.Equal(decimal.NewFromInt(101)) {
		t.Fatalf("raw amount = %s, want 101", got)
	}
	if got := RawAmountToDecimal("not-a-number", 6); !got.IsZero() {
		t.Fatalf("bad raw amount = %s, want 0", got)
	}
}

func TestLamportsToSol(t *testing.T) {
	if got := LamportsToSol(1_500_000_000); !got.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("lamports = %s, want 1.5", got)
	}
	if got := LamportsToSol(-1_000_000_000); !got.Equal(decimal.NewFromInt(-1)) {
		t.Fatalf("negative lamports = %s, want -1", got)
	}
}
