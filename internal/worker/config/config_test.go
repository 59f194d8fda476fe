package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.worker.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestInitConfigFrom(t *testing.T) {
	dir := writeTestConfig(t, `
log:
  level: debug
redis:
  address: 127.0.0.1:6379
tracker:
  source: push
  wallets:
    - walletA
    - walletB
  signature_limit: 40
cache:
  min_prev_rows: 25
`)

	cfg := InitConfigFrom(dir)
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level = %s", cfg.Log.Level)
	}
	if cfg.Tracker.Source != "push" || len(cfg.Tracker.Wallets) != 2 {
		t.Fatalf("tracker = %+v", cfg.Tracker)
	}
	if cfg.Cache.MinPrevRows != 25 {
		t.Fatalf("min prev rows = %d", cfg.Cache.MinPrevRows)
	}
}

func TestDefaultsApplied(t *testing.T) {
	dir := writeTestConfig(t, "log:\n  level: info\n")

	cfg := InitConfigFrom(dir)
	if cfg.Tracker.Source != "poll" {
		t.Fatalf("source = %s, want poll", cfg.Tracker.Source)
	}
	if cfg.Tracker.WalletConcurrency != 8 || cfg.Tracker.SignatureLimit != 50 {
		t.Fatalf("tracker defaults = %+v", cfg.Tracker)
	}
	if cfg.Cache.MinPrevRows != 20 || cfg.Cache.MinRowFloor != 8 || cfg.Cache.CollapseRatio != 0.45 {
		t.Fatalf("cache defaults = %+v", cfg.Cache)
	}
	if cfg.Refresh.LockTTLSeconds != 120 {
		t.Fatalf("refresh defaults = %+v", cfg.Refresh)
	}
}

func TestTransactionLimitCappedBySignatureLimit(t *testing.T) {
	dir := writeTestConfig(t, `
tracker:
  signature_limit: 30
  transaction_limit: 100
`)

	cfg := InitConfigFrom(dir)
	if cfg.Tracker.TransactionLimit != 30 {
		t.Fatalf("transaction limit = %d, want capped to 30", cfg.Tracker.TransactionLimit)
	}
}
