package registry

import (
	"testing"

	"smart-board/internal/worker/config"

	"go.uber.org/zap"
)

func TestStaticListDedup(t *testing.T) {
	r := New(config.TrackerConfig{Wallets: []string{"w1", "w2", "w1", ""}}, zap.NewNop(), nil)

	if r.Size() != 2 {
		t.Fatalf("size = %d, want 2", r.Size())
	}
	if !r.Contains("w1") || !r.Contains("w2") {
		t.Fatal("tracked wallets missing")
	}
	if r.Contains("") || r.Contains("w3") {
		t.Fatal("untracked address reported as tracked")
	}
}

func TestListReturnsCopy(t *testing.T) {
	r := New(config.TrackerConfig{Wallets: []string{"w1", "w2"}}, zap.NewNop(), nil)

	list := r.List()
	list[0] = "mutated"
	if r.List()[0] == "mutated" {
		t.Fatal("List exposed internal slice")
	}
}
