package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"smart-board/internal/worker/config"
	"smart-board/internal/worker/market"
	"smart-board/internal/worker/model"
	"smart-board/internal/worker/registry"
	"smart-board/internal/worker/snapcache"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestMissingWalletMints(t *testing.T) {
	snap := &model.Snapshot{
		TokenMeta: map[string]*model.TokenMeta{
			"KNOWN": {Mint: "KNOWN"},
		},
	}
	a := model.NewWalletActivity("w1")
	a.Positions["KNOWN"] = &model.TokenPosition{Mint: "KNOWN"}
	a.Positions["B"] = &model.TokenPosition{Mint: "B"}
	a.Positions["A"] = &model.TokenPosition{Mint: "A"}
	// B 在持仓和近期买入里都出现，只算一次
	a.RecentBuys = []model.BuyRecord{{Mint: "B"}, {Mint: "C"}}

	got := missingWalletMints(snap, a, walletMetaBatchCap)
	want := []string{"A", "B", "C"}
	if len(got) != len(want) {
		t.Fatalf("missing = %v, want %v", got, want)
	}
	for i, mint := range want {
		if got[i] != mint {
			t.Fatalf("missing[%d] = %s, want %s", i, got[i], mint)
		}
	}

	if capped := missingWalletMints(snap, a, 2); len(capped) != 2 || capped[0] != "A" || capped[1] != "B" {
		t.Fatalf("capped missing = %v, want [A B]", capped)
	}
}

func TestHandleWalletDegradesOnLookupFailure(t *testing.T) {
	reg := registry.New(config.TrackerConfig{Wallets: []string{"w1"}}, zap.NewNop(), nil)
	cache := snapcache.New(config.CacheConfig{
		FreshSeconds: 300, DiskPath: t.TempDir(),
		MinPrevRows: 20, MinRowFloor: 8, CollapseRatio: 0.45,
	}, zap.NewNop(), nil, "board")
	// 上游行情不可达，补查应静默降级而不是失败
	mkt := market.NewClient(config.MarketConfig{BaseURL: "http://127.0.0.1:1", RateLimit: 6000, Timeout: 1}, zap.NewNop(), nil)

	a := model.NewWalletActivity("w1")
	a.Positions["KNOWN"] = &model.TokenPosition{Mint: "KNOWN", Qty: decimal.NewFromInt(1)}
	a.Positions["MISSING"] = &model.TokenPosition{Mint: "MISSING", Qty: decimal.NewFromInt(1)}
	snap := &model.Snapshot{
		Timestamp:  time.Now().UnixMilli(),
		Wallets:    []string{"w1"},
		Activities: map[string]*model.WalletActivity{"w1": a},
		TokenMeta:  map[string]*model.TokenMeta{"KNOWN": {Mint: "KNOWN", Symbol: "KN"}},
		TopWallets: []model.WalletRank{{Rank: 1, Wallet: "w1"}},
	}
	if !cache.Publish(context.Background(), snap) {
		t.Fatal("publish rejected")
	}

	s := NewServer(config.APIConfig{Addr: "127.0.0.1:0"}, zap.NewNop(), cache, nil, reg, nil, mkt)

	req := httptest.NewRequest("GET", "/api/v1/wallets/w1", nil)
	req.SetPathValue("address", "w1")
	rec := httptest.NewRecorder()
	s.handleWallet(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		TokenMeta map[string]model.TokenMeta `json:"token_meta"`
	}
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.TokenMeta) != 1 {
		t.Fatalf("token_meta = %v, want only snapshot-sourced entry", resp.TokenMeta)
	}
	if resp.TokenMeta["KNOWN"].Symbol != "KN" {
		t.Fatalf("KNOWN meta = %+v", resp.TokenMeta["KNOWN"])
	}
}

func httpHandlerTokens(t *testing.T, payload string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	})
}

func TestHandleWalletResolvesMissingMeta(t *testing.T) {
	reg := registry.New(config.TrackerConfig{Wallets: []string{"w1"}}, zap.NewNop(), nil)
	cache := snapcache.New(config.CacheConfig{
		FreshSeconds: 300, DiskPath: t.TempDir(),
		MinPrevRows: 20, MinRowFloor: 8, CollapseRatio: 0.45,
	}, zap.NewNop(), nil, "board")

	upstream := httptest.NewServer(httpHandlerTokens(t, `{"data":[{"address":"MISSING","symbol":"MS"}]}`))
	defer upstream.Close()
	mkt := market.NewClient(config.MarketConfig{BaseURL: upstream.URL, RateLimit: 6000, Timeout: 2}, zap.NewNop(), nil)

	a := model.NewWalletActivity("w1")
	a.Positions["MISSING"] = &model.TokenPosition{Mint: "MISSING", Qty: decimal.NewFromInt(1)}
	snap := &model.Snapshot{
		Timestamp:  time.Now().UnixMilli(),
		Wallets:    []string{"w1"},
		Activities: map[string]*model.WalletActivity{"w1": a},
		TokenMeta:  map[string]*model.TokenMeta{},
		TopWallets: []model.WalletRank{{Rank: 1, Wallet: "w1"}},
	}
	if !cache.Publish(context.Background(), snap) {
		t.Fatal("publish rejected")
	}

	s := NewServer(config.APIConfig{Addr: "127.0.0.1:0"}, zap.NewNop(), cache, nil, reg, nil, mkt)

	req := httptest.NewRequest("GET", "/api/v1/wallets/w1", nil)
	req.SetPathValue("address", "w1")
	rec := httptest.NewRecorder()
	s.handleWallet(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		TokenMeta map[string]model.TokenMeta `json:"token_meta"`
	}
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TokenMeta["MISSING"].Symbol != "MS" {
		t.Fatalf("MISSING meta = %+v, want on-demand resolved", resp.TokenMeta["MISSING"])
	}
}
