package model

import (
	"github.com/shopspring/decimal"
)

// WalletRank 榜单中的一行钱包
type WalletRank struct {
	Rank          int             `json:"rank"`
	Wallet        string          `json:"wallet"`
	TotalPnl      decimal.Decimal `json:"total_pnl"`
	RealizedPnl   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnl decimal.Decimal `json:"unrealized_pnl"`
	WinRate       float64         `json:"win_rate"`
	BuyCount      int             `json:"buy_count"`
	UniqueMints   int             `json:"unique_mints"`
	ClosedTrades  int             `json:"closed_trades"`
	LastTradeAt   int64           `json:"last_trade_at"`
}

// MintRank 榜单中的一行代币
type MintRank struct {
	Rank         int             `json:"rank"`
	Mint         string          `json:"mint"`
	Symbol       string          `json:"symbol"`
	Logo         string          `json:"logo"`
	Held         bool            `json:"held"`       // 当前仍被至少一个钱包持有
	RecentBuy    bool            `json:"recent_buy"` // 近窗口内被买入过
	WalletCount  int             `json:"wallet_count"`
	BuyCount     int             `json:"buy_count"`
	LastTradeAt  int64           `json:"last_trade_at"`
	PriceUsd     decimal.Decimal `json:"price_usd"`
	LiquidityUsd decimal.Decimal `json:"liquidity_usd"`
	Volume24hUsd decimal.Decimal `json:"volume_24h_usd"`
}

// SnapshotStats 聚合统计
type SnapshotStats struct {
	WalletTotal    int             `json:"wallet_total"`
	WalletActive   int             `json:"wallet_active"`   // 非空活动钱包数
	WalletDegraded int             `json:"wallet_degraded"` // 本周期采集失败钱包数
	MintTotal      int             `json:"mint_total"`
	TotalPnl       decimal.Decimal `json:"total_pnl"`
	NativePriceUsd decimal.Decimal `json:"native_price_usd"` // 构建时的 SOL/USD，取不到为零
	TotalPnlUsd    decimal.Decimal `json:"total_pnl_usd"`
	BuildDurMs     int64           `json:"build_dur_ms"`
}

// Snapshot 一次完整构建出的榜单快照，发布后不可变，可被任意并发读取
type Snapshot struct {
	Timestamp  int64                      `json:"timestamp"` // 毫秒
	Wallets    []string                   `json:"wallets"`
	Activities map[string]*WalletActivity `json:"activities"`
	TokenMeta  map[string]*TokenMeta      `json:"token_meta"`
	TopWallets []WalletRank               `json:"top_wallets"`
	TopMints   []MintRank                 `json:"top_mints"`
	Stats      SnapshotStats              `json:"stats"`
}

// RowCount 钱包榜 + 代币榜总行数，collapse guard 以此衡量快照规模
func (s *Snapshot) RowCount() int {
	if s == nil {
		return 0
	}
	return len(s.TopWallets) + len(s.TopMints)
}

// Activity 按钱包取活动，不存在返回 nil
func (s *Snapshot) Activity(wallet string) *WalletActivity {
	if s == nil || s.Activities == nil {
		return nil
	}
	return s.Activities[wallet]
}
