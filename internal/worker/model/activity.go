package model

import (
	"github.com/shopspring/decimal"
)

// BuyRecord 一次买入记录，用于钱包详情与 top mints 排名
type BuyRecord struct {
	Mint      string          `json:"mint"`
	Amount    decimal.Decimal `json:"amount"`
	Cost      decimal.Decimal `json:"cost"` // SOL
	BlockTime int64           `json:"block_time"`
	Signature string          `json:"signature"`
}

// WalletActivity 单钱包一个采集周期的全部活动，整体重建，不做原地局部修改
type WalletActivity struct {
	Wallet        string                    `json:"wallet"`
	TxCount       int                       `json:"tx_count"`
	NativeFlow    decimal.Decimal           `json:"native_flow"` // 周期内 SOL 净流，带符号
	BuyCount      int                       `json:"buy_count"`
	SellCount     int                       `json:"sell_count"`
	Positions     map[string]*TokenPosition `json:"positions"`
	RecentBuys    []BuyRecord               `json:"recent_buys"`
	RealizedPnl   decimal.Decimal           `json:"realized_pnl"`
	UnrealizedPnl decimal.Decimal           `json:"unrealized_pnl"`
	TotalPnl      decimal.Decimal           `json:"total_pnl"`
	ClosedTrades  int                       `json:"closed_trades"`
	WinningTrades int                       `json:"winning_trades"`
	WinRate       float64                   `json:"win_rate"` // ClosedTrades == 0 时为 0
	LastTradeAt   int64                     `json:"last_trade_at"`
	// Degraded 本周期采集整体失败，回填了零活动记录
	Degraded bool `json:"degraded,omitempty"`
}

// NewWalletActivity 零活动记录
func NewWalletActivity(wallet string) *WalletActivity {
	return &WalletActivity{
		Wallet:    wallet,
		Positions: make(map[string]*TokenPosition),
	}
}

// Clone 深拷贝
// 已发布快照里的活动正被任意读者并发读取，builder 沿用旧活动时必须先拷贝，
// 不能把旧快照的指针带进新一轮构建再原地改写
func (a *WalletActivity) Clone() *WalletActivity {
	if a == nil {
		return nil
	}
	out := *a
	out.Positions = make(map[string]*TokenPosition, len(a.Positions))
	for mint, p := range a.Positions {
		cp := *p
		out.Positions[mint] = &cp
	}
	out.RecentBuys = make([]BuyRecord, len(a.RecentBuys))
	copy(out.RecentBuys, a.RecentBuys)
	return &out
}

// EffectivelyEmpty 没有买入、没有持仓、没有已实现盈亏
// builder 以此判断是否沿用上一周期的数据（防止单钱包采集抖动清空榜单）
func (a *WalletActivity) EffectivelyEmpty() bool {
	if a == nil {
		return true
	}
	return a.BuyCount == 0 && len(a.Positions) == 0 && a.RealizedPnl.IsZero()
}

// UniqueMints 触达过的 mint 数
func (a *WalletActivity) UniqueMints() int {
	seen := make(map[string]struct{}, len(a.Positions))
	for mint := range a.Positions {
		seen[mint] = struct{}{}
	}
	for _, b := range a.RecentBuys {
		seen[b.Mint] = struct{}{}
	}
	return len(seen)
}
