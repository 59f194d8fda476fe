package model

import (
	"github.com/shopspring/decimal"
)

// TokenPosition 单钱包单 mint 的持仓与成本，只允许 ledger 按买卖规则更新
// 不变式：Qty 与 CostBasis 永不为负
type TokenPosition struct {
	Mint          string          `json:"mint"`
	Qty           decimal.Decimal `json:"qty"`
	CostBasis     decimal.Decimal `json:"cost_basis"` // SOL 计价
	RealizedPnl   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnl decimal.Decimal `json:"unrealized_pnl"`
	BuyCount      int             `json:"buy_count"`
	SellCount     int             `json:"sell_count"`
	ClosedTrades  int             `json:"closed_trades"`
	WinningTrades int             `json:"winning_trades"`
	FirstBuyAt    int64           `json:"first_buy_at"`
	LastTradeAt   int64           `json:"last_trade_at"`
	// Oversell 卖出数量超过持仓时置位；超出部分不计入盈亏，仅做标记
	Oversell bool `json:"oversell,omitempty"`
}

// AvgCost 当前持仓的加权平均成本，空仓返回 0
func (p *TokenPosition) AvgCost() decimal.Decimal {
	if p.Qty.IsZero() {
		return decimal.Zero
	}
	return p.CostBasis.Div(p.Qty)
}

// TotalPnl 已实现 + 未实现
func (p *TokenPosition) TotalPnl() decimal.Decimal {
	return p.RealizedPnl.Add(p.UnrealizedPnl)
}
