package model

import (
	"github.com/shopspring/decimal"
)

// TokenMeta 行情服务返回的代币元数据，允许部分字段缺失
type TokenMeta struct {
	Mint         string          `json:"mint"`
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	Logo         string          `json:"logo"`
	PriceNative  decimal.Decimal `json:"price_native"` // SOL 计价
	PriceUsd     decimal.Decimal `json:"price_usd"`
	LiquidityUsd decimal.Decimal `json:"liquidity_usd"`
	Volume24hUsd decimal.Decimal `json:"volume_24h_usd"`
}
