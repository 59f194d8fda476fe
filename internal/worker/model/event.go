package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TransferEvent 一次交易中归属某钱包的单个代币余额变化（ingest feed 推送）
// 入库后不可变，身份键为 (signature, wallet, mint)
type TransferEvent struct {
	Signature   string          `json:"signature"`
	BlockTime   int64           `json:"block_time"` // 秒级时间戳
	Wallet      string          `json:"wallet"`
	Mint        string          `json:"mint"`
	Amount      decimal.Decimal `json:"amount"`       // 代币余额变化，带符号
	NativeDelta decimal.Decimal `json:"native_delta"` // SOL 余额变化，带符号
}

// Key 去重键
func (e TransferEvent) Key() string {
	return fmt.Sprintf("%s:%s:%s", e.Signature, e.Wallet, e.Mint)
}

// TxDelta 单笔交易对某钱包的影响：一个 SOL 净变化 + 每 mint 的代币余额变化
type TxDelta struct {
	Signature   string
	BlockTime   int64 // 秒级时间戳
	NativeDelta decimal.Decimal
	TokenDeltas map[string]decimal.Decimal
}
