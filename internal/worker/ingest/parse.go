package ingest

import (
	"github.com/bytedance/sonic"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"smart-board/internal/worker/model"
	"smart-board/pkg/utils"
)

// rawTransaction ingest feed 的单笔交易载荷（helius enhanced webhook 形态）
type rawTransaction struct {
	Signature       string              `json:"signature"`
	Timestamp       int64               `json:"timestamp"`
	BlockTime       int64               `json:"blockTime"`
	TokenTransfers  []rawTokenTransfer  `json:"tokenTransfers"`
	NativeTransfers []rawNativeTransfer `json:"nativeTransfers"`
}

type rawTokenTransfer struct {
	Mint            string          `json:"mint"`
	ToUserAccount   string          `json:"toUserAccount"`
	FromUserAccount string          `json:"fromUserAccount"`
	TokenAmount     decimal.Decimal `json:"tokenAmount"`
}

type rawNativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"` // lamports
}

// ParsePayload 解析一次推送，只保留目标 owner 在跟踪名单内的代币转账
//
// 载荷可以是单笔对象也可以是数组。坏记录跳过不报错，解析是全量非抛出的：
// 缺 signature、缺 mint、mint 非法、金额为零、时间戳缺失的记录都丢弃。
// 每个 (signature, wallet, mint) 聚合为一条事件，NativeDelta 取该钱包
// 在这笔交易原生转账里的净额（换币时钱包是出资方，净额为负）。
func ParsePayload(raw []byte, tracked func(string) bool) []model.TransferEvent {
	var txs []rawTransaction
	if err := sonic.Unmarshal(raw, &txs); err != nil {
		var one rawTransaction
		if err := sonic.Unmarshal(raw, &one); err != nil {
			return nil
		}
		txs = []rawTransaction{one}
	}

	var events []model.TransferEvent
	for _, tx := range txs {
		if tx.Signature == "" {
			continue
		}
		blockTime := tx.BlockTime
		if blockTime == 0 {
			blockTime = tx.Timestamp
		}
		if blockTime == 0 {
			continue
		}
		blockTime = utils.NormalizeUnixSeconds(blockTime)

		// 按 (wallet, mint) 聚合同笔交易内的多段转账
		type slot struct {
			wallet string
			mint   string
		}
		amounts := make(map[slot]decimal.Decimal)
		var order []slot
		for _, t := range tx.TokenTransfers {
			if t.ToUserAccount == "" || !tracked(t.ToUserAccount) {
				continue
			}
			if t.TokenAmount.IsZero() {
				continue
			}
			if _, err := solana.PublicKeyFromBase58(t.Mint); err != nil {
				continue
			}
			s := slot{wallet: t.ToUserAccount, mint: t.Mint}
			if _, ok := amounts[s]; !ok {
				order = append(order, s)
			}
			amounts[s] = amounts[s].Add(t.TokenAmount)
		}
		if len(order) == 0 {
			continue
		}

		native := make(map[string]decimal.Decimal)
		for _, n := range tx.NativeTransfers {
			if n.Amount == 0 {
				continue
			}
			sol := utils.LamportsToSol(n.Amount)
			if n.ToUserAccount != "" {
				native[n.ToUserAccount] = native[n.ToUserAccount].Add(sol)
			}
			if n.FromUserAccount != "" {
				native[n.FromUserAccount] = native[n.FromUserAccount].Sub(sol)
			}
		}

		for _, s := range order {
			events = append(events, model.TransferEvent{
				Signature:   tx.Signature,
				BlockTime:   blockTime,
				Wallet:      s.wallet,
				Mint:        s.mint,
				Amount:      amounts[s],
				NativeDelta: native[s.wallet],
			})
		}
	}
	return events
}

// FoldEvents 把 ingest 事件折叠成每个钱包的交易变化序列，供 push 模式重建活动
func FoldEvents(events []model.TransferEvent) map[string][]model.TxDelta {
	type txKey struct {
		wallet    string
		signature string
	}
	grouped := make(map[txKey]*model.TxDelta)
	var order []txKey
	for _, e := range events {
		k := txKey{wallet: e.Wallet, signature: e.Signature}
		d, ok := grouped[k]
		if !ok {
			d = &model.TxDelta{
				Signature:   e.Signature,
				BlockTime:   e.BlockTime,
				NativeDelta: e.NativeDelta,
				TokenDeltas: make(map[string]decimal.Decimal),
			}
			grouped[k] = d
			order = append(order, k)
		}
		d.TokenDeltas[e.Mint] = d.TokenDeltas[e.Mint].Add(e.Amount)
	}

	out := make(map[string][]model.TxDelta)
	for _, k := range order {
		out[k.wallet] = append(out[k.wallet], *grouped[k])
	}
	return out
}
