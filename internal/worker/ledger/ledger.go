package ledger

import (
	"sort"

	"smart-board/internal/worker/model"

	"github.com/shopspring/decimal"
)

// Apply 将一笔交易的余额变化按成本法记入持仓，纯函数、确定性
//
// 规则：
//  1. 按代币余额变化符号把本笔触达的 mint 分为买入侧 / 卖出侧
//  2. SOL 净支出（Δ < 0）按各买入 mint 的数量占比分摊为买入成本；
//     同一笔原子交易买多个代币时这是建模近似，不是逐腿精确归因
//  3. SOL 净收入（Δ > 0）按各卖出 mint 的数量占比分摊为卖出所得
//  4. 卖出最多确认当前持有数量，超出部分不计盈亏、只置 Oversell 标记；
//     没有历史买入的卖出确认数量为 0，避免凭空制造负成本
//
// 返回本笔交易产生的买入记录，供钱包详情与 top mints 排名使用。
func Apply(positions map[string]*model.TokenPosition, d model.TxDelta) []model.BuyRecord {
	var buyMints, sellMints []string
	buyTotal := decimal.Zero
	sellTotal := decimal.Zero
	for mint, amt := range d.TokenDeltas {
		if amt.IsPositive() {
			buyMints = append(buyMints, mint)
			buyTotal = buyTotal.Add(amt)
		} else if amt.IsNegative() {
			sellMints = append(sellMints, mint)
			sellTotal = sellTotal.Add(amt.Neg())
		}
	}
	// map 遍历无序，排序保证分摊与记录顺序确定
	sort.Strings(buyMints)
	sort.Strings(sellMints)

	var buys []model.BuyRecord

	spent := decimal.Zero
	if d.NativeDelta.IsNegative() {
		spent = d.NativeDelta.Neg()
	}
	for _, mint := range buyMints {
		amt := d.TokenDeltas[mint]
		cost := decimal.Zero
		if spent.IsPositive() && buyTotal.IsPositive() {
			cost = spent.Mul(amt).Div(buyTotal)
		}

		p := ensurePosition(positions, mint)
		p.Qty = p.Qty.Add(amt)
		p.CostBasis = p.CostBasis.Add(cost)
		p.BuyCount++
		if p.FirstBuyAt == 0 || d.BlockTime < p.FirstBuyAt {
			p.FirstBuyAt = d.BlockTime
		}
		if d.BlockTime > p.LastTradeAt {
			p.LastTradeAt = d.BlockTime
		}

		buys = append(buys, model.BuyRecord{
			Mint:      mint,
			Amount:    amt,
			Cost:      cost,
			BlockTime: d.BlockTime,
			Signature: d.Signature,
		})
	}

	received := decimal.Zero
	if d.NativeDelta.IsPositive() {
		received = d.NativeDelta
	}
	for _, mint := range sellMints {
		sellAmount := d.TokenDeltas[mint].Neg()
		proceeds := decimal.Zero
		if received.IsPositive() && sellTotal.IsPositive() {
			proceeds = received.Mul(sellAmount).Div(sellTotal)
		}

		p := ensurePosition(positions, mint)
		recognized := decimal.Min(sellAmount, p.Qty)
		if recognized.LessThan(sellAmount) {
			p.Oversell = true
		}

		avgCost := decimal.Zero
		if p.Qty.IsPositive() {
			avgCost = p.CostBasis.Div(p.Qty)
		}
		recognizedCost := avgCost.Mul(recognized)
		// 部分确认时按比例缩减所得
		recognizedProceeds := decimal.Zero
		if sellAmount.IsPositive() {
			recognizedProceeds = proceeds.Mul(recognized).Div(sellAmount)
		}
		realizedDelta := recognizedProceeds.Sub(recognizedCost)

		p.Qty = p.Qty.Sub(recognized)
		p.CostBasis = decimal.Max(decimal.Zero, p.CostBasis.Sub(recognizedCost))
		p.RealizedPnl = p.RealizedPnl.Add(realizedDelta)
		p.SellCount++
		if recognized.IsPositive() {
			p.ClosedTrades++
			if realizedDelta.IsPositive() {
				p.WinningTrades++
			}
		}
		if d.BlockTime > p.LastTradeAt {
			p.LastTradeAt = d.BlockTime
		}
	}

	return buys
}

func ensurePosition(positions map[string]*model.TokenPosition, mint string) *model.TokenPosition {
	p, ok := positions[mint]
	if !ok {
		p = &model.TokenPosition{Mint: mint}
		positions[mint] = p
	}
	return p
}

// Fold 按时间升序折叠一个钱包的全部交易变化
// 成本法的加权平均依赖累积顺序，调用方传入的切片顺序不限，这里统一排序
func Fold(wallet string, deltas []model.TxDelta) *model.WalletActivity {
	sorted := make([]model.TxDelta, len(deltas))
	copy(sorted, deltas)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].BlockTime != sorted[j].BlockTime {
			return sorted[i].BlockTime < sorted[j].BlockTime
		}
		return sorted[i].Signature < sorted[j].Signature
	})

	a := model.NewWalletActivity(wallet)
	for _, d := range sorted {
		a.TxCount++
		a.NativeFlow = a.NativeFlow.Add(d.NativeDelta)
		buys := Apply(a.Positions, d)
		a.RecentBuys = append(a.RecentBuys, buys...)
		if d.BlockTime > a.LastTradeAt {
			a.LastTradeAt = d.BlockTime
		}
	}

	Summarize(a)
	return a
}

// Summarize 由持仓重新汇总钱包级盈亏与胜率（不含未实现部分，价格未知）
func Summarize(a *model.WalletActivity) {
	a.BuyCount = 0
	a.SellCount = 0
	a.ClosedTrades = 0
	a.WinningTrades = 0
	a.RealizedPnl = decimal.Zero
	for _, p := range a.Positions {
		a.BuyCount += p.BuyCount
		a.SellCount += p.SellCount
		a.ClosedTrades += p.ClosedTrades
		a.WinningTrades += p.WinningTrades
		a.RealizedPnl = a.RealizedPnl.Add(p.RealizedPnl)
	}
	if a.ClosedTrades > 0 {
		a.WinRate = float64(a.WinningTrades) / float64(a.ClosedTrades)
	} else {
		a.WinRate = 0
	}
	a.TotalPnl = a.RealizedPnl.Add(a.UnrealizedPnl)
}

// Revalue 用当前价格重算未实现盈亏并刷新汇总
// priceOf 返回 mint 的 SOL 计价，价格未知返回 false，未实现按 0 处理
func Revalue(a *model.WalletActivity, priceOf func(mint string) (decimal.Decimal, bool)) {
	a.UnrealizedPnl = decimal.Zero
	for _, p := range a.Positions {
		p.UnrealizedPnl = decimal.Zero
		if p.Qty.IsPositive() {
			if price, ok := priceOf(p.Mint); ok {
				p.UnrealizedPnl = p.Qty.Mul(price).Sub(p.CostBasis)
			}
		}
		a.UnrealizedPnl = a.UnrealizedPnl.Add(p.UnrealizedPnl)
	}
	a.TotalPnl = a.RealizedPnl.Add(a.UnrealizedPnl)
}
