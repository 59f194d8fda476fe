package collector

import (
	"context"
	"time"

	"smart-board/internal/worker/config"
	"smart-board/internal/worker/ledger"
	"smart-board/internal/worker/model"
	"smart-board/internal/worker/monitor"
	"smart-board/pkg/utils"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	maxAttempts  = 3
	retryBackoff = 500 * time.Millisecond
)

// Collector 轮询路径的钱包活动采集
//
// 从链上 RPC 拉最近签名、逐笔取交易、折叠成 WalletActivity。
// 采集永不向调用方返回错误：单笔失败跳过，整体失败降级为零活动并置 Degraded，
// 由 builder 的合并规则决定是否沿用上一份快照里的旧活动。
type Collector struct {
	cfg    config.TrackerConfig
	tl     *zap.Logger
	client *rpc.Client
}

func New(cfg config.TrackerConfig, tl *zap.Logger, client *rpc.Client) *Collector {
	return &Collector{cfg: cfg, tl: tl, client: client}
}

// CollectWallet 重建一个钱包的活动视图
func (c *Collector) CollectWallet(ctx context.Context, wallet string) *model.WalletActivity {
	degraded := model.NewWalletActivity(wallet)
	degraded.Degraded = true

	owner, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		c.tl.Warn("invalid wallet address, degrade to empty activity", zap.String("wallet", wallet))
		return degraded
	}

	sigs, err := c.recentSignatures(ctx, owner)
	if err != nil {
		c.tl.Warn("failed to list signatures, degrade to empty activity",
			zap.String("wallet", wallet), zap.Error(err))
		return degraded
	}

	var deltas []model.TxDelta
	fetched := 0
	for _, sig := range sigs {
		if fetched >= c.cfg.TransactionLimit {
			break
		}
		if sig.Err != nil {
			continue // 链上已失败的交易不计入
		}
		d, ok := c.fetchDelta(ctx, owner, sig.Signature)
		if !ok {
			continue
		}
		fetched++
		if d != nil {
			deltas = append(deltas, *d)
		}
	}

	return ledger.Fold(wallet, deltas)
}

// recentSignatures 拉最近的交易签名，RPC 返回新到旧
func (c *Collector) recentSignatures(ctx context.Context, owner solana.PublicKey) ([]*rpc.TransactionSignature, error) {
	limit := c.cfg.SignatureLimit
	var sigs []*rpc.TransactionSignature
	err := c.withRetry(ctx, func() error {
		var err error
		sigs, err = c.client.GetSignaturesForAddressWithOpts(ctx, owner, &rpc.GetSignaturesForAddressOpts{
			Limit:      &limit,
			Commitment: rpc.CommitmentConfirmed,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return sigs, nil
}

// fetchDelta 取单笔交易并抽取该钱包的余额变化
// 第二个返回值表示取数是否成功；成功但与钱包无关的交易返回 (nil, true)
func (c *Collector) fetchDelta(ctx context.Context, owner solana.PublicKey, sig solana.Signature) (*model.TxDelta, bool) {
	version := uint64(0)
	var result *rpc.GetTransactionResult
	err := c.withRetry(ctx, func() error {
		var err error
		result, err = c.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &version,
		})
		return err
	})
	if err != nil {
		c.tl.Debug("failed to fetch transaction, skip", zap.String("signature", sig.String()), zap.Error(err))
		return nil, false
	}
	if result == nil || result.Meta == nil || result.Meta.Err != nil {
		return nil, true
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, true
	}

	d := ExtractDelta(owner, tx.Message.AccountKeys, result.Meta, sig.String(), blockTimeOf(result))
	if d == nil {
		return nil, true
	}
	return d, true
}

func blockTimeOf(result *rpc.GetTransactionResult) int64 {
	if result.BlockTime == nil {
		return 0
	}
	return utils.NormalizeUnixSeconds(int64(*result.BlockTime))
}

// ExtractDelta 从交易元数据抽取钱包视角的余额变化
//
// 原生余额按钱包在账户表里的下标取 post-pre；代币余额只看 Owner 等于钱包的条目，
// 原始数量按 mint 的 decimals 还原。两边都没变化时返回 nil。
func ExtractDelta(owner solana.PublicKey, accountKeys []solana.PublicKey, meta *rpc.TransactionMeta, signature string, blockTime int64) *model.TxDelta {
	native := decimal.Zero
	for i, key := range accountKeys {
		if !key.Equals(owner) {
			continue
		}
		if i < len(meta.PreBalances) && i < len(meta.PostBalances) {
			pre := utils.LamportsToSol(int64(meta.PreBalances[i]))
			post := utils.LamportsToSol(int64(meta.PostBalances[i]))
			native = post.Sub(pre)
		}
		break
	}

	pre := make(map[string]decimal.Decimal)
	for _, b := range meta.PreTokenBalances {
		if b.Owner == nil || !b.Owner.Equals(owner) || b.UiTokenAmount == nil {
			continue
		}
		amt := utils.RawAmountToDecimal(b.UiTokenAmount.Amount, b.UiTokenAmount.Decimals)
		pre[b.Mint.String()] = pre[b.Mint.String()].Add(amt)
	}
	tokenDeltas := make(map[string]decimal.Decimal)
	for _, b := range meta.PostTokenBalances {
		if b.Owner == nil || !b.Owner.Equals(owner) || b.UiTokenAmount == nil {
			continue
		}
		amt := utils.RawAmountToDecimal(b.UiTokenAmount.Amount, b.UiTokenAmount.Decimals)
		tokenDeltas[b.Mint.String()] = tokenDeltas[b.Mint.String()].Add(amt)
	}
	for mint, preAmt := range pre {
		tokenDeltas[mint] = tokenDeltas[mint].Sub(preAmt)
	}
	for mint, amt := range tokenDeltas {
		if amt.IsZero() {
			delete(tokenDeltas, mint)
		}
	}

	if native.IsZero() && len(tokenDeltas) == 0 {
		return nil
	}
	return &model.TxDelta{
		Signature:   signature,
		BlockTime:   blockTime,
		NativeDelta: native,
		TokenDeltas: tokenDeltas,
	}
}

func (c *Collector) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			monitor.RPCRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}
