package builder

import (
	"context"
	"sort"
	"sync"
	"time"

	"smart-board/internal/worker/collector"
	"smart-board/internal/worker/config"
	"smart-board/internal/worker/ingest"
	"smart-board/internal/worker/ledger"
	"smart-board/internal/worker/market"
	"smart-board/internal/worker/model"
	"smart-board/internal/worker/monitor"
	"smart-board/internal/worker/registry"
	"smart-board/internal/worker/snapcache"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Builder 快照构建器
//
// 一次构建：采集全部钱包活动（poll 拉链 / push 折叠推送事件）、
// 与上一份快照逐钱包合并、取行情重估未实现盈亏、排两张榜、过防护发布。
// 进程内同一时刻只跑一次构建，并发调用共享同一个在途结果。
type Builder struct {
	cfg    config.TrackerConfig
	tl     *zap.Logger
	reg    *registry.Registry
	coll   *collector.Collector
	store  *ingest.Store
	market *market.Client
	cache  *snapcache.Cache
	now    func() time.Time

	mu       sync.Mutex
	inflight *buildFuture
}

type buildFuture struct {
	done chan struct{}
	snap *model.Snapshot
	err  error
}

func New(cfg config.TrackerConfig, tl *zap.Logger, reg *registry.Registry,
	coll *collector.Collector, store *ingest.Store, mkt *market.Client, cache *snapcache.Cache) *Builder {
	return &Builder{
		cfg:    cfg,
		tl:     tl,
		reg:    reg,
		coll:   coll,
		store:  store,
		market: mkt,
		cache:  cache,
		now:    time.Now,
	}
}

// BuildAndPublish 构建并发布快照
// 已有在途构建时等它完成并共享结果，不触发第二次
func (b *Builder) BuildAndPublish(ctx context.Context) (*model.Snapshot, error) {
	b.mu.Lock()
	if f := b.inflight; f != nil {
		b.mu.Unlock()
		select {
		case <-f.done:
			return f.snap, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f := &buildFuture{done: make(chan struct{})}
	b.inflight = f
	b.mu.Unlock()

	f.snap, f.err = b.build(ctx)

	b.mu.Lock()
	b.inflight = nil
	b.mu.Unlock()
	close(f.done)
	return f.snap, f.err
}

func (b *Builder) build(ctx context.Context) (*model.Snapshot, error) {
	start := b.now()
	defer func() {
		monitor.SnapshotBuildDuration.Observe(time.Since(start).Seconds())
	}()

	prev := b.cache.Current(ctx)
	wallets := b.reg.List()

	activities := b.collectAll(ctx, wallets)
	degraded := b.mergeWithPrevious(activities, prev)

	windowStart := start.Add(-time.Duration(b.cfg.RecentBuyWindowMin) * time.Minute).Unix()
	for _, a := range activities {
		trimRecentBuys(a, windowStart)
	}

	mints := gatherMints(activities)
	metaByMint := b.market.GetTokenMeta(ctx, mints)
	tokenMeta := make(map[string]*model.TokenMeta, len(metaByMint))
	for mint := range metaByMint {
		meta := metaByMint[mint]
		tokenMeta[mint] = &meta
	}

	priceOf := func(mint string) (decimal.Decimal, bool) {
		meta, ok := metaByMint[mint]
		if !ok || !meta.PriceNative.IsPositive() {
			return decimal.Zero, false
		}
		return meta.PriceNative, true
	}
	for _, a := range activities {
		ledger.Revalue(a, priceOf)
	}

	snap := &model.Snapshot{
		Timestamp:  start.UnixMilli(),
		Wallets:    wallets,
		Activities: activities,
		TokenMeta:  tokenMeta,
		TopWallets: rankWallets(wallets, activities),
		TopMints:   b.rankMints(activities, metaByMint, windowStart),
	}
	snap.Stats = b.stats(snap, degraded, time.Since(start))
	// 盈亏以 SOL 计价，行情可用时顺带给一份 USD 口径
	if price, ok := b.market.NativePriceUsd(ctx); ok {
		snap.Stats.NativePriceUsd = price
		snap.Stats.TotalPnlUsd = snap.Stats.TotalPnl.Mul(price)
	}

	monitor.WalletsCollected.Set(float64(len(wallets)))
	monitor.WalletsDegraded.Set(float64(degraded))

	if !b.cache.Publish(ctx, snap) {
		// 防护拒绝不是错误，继续供上一份
		return prev, nil
	}
	b.tl.Info("snapshot published",
		zap.Int("wallets", len(wallets)),
		zap.Int("degraded", degraded),
		zap.Int("top_wallets", len(snap.TopWallets)),
		zap.Int("top_mints", len(snap.TopMints)),
		zap.Duration("took", time.Since(start)))
	return snap, nil
}

// collectAll 按配置的来源重建全部钱包活动
func (b *Builder) collectAll(ctx context.Context, wallets []string) map[string]*model.WalletActivity {
	activities := make(map[string]*model.WalletActivity, len(wallets))

	if b.cfg.Source == "push" {
		byWallet := ingest.FoldEvents(b.store.Read())
		for _, w := range wallets {
			activities[w] = ledger.Fold(w, byWallet[w])
		}
		return activities
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(b.cfg.WalletConcurrency)
	for _, w := range wallets {
		wallet := w
		p.Go(func() {
			a := b.coll.CollectWallet(ctx, wallet)
			mu.Lock()
			activities[wallet] = a
			mu.Unlock()
		})
	}
	p.Wait()
	return activities
}

// mergeWithPrevious 本周期实质为空的钱包沿用上一份快照的活动，返回降级钱包数
func (b *Builder) mergeWithPrevious(activities map[string]*model.WalletActivity, prev *model.Snapshot) int {
	degraded := 0
	for wallet, a := range activities {
		if a.Degraded {
			degraded++
		}
		if !a.EffectivelyEmpty() {
			continue
		}
		// 旧快照仍在被并发读取，拷贝后才能进入本轮的裁剪与重估
		if old := prev.Activity(wallet); !old.EffectivelyEmpty() {
			activities[wallet] = old.Clone()
		}
	}
	return degraded
}

func trimRecentBuys(a *model.WalletActivity, windowStart int64) {
	kept := a.RecentBuys[:0]
	for _, buy := range a.RecentBuys {
		if buy.BlockTime >= windowStart {
			kept = append(kept, buy)
		}
	}
	a.RecentBuys = kept
}

// gatherMints 收集持仓与近期买入触达的全部 mint，顺序稳定
func gatherMints(activities map[string]*model.WalletActivity) []string {
	seen := make(map[string]struct{})
	for _, a := range activities {
		for mint := range a.Positions {
			seen[mint] = struct{}{}
		}
		for _, buy := range a.RecentBuys {
			seen[buy.Mint] = struct{}{}
		}
	}
	mints := make([]string, 0, len(seen))
	for mint := range seen {
		mints = append(mints, mint)
	}
	sort.Strings(mints)
	return mints
}

// rankWallets 按总盈亏排钱包榜，平手依次比买入数、触达 mint 数、地址
func rankWallets(wallets []string, activities map[string]*model.WalletActivity) []model.WalletRank {
	type scored struct {
		wallet string
		a      *model.WalletActivity
		mints  int
	}
	var rows []scored
	for _, w := range wallets {
		a := activities[w]
		if a == nil || a.EffectivelyEmpty() {
			continue
		}
		rows = append(rows, scored{wallet: w, a: a, mints: a.UniqueMints()})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].a.TotalPnl.Equal(rows[j].a.TotalPnl) {
			return rows[i].a.TotalPnl.GreaterThan(rows[j].a.TotalPnl)
		}
		if rows[i].a.BuyCount != rows[j].a.BuyCount {
			return rows[i].a.BuyCount > rows[j].a.BuyCount
		}
		if rows[i].mints != rows[j].mints {
			return rows[i].mints > rows[j].mints
		}
		return rows[i].wallet < rows[j].wallet
	})

	out := make([]model.WalletRank, 0, len(rows))
	for i, row := range rows {
		out = append(out, model.WalletRank{
			Rank:          i + 1,
			Wallet:        row.wallet,
			TotalPnl:      row.a.TotalPnl,
			RealizedPnl:   row.a.RealizedPnl,
			UnrealizedPnl: row.a.UnrealizedPnl,
			WinRate:       row.a.WinRate,
			BuyCount:      row.a.BuyCount,
			UniqueMints:   row.mints,
			ClosedTrades:  row.a.ClosedTrades,
			LastTradeAt:   row.a.LastTradeAt,
		})
	}
	return out
}

// rankMints 排代币榜
// 排序权重：仍被持有 > 近窗口买入 > 持有钱包数 > 买入次数 > 最近成交时间，mint 兜底定序。
// 没有持有也没有近期买入的 mint 只有在流动性或成交额过配置门槛时保留。
func (b *Builder) rankMints(activities map[string]*model.WalletActivity,
	metaByMint map[string]model.TokenMeta, windowStart int64) []model.MintRank {

	type agg struct {
		held        bool
		recentBuy   bool
		walletCount int
		buyCount    int
		lastTradeAt int64
	}
	aggs := make(map[string]*agg)
	ensure := func(mint string) *agg {
		x, ok := aggs[mint]
		if !ok {
			x = &agg{}
			aggs[mint] = x
		}
		return x
	}

	for _, a := range activities {
		touched := make(map[string]struct{})
		for mint, p := range a.Positions {
			x := ensure(mint)
			if p.Qty.IsPositive() {
				x.held = true
			}
			x.buyCount += p.BuyCount
			if p.LastTradeAt > x.lastTradeAt {
				x.lastTradeAt = p.LastTradeAt
			}
			touched[mint] = struct{}{}
		}
		for _, buy := range a.RecentBuys {
			x := ensure(buy.Mint)
			if buy.BlockTime >= windowStart {
				x.recentBuy = true
			}
			touched[buy.Mint] = struct{}{}
		}
		for mint := range touched {
			aggs[mint].walletCount++
		}
	}

	var mints []string
	for mint, x := range aggs {
		if x.held || x.recentBuy {
			mints = append(mints, mint)
			continue
		}
		meta, ok := metaByMint[mint]
		if !ok {
			continue
		}
		if meta.LiquidityUsd.GreaterThanOrEqual(decimal.NewFromFloat(b.cfg.LiquidityFloor)) ||
			meta.Volume24hUsd.GreaterThanOrEqual(decimal.NewFromFloat(b.cfg.VolumeFloor)) {
			mints = append(mints, mint)
		}
	}
	sort.Slice(mints, func(i, j int) bool {
		x, y := aggs[mints[i]], aggs[mints[j]]
		if x.held != y.held {
			return x.held
		}
		if x.recentBuy != y.recentBuy {
			return x.recentBuy
		}
		if x.walletCount != y.walletCount {
			return x.walletCount > y.walletCount
		}
		if x.buyCount != y.buyCount {
			return x.buyCount > y.buyCount
		}
		if x.lastTradeAt != y.lastTradeAt {
			return x.lastTradeAt > y.lastTradeAt
		}
		return mints[i] < mints[j]
	})

	out := make([]model.MintRank, 0, len(mints))
	for i, mint := range mints {
		x := aggs[mint]
		meta := metaByMint[mint]
		out = append(out, model.MintRank{
			Rank:         i + 1,
			Mint:         mint,
			Symbol:       meta.Symbol,
			Logo:         meta.Logo,
			Held:         x.held,
			RecentBuy:    x.recentBuy,
			WalletCount:  x.walletCount,
			BuyCount:     x.buyCount,
			LastTradeAt:  x.lastTradeAt,
			PriceUsd:     meta.PriceUsd,
			LiquidityUsd: meta.LiquidityUsd,
			Volume24hUsd: meta.Volume24hUsd,
		})
	}
	return out
}

func (b *Builder) stats(snap *model.Snapshot, degraded int, took time.Duration) model.SnapshotStats {
	stats := model.SnapshotStats{
		WalletTotal:    len(snap.Wallets),
		WalletDegraded: degraded,
		MintTotal:      len(snap.TopMints),
		BuildDurMs:     took.Milliseconds(),
	}
	for _, a := range snap.Activities {
		if !a.EffectivelyEmpty() {
			stats.WalletActive++
			stats.TotalPnl = stats.TotalPnl.Add(a.TotalPnl)
		}
	}
	return stats
}
