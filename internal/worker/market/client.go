package market

import (
	"context"
	"strings"
	"sync"
	"time"

	"smart-board/internal/worker/config"
	"smart-board/internal/worker/model"
	"smart-board/internal/worker/monitor"
	"smart-board/pkg/httpclient"
	"smart-board/pkg/utils"

	"github.com/bytedance/sonic"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const (
	memTTL       = 5 * time.Minute
	redisTTL     = 30 * time.Minute
	nativeTTL    = time.Minute
	maxBatchSize = 100
)

// Client 代币行情元数据客户端
//
// 查询顺序：进程内缓存 -> Redis -> 上游行情 API。
// 上游失败只记日志和指标，缺失的 mint 在结果里不出现，调用方按降级处理。
type Client struct {
	cfg  config.MarketConfig
	tl   *zap.Logger
	http *httpclient.HTTPClient
	rdb  *redis.Client
	mem  *gocache.Cache
}

func NewClient(cfg config.MarketConfig, tl *zap.Logger, rdb *redis.Client) *Client {
	hc := httpclient.NewHTTPClient(httpclient.HTTPClientConfig{
		Timeout:    time.Duration(cfg.Timeout) * time.Second,
		RateLimit:  cfg.RateLimit,
		MaxRetries: 2,
		XApiKey:    cfg.APIKey,
	}, tl)

	return &Client{
		cfg:  cfg,
		tl:   tl,
		http: hc,
		rdb:  rdb,
		mem:  gocache.New(memTTL, 10*time.Minute),
	}
}

// GetTokenMeta 批量取元数据，返回 mint -> meta，缺失的键不出现
func (c *Client) GetTokenMeta(ctx context.Context, mints []string) map[string]model.TokenMeta {
	out := make(map[string]model.TokenMeta, len(mints))
	var miss []string
	seen := make(map[string]struct{}, len(mints))
	for _, mint := range mints {
		if mint == "" {
			continue
		}
		if _, ok := seen[mint]; ok {
			continue
		}
		seen[mint] = struct{}{}

		if v, ok := c.mem.Get(mint); ok {
			out[mint] = v.(model.TokenMeta)
			continue
		}
		if meta, ok := c.fromRedis(ctx, mint); ok {
			c.mem.Set(mint, meta, memTTL)
			out[mint] = meta
			continue
		}
		miss = append(miss, mint)
	}
	if len(miss) == 0 {
		return out
	}

	batchSize := c.cfg.BatchSize
	if batchSize <= 0 || batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}
	concurrency := c.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(concurrency)
	for start := 0; start < len(miss); start += batchSize {
		end := start + batchSize
		if end > len(miss) {
			end = len(miss)
		}
		batch := miss[start:end]
		p.Go(func() {
			metas, err := c.fetch(ctx, batch)
			if err != nil {
				monitor.MarketLookupFailures.Inc()
				c.tl.Warn("token metadata batch fetch failed",
					zap.Int("mints", len(batch)), zap.Error(err))
				return
			}
			mu.Lock()
			for mint, meta := range metas {
				out[mint] = meta
			}
			mu.Unlock()
			for mint, meta := range metas {
				c.mem.Set(mint, meta, memTTL)
				c.toRedis(ctx, mint, meta)
			}
		})
	}
	p.Wait()
	return out
}

type rawTokenMeta struct {
	Address      string          `json:"address"`
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	Logo         string          `json:"logo"`
	PriceNative  decimal.Decimal `json:"priceNative"`
	PriceUsd     decimal.Decimal `json:"priceUsd"`
	LiquidityUsd decimal.Decimal `json:"liquidity"`
	Volume24h    decimal.Decimal `json:"volume24h"`
}

func (c *Client) fetch(ctx context.Context, mints []string) (map[string]model.TokenMeta, error) {
	var resp struct {
		Data []rawTokenMeta `json:"data"`
	}
	err := c.http.Get(ctx, c.cfg.BaseURL+"/tokens",
		map[string]string{"addresses": strings.Join(mints, ",")}, nil, &resp)
	if err != nil {
		return nil, err
	}

	metas := make(map[string]model.TokenMeta, len(resp.Data))
	for _, raw := range resp.Data {
		if raw.Address == "" {
			continue
		}
		metas[raw.Address] = model.TokenMeta{
			Mint:         raw.Address,
			Symbol:       raw.Symbol,
			Name:         raw.Name,
			Logo:         raw.Logo,
			PriceNative:  raw.PriceNative,
			PriceUsd:     raw.PriceUsd,
			LiquidityUsd: raw.LiquidityUsd,
			Volume24hUsd: raw.Volume24h,
		}
	}
	return metas, nil
}

func (c *Client) fromRedis(ctx context.Context, mint string) (model.TokenMeta, bool) {
	if c.rdb == nil {
		return model.TokenMeta{}, false
	}
	raw, err := c.rdb.Get(ctx, utils.TokenMetaKey(mint)).Result()
	if err != nil {
		return model.TokenMeta{}, false
	}
	var meta model.TokenMeta
	if err := sonic.Unmarshal([]byte(raw), &meta); err != nil {
		return model.TokenMeta{}, false
	}
	return meta, true
}

func (c *Client) toRedis(ctx context.Context, mint string, meta model.TokenMeta) {
	if c.rdb == nil {
		return
	}
	data, err := sonic.Marshal(meta)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, utils.TokenMetaKey(mint), data, redisTTL)
}

// NativePriceUsd 取 SOL 的美元价格，失败返回 false
func (c *Client) NativePriceUsd(ctx context.Context) (decimal.Decimal, bool) {
	const memKey = "native_price_usd"
	if v, ok := c.mem.Get(memKey); ok {
		return v.(decimal.Decimal), true
	}
	if c.rdb != nil {
		if raw, err := c.rdb.Get(ctx, utils.NativePriceKey()).Result(); err == nil {
			if price, err := decimal.NewFromString(raw); err == nil {
				c.mem.Set(memKey, price, nativeTTL)
				return price, true
			}
		}
	}

	var resp struct {
		Data rawTokenMeta `json:"data"`
	}
	err := c.http.Get(ctx, c.cfg.BaseURL+"/price/native", nil, nil, &resp)
	if err != nil {
		monitor.MarketLookupFailures.Inc()
		return decimal.Zero, false
	}
	price := resp.Data.PriceUsd
	if !price.IsPositive() {
		return decimal.Zero, false
	}
	c.mem.Set(memKey, price, nativeTTL)
	if c.rdb != nil {
		c.rdb.Set(ctx, utils.NativePriceKey(), price.String(), nativeTTL)
	}
	return price, true
}
