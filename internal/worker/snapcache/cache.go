package snapcache

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"smart-board/internal/worker/config"
	"smart-board/internal/worker/model"
	"smart-board/internal/worker/monitor"
	"smart-board/pkg/utils"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Tier string

const (
	TierMemory Tier = "memory"
	TierRedis  Tier = "redis"
	TierDisk   Tier = "disk"
	TierNone   Tier = "none"
)

// Meta 一次读取的来源层级与新鲜度
type Meta struct {
	Tier  Tier `json:"tier"`
	Stale bool `json:"stale"`
}

// Cache 快照的多级缓存
//
// 读取顺序 memory -> redis -> disk，命中即返回并回填上层。
// 过期的值照样立即返回，同时最多触发一次后台重建，读方永不等重建。
// 发布前过塌缩防护：新快照相比上一份塌缩过猛时拒绝替换，继续供旧数据。
type Cache struct {
	cfg        config.CacheConfig
	tl         *zap.Logger
	rdb        *redis.Client
	feed       string
	mem        atomic.Pointer[model.Snapshot]
	rebuild    func()
	rebuilding atomic.Bool
	now        func() time.Time
}

func New(cfg config.CacheConfig, tl *zap.Logger, rdb *redis.Client, feed string) *Cache {
	return &Cache{
		cfg:  cfg,
		tl:   tl,
		rdb:  rdb,
		feed: feed,
		now:  time.Now,
	}
}

// SetRebuild 注入过期读触发的后台重建动作
func (c *Cache) SetRebuild(fn func()) {
	c.rebuild = fn
}

// Read 返回当前最优快照，过期时照样返回并在后台补一次重建
func (c *Cache) Read(ctx context.Context) (*model.Snapshot, Meta) {
	snap, tier := c.lookup(ctx)
	if snap == nil {
		return nil, Meta{Tier: TierNone}
	}
	monitor.SnapshotReads.WithLabelValues(string(tier)).Inc()

	stale := c.isStale(snap)
	if stale && c.rebuild != nil && c.rebuilding.CompareAndSwap(false, true) {
		go func() {
			defer c.rebuilding.Store(false)
			c.rebuild()
		}()
	}
	return snap, Meta{Tier: tier, Stale: stale}
}

// Current 返回当前最优快照，不触发重建，发布时取 prev 用
func (c *Cache) Current(ctx context.Context) *model.Snapshot {
	snap, _ := c.lookup(ctx)
	return snap
}

func (c *Cache) lookup(ctx context.Context) (*model.Snapshot, Tier) {
	if snap := c.mem.Load(); snap != nil {
		return snap, TierMemory
	}
	if snap := c.fromRedis(ctx); snap != nil {
		c.mem.Store(snap)
		return snap, TierRedis
	}
	if snap := c.fromDisk(); snap != nil {
		c.mem.Store(snap)
		return snap, TierDisk
	}
	return nil, TierNone
}

func (c *Cache) isStale(snap *model.Snapshot) bool {
	age := c.now().UnixMilli() - snap.Timestamp
	return age > int64(c.cfg.FreshSeconds)*1000
}

// Publish 过防护后把新快照写到所有层级，返回是否接受
func (c *Cache) Publish(ctx context.Context, next *model.Snapshot) bool {
	prevRows := 0
	if prev := c.Current(ctx); prev != nil {
		prevRows = prev.RowCount()
	}
	nextRows := next.RowCount()

	if ShouldReject(c.cfg, prevRows, nextRows) {
		monitor.GuardReusedPrevious.Inc()
		c.tl.Warn("collapse guard rejected new snapshot, keep serving previous",
			zap.String("feed", c.feed),
			zap.Int("prev_rows", prevRows),
			zap.Int("next_rows", nextRows))
		return false
	}

	c.mem.Store(next)
	c.toRedis(ctx, next)
	c.toDisk(next)
	return true
}

// ShouldReject 塌缩防护判定
// 规则一：旧的非空、新的全空，硬拒绝；
// 规则二：旧的行数到达门槛且新的行数掉到 max(floor, prev*ratio) 以下，拒绝
func ShouldReject(cfg config.CacheConfig, prevRows, nextRows int) bool {
	if prevRows > 0 && nextRows == 0 {
		return true
	}
	if prevRows >= cfg.MinPrevRows {
		floor := int(math.Floor(float64(prevRows) * cfg.CollapseRatio))
		if floor < cfg.MinRowFloor {
			floor = cfg.MinRowFloor
		}
		if nextRows < floor {
			return true
		}
	}
	return false
}

func (c *Cache) fromRedis(ctx context.Context) *model.Snapshot {
	if c.rdb == nil {
		return nil
	}
	raw, err := c.rdb.Get(ctx, utils.SnapshotKey(c.feed)).Result()
	if err != nil {
		return nil
	}
	var snap model.Snapshot
	if err := sonic.Unmarshal([]byte(raw), &snap); err != nil {
		c.tl.Warn("cached snapshot unmarshal failed", zap.Error(err))
		return nil
	}
	return &snap
}

func (c *Cache) toRedis(ctx context.Context, snap *model.Snapshot) {
	if c.rdb == nil {
		return
	}
	data, err := sonic.Marshal(snap)
	if err != nil {
		return
	}
	ttl := time.Duration(c.cfg.RedisTTLMinutes) * time.Minute
	if err := c.rdb.Set(ctx, utils.SnapshotKey(c.feed), data, ttl).Err(); err != nil {
		c.tl.Warn("failed to write snapshot to redis", zap.Error(err))
	}
}

func (c *Cache) diskFile() string {
	if c.cfg.DiskPath == "" {
		return ""
	}
	return filepath.Join(c.cfg.DiskPath, c.feed+".json")
}

func (c *Cache) fromDisk() *model.Snapshot {
	file := c.diskFile()
	if file == "" {
		return nil
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil
	}
	var snap model.Snapshot
	if err := sonic.Unmarshal(raw, &snap); err != nil {
		c.tl.Warn("disk snapshot unmarshal failed", zap.String("file", file), zap.Error(err))
		return nil
	}
	return &snap
}

// toDisk 先写临时文件再重命名，避免读到半截文件
func (c *Cache) toDisk(snap *model.Snapshot) {
	file := c.diskFile()
	if file == "" {
		return
	}
	data, err := sonic.Marshal(snap)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		c.tl.Warn("failed to create snapshot dir", zap.Error(err))
		return
	}
	tmp := file + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		c.tl.Warn("failed to write snapshot to disk", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, file); err != nil {
		c.tl.Warn("failed to replace snapshot on disk", zap.Error(err))
	}
}
