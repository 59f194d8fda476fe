package ingest

import (
	"context"
	"sync"
	"time"

	"smart-board/internal/worker/config"
	"smart-board/internal/worker/model"
	"smart-board/internal/worker/monitor"
	"smart-board/pkg/utils"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store 推送事件的有界去重存储
//
// 作为轮询之外独立的第二条活动重建路径：ingest feed 推来的 TransferEvent
// 先落在这里，builder 的 push 模式直接折叠这里的事件。
// 约束：按 (signature, wallet, mint) 去重；超过容量先淘汰最老的；超过 TTL 懒惰过期；
// 并发 Append 之间串行化读-并-写。Redis 仅做进程重启后的热身快照，尽力而为。
type Store struct {
	mu     sync.Mutex
	cfg    config.IngestConfig
	tl     *zap.Logger
	rdb    *redis.Client
	events []model.TransferEvent
	index  map[string]struct{}
	now    func() time.Time
}

func NewStore(cfg config.IngestConfig, tl *zap.Logger, rdb *redis.Client) *Store {
	return &Store{
		cfg:   cfg,
		tl:    tl,
		rdb:   rdb,
		index: make(map[string]struct{}),
		now:   time.Now,
	}
}

// Load 从 Redis 恢复上次进程的事件快照，启动时调用一次
func (s *Store) Load(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	raw, err := s.rdb.Get(ctx, utils.IngestEventsKey()).Result()
	if err != nil {
		return
	}
	var events []model.TransferEvent
	if err := sonic.Unmarshal([]byte(raw), &events); err != nil {
		s.tl.Warn("ingest warmup payload unmarshal failed", zap.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		key := e.Key()
		if _, ok := s.index[key]; ok {
			continue
		}
		s.index[key] = struct{}{}
		s.events = append(s.events, e)
	}
	s.evictLocked()
	s.tl.Info("ingest store warmed up", zap.Int("events", len(s.events)))
}

// Append 去重写入，返回本次实际入库数与当前总数
func (s *Store) Append(ctx context.Context, events []model.TransferEvent) (stored, total int) {
	s.mu.Lock()
	for _, e := range events {
		key := e.Key()
		if _, ok := s.index[key]; ok {
			monitor.IngestEventsDeduped.Inc()
			continue
		}
		s.index[key] = struct{}{}
		s.events = append(s.events, e)
		stored++
	}
	s.evictLocked()
	total = len(s.events)
	snapshot := make([]model.TransferEvent, total)
	copy(snapshot, s.events)
	s.mu.Unlock()

	if stored > 0 {
		monitor.IngestEventsStored.Add(float64(stored))
		s.persist(ctx, snapshot)
	}
	return stored, total
}

// Read 返回当前未过期事件的拷贝
func (s *Store) Read() []model.TransferEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	out := make([]model.TransferEvent, len(s.events))
	copy(out, s.events)
	return out
}

// evictLocked 先按 TTL 过期，再按容量淘汰最老的，调用方持锁
func (s *Store) evictLocked() {
	cutoff := s.now().Add(-time.Duration(s.cfg.TTLMinutes) * time.Minute).Unix()
	kept := s.events[:0]
	for _, e := range s.events {
		if e.BlockTime < cutoff {
			delete(s.index, e.Key())
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept

	if over := len(s.events) - s.cfg.MaxEvents; over > 0 {
		for _, e := range s.events[:over] {
			delete(s.index, e.Key())
		}
		s.events = append(s.events[:0], s.events[over:]...)
		monitor.IngestEventsEvicted.Add(float64(over))
	}
}

func (s *Store) persist(ctx context.Context, events []model.TransferEvent) {
	if s.rdb == nil {
		return
	}
	data, err := sonic.Marshal(events)
	if err != nil {
		return
	}
	ttl := time.Duration(s.cfg.TTLMinutes) * time.Minute
	if err := s.rdb.Set(ctx, utils.IngestEventsKey(), data, ttl).Err(); err != nil {
		s.tl.Debug("ingest snapshot persist failed", zap.Error(err))
	}
}
