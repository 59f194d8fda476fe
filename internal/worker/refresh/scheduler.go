package refresh

import (
	"context"
	"sync"
	"time"

	"smart-board/internal/worker/config"
	"smart-board/internal/worker/model"
	"smart-board/internal/worker/monitor"

	"go.uber.org/zap"
)

const (
	FeedSmartWallets = "smart_wallets"
	FeedTopTokens    = "top_tokens"
)

// BuildFunc 触发一次快照构建并发布
type BuildFunc func(ctx context.Context) (*model.Snapshot, error)

// Scheduler 刷新调度
//
// 按 feed 记录上次成功刷新时间，到期才重建；多个 feed 到期也只构建一次，
// 构建成功后一并刷新它们的时间戳。整个刷新过程挂在分布式锁里，
// 其它进程正在刷新时这边直接跳过，不重复干活。
type Scheduler struct {
	cfg   config.RefreshConfig
	tl    *zap.Logger
	mutex Mutex
	build BuildFunc
	now   func() time.Time

	mu            sync.Mutex
	lastRefreshed map[string]time.Time
}

func NewScheduler(cfg config.RefreshConfig, tl *zap.Logger, mutex Mutex, build BuildFunc) *Scheduler {
	return &Scheduler{
		cfg:           cfg,
		tl:            tl,
		mutex:         mutex,
		build:         build,
		now:           time.Now,
		lastRefreshed: make(map[string]time.Time),
	}
}

func (s *Scheduler) interval(feed string) time.Duration {
	switch feed {
	case FeedTopTokens:
		return time.Duration(s.cfg.TopTokensIntervalMin) * time.Minute
	default:
		return time.Duration(s.cfg.SmartWalletsIntervalMin) * time.Minute
	}
}

// dueFeeds 返回到期的 feed；force 时 scope 内全部视为到期
func (s *Scheduler) dueFeeds(scope []string, force bool) []string {
	if len(scope) == 0 {
		scope = []string{FeedSmartWallets, FeedTopTokens}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []string
	for _, feed := range scope {
		if feed != FeedSmartWallets && feed != FeedTopTokens {
			continue
		}
		if force {
			due = append(due, feed)
			continue
		}
		last, ok := s.lastRefreshed[feed]
		if !ok || s.now().Sub(last) >= s.interval(feed) {
			due = append(due, feed)
		}
	}
	return due
}

// Refresh 判断到期、抢锁、构建
// 没有到期的 feed 或锁被别的进程持有都直接返回 (false, nil)
func (s *Scheduler) Refresh(ctx context.Context, scope []string, force bool) (bool, error) {
	due := s.dueFeeds(scope, force)
	if len(due) == 0 {
		return false, nil
	}

	ttl := time.Duration(s.cfg.LockTTLSeconds) * time.Second
	ok, err := s.mutex.TryLock(ctx, ttl)
	if err != nil {
		return false, err
	}
	if !ok {
		s.tl.Debug("refresh lock held elsewhere, skip", zap.Strings("due", due))
		return false, nil
	}
	defer func() {
		if err := s.mutex.Unlock(ctx); err != nil {
			s.tl.Warn("failed to release refresh lock, expiry will reclaim it", zap.Error(err))
		}
	}()

	if _, err := s.build(ctx); err != nil {
		s.tl.Error("snapshot build failed", zap.Strings("due", due), zap.Error(err))
		return false, err
	}

	now := s.now()
	s.mu.Lock()
	for _, feed := range due {
		s.lastRefreshed[feed] = now
		monitor.RefreshRuns.WithLabelValues(feed).Inc()
	}
	s.mu.Unlock()
	return true, nil
}
