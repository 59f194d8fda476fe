package registry

import (
	"sync"
	"time"

	"smart-board/internal/worker/config"
	"smart-board/internal/worker/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Registry 受跟踪钱包名单，快照只为名单内的钱包构建
//
// 名单优先从 Postgres 的 tracked_wallets 表加载并定期刷新，
// 库不可用时回退到配置里的静态名单。读多写少，RWMutex 保护。
type Registry struct {
	mu      sync.RWMutex
	tl      *zap.Logger
	db      *gorm.DB
	addrs   []string
	set     map[string]struct{}
	tags    map[string][]string
	stopCh  chan struct{}
	stopped sync.Once
}

func New(cfg config.TrackerConfig, tl *zap.Logger, db *gorm.DB) *Registry {
	r := &Registry{
		tl:     tl,
		db:     db,
		tags:   make(map[string][]string),
		stopCh: make(chan struct{}),
	}
	r.setStatic(cfg.Wallets)
	if db != nil {
		r.reload()
	}
	return r
}

func (r *Registry) setStatic(addrs []string) {
	seen := make(map[string]struct{}, len(addrs))
	var uniq []string
	for _, a := range addrs {
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		uniq = append(uniq, a)
	}
	r.mu.Lock()
	r.addrs = uniq
	r.set = seen
	r.mu.Unlock()
}

// reload 从库刷新名单，失败保留当前名单
func (r *Registry) reload() {
	var rows []model.TrackedWallet
	if err := r.db.Find(&rows).Error; err != nil {
		r.tl.Warn("failed to reload tracked wallets, keep current set", zap.Error(err))
		return
	}
	if len(rows) == 0 {
		r.tl.Warn("tracked wallets table empty, keep current set")
		return
	}

	addrs := make([]string, 0, len(rows))
	tags := make(map[string][]string, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if row.Address == "" {
			continue
		}
		if _, ok := seen[row.Address]; ok {
			continue
		}
		seen[row.Address] = struct{}{}
		addrs = append(addrs, row.Address)
		tags[row.Address] = row.Tags
	}

	r.mu.Lock()
	r.addrs = addrs
	r.set = seen
	r.tags = tags
	r.mu.Unlock()
	r.tl.Info("tracked wallets reloaded", zap.Int("count", len(addrs)))
}

// StartAutoReload 周期性刷新名单，库未配置时不起协程
func (r *Registry) StartAutoReload(interval time.Duration) {
	if r.db == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.reload()
			case <-r.stopCh:
				return
			}
		}
	}()
}

func (r *Registry) Stop() {
	r.stopped.Do(func() { close(r.stopCh) })
}

// List 返回名单拷贝，顺序稳定
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.addrs))
	copy(out, r.addrs)
	return out
}

func (r *Registry) Contains(address string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.set[address]
	return ok
}

func (r *Registry) Tags(address string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tags[address]
}

func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.addrs)
}
