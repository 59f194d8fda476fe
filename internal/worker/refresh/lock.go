package refresh

import (
	"context"
	"sync"
	"time"

	"smart-board/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Mutex 刷新互斥锁，TryLock 拿不到立即返回 false 不阻塞
type Mutex interface {
	TryLock(ctx context.Context, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context) error
}

// RedisMutex 跨进程互斥，set-if-absent 带过期
// 进程崩溃不解锁时由 TTL 兜底，过期窗口即陈旧上限
type RedisMutex struct {
	rdb   *redis.Client
	token string
}

func NewRedisMutex(rdb *redis.Client, token string) *RedisMutex {
	return &RedisMutex{rdb: rdb, token: token}
}

func (m *RedisMutex) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	return m.rdb.SetNX(ctx, utils.RefreshLockKey(), m.token, ttl).Result()
}

// Unlock 只释放自己持有的锁，别人的锁（比如自己过期后被抢）不动
func (m *RedisMutex) Unlock(ctx context.Context) error {
	const script = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`
	return m.rdb.Eval(ctx, script, []string{utils.RefreshLockKey()}, m.token).Err()
}

// LocalMutex 单进程部署与测试用的进程内互斥
type LocalMutex struct {
	mu       sync.Mutex
	lockedAt time.Time
	ttl      time.Duration
	held     bool
}

func NewLocalMutex() *LocalMutex {
	return &LocalMutex{}
}

func (m *LocalMutex) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held && time.Since(m.lockedAt) < m.ttl {
		return false, nil
	}
	m.held = true
	m.lockedAt = time.Now()
	m.ttl = ttl
	return true, nil
}

func (m *LocalMutex) Unlock(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held = false
	return nil
}
