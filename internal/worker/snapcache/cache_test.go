package snapcache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"smart-board/internal/worker/config"
	"smart-board/internal/worker/model"
	"smart-board/internal/worker/monitor"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func testCfg(diskPath string) config.CacheConfig {
	return config.CacheConfig{
		RedisTTLMinutes: 60,
		FreshSeconds:    300,
		DiskPath:        diskPath,
		MinPrevRows:     20,
		MinRowFloor:     8,
		CollapseRatio:   0.45,
	}
}

func snapWithRows(wallets int, ts int64) *model.Snapshot {
	s := &model.Snapshot{Timestamp: ts}
	for i := 0; i < wallets; i++ {
		s.TopWallets = append(s.TopWallets, model.WalletRank{Rank: i + 1})
	}
	return s
}

func TestShouldReject(t *testing.T) {
	cfg := testCfg("")
	cases := []struct {
		name       string
		prev, next int
		reject     bool
	}{
		{"empty drop", 30, 0, true},
		{"severe collapse 30 to 2", 30, 2, true},
		{"hard empty below floor", 5, 0, true},
		{"small shrink below threshold rows", 10, 3, false},
		{"healthy replace", 30, 25, false},
		// prev=20 时门槛是 max(8, floor(20*0.45)) = 9
		{"just below floor", 20, 8, true},
		{"exactly at floor", 20, 9, false},
		{"first publish", 0, 0, false},
		{"cold start with data", 0, 12, false},
	}
	for _, tc := range cases {
		if got := ShouldReject(cfg, tc.prev, tc.next); got != tc.reject {
			t.Fatalf("%s: ShouldReject(%d, %d) = %v, want %v", tc.name, tc.prev, tc.next, got, tc.reject)
		}
	}
}

func TestPublishGuardKeepsPrevious(t *testing.T) {
	c := New(testCfg(t.TempDir()), zap.NewNop(), nil, "board")

	prev := snapWithRows(30, time.Now().UnixMilli())
	if !c.Publish(context.Background(), prev) {
		t.Fatal("initial publish rejected")
	}

	before := testutil.ToFloat64(monitor.GuardReusedPrevious)
	next := snapWithRows(2, time.Now().UnixMilli())
	if c.Publish(context.Background(), next) {
		t.Fatal("collapsed snapshot accepted")
	}
	if got := testutil.ToFloat64(monitor.GuardReusedPrevious); got != before+1 {
		t.Fatalf("guard counter = %v, want %v", got, before+1)
	}

	cur := c.Current(context.Background())
	if cur.RowCount() != 30 {
		t.Fatalf("current rows = %d, want previous 30", cur.RowCount())
	}
}

func TestPublishHardEmptyDrop(t *testing.T) {
	c := New(testCfg(t.TempDir()), zap.NewNop(), nil, "board")

	if !c.Publish(context.Background(), snapWithRows(5, time.Now().UnixMilli())) {
		t.Fatal("initial publish rejected")
	}
	// 行数门槛以下也不许清空
	if c.Publish(context.Background(), snapWithRows(0, time.Now().UnixMilli())) {
		t.Fatal("empty snapshot accepted over non-empty previous")
	}
}

func TestReadFromDiskStaleTriggersOneRebuild(t *testing.T) {
	dir := t.TempDir()
	stale := snapWithRows(10, time.Now().Add(-time.Hour).UnixMilli())
	data, err := sonic.Marshal(stale)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "board.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	c := New(testCfg(dir), zap.NewNop(), nil, "board")

	var mu sync.Mutex
	rebuilds := 0
	started := make(chan struct{}, 8)
	block := make(chan struct{})
	c.SetRebuild(func() {
		mu.Lock()
		rebuilds++
		mu.Unlock()
		started <- struct{}{}
		<-block
	})

	var wg sync.WaitGroup
	tiers := make([]Tier, 8)
	for i := 0; i < 8; i++ {
		idx := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, meta := c.Read(context.Background())
			if snap == nil || !meta.Stale {
				t.Errorf("read %d: snap=%v stale=%v", idx, snap != nil, meta.Stale)
			}
			tiers[idx] = meta.Tier
		}()
	}
	wg.Wait()
	<-started // 等重建真的跑起来，再放行
	close(block)

	mu.Lock()
	defer mu.Unlock()
	if rebuilds != 1 {
		t.Fatalf("rebuilds = %d, want exactly 1", rebuilds)
	}
	sawDisk := false
	for _, tier := range tiers {
		if tier == TierDisk {
			sawDisk = true
		}
		if tier != TierDisk && tier != TierMemory {
			t.Fatalf("unexpected tier %s", tier)
		}
	}
	if !sawDisk {
		t.Fatal("no read was served from disk")
	}
}

func TestPublishRoundTripsThroughDisk(t *testing.T) {
	dir := t.TempDir()
	c := New(testCfg(dir), zap.NewNop(), nil, "board")

	fresh := snapWithRows(10, time.Now().UnixMilli())
	if !c.Publish(context.Background(), fresh) {
		t.Fatal("publish rejected")
	}

	// 新进程只剩磁盘层
	c2 := New(testCfg(dir), zap.NewNop(), nil, "board")
	snap, meta := c2.Read(context.Background())
	if snap == nil || snap.RowCount() != 10 {
		t.Fatalf("disk read = %+v", snap)
	}
	if meta.Tier != TierDisk {
		t.Fatalf("tier = %s, want disk", meta.Tier)
	}
	if meta.Stale {
		t.Fatal("fresh snapshot reported stale")
	}

	// 回填后第二次读走内存
	if _, meta = c2.Read(context.Background()); meta.Tier != TierMemory {
		t.Fatalf("tier = %s, want memory", meta.Tier)
	}
}

func TestReadEmpty(t *testing.T) {
	c := New(testCfg(t.TempDir()), zap.NewNop(), nil, "board")
	snap, meta := c.Read(context.Background())
	if snap != nil || meta.Tier != TierNone {
		t.Fatalf("snap=%v tier=%s, want none", snap, meta.Tier)
	}
}
