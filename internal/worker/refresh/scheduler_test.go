package refresh

import (
	"context"
	"testing"
	"time"

	"smart-board/internal/worker/config"
	"smart-board/internal/worker/model"

	"go.uber.org/zap"
)

func testScheduler(builds *int) (*Scheduler, *LocalMutex) {
	mutex := NewLocalMutex()
	cfg := config.RefreshConfig{
		SmartWalletsIntervalMin: 10,
		TopTokensIntervalMin:    5,
		LockTTLSeconds:          60,
	}
	s := NewScheduler(cfg, zap.NewNop(), mutex, func(ctx context.Context) (*model.Snapshot, error) {
		*builds++
		return &model.Snapshot{}, nil
	})
	return s, mutex
}

func TestRefreshDueThenNoop(t *testing.T) {
	builds := 0
	s, _ := testScheduler(&builds)

	refreshed, err := s.Refresh(context.Background(), nil, false)
	if err != nil || !refreshed {
		t.Fatalf("first refresh = %v, %v", refreshed, err)
	}
	if builds != 1 {
		t.Fatalf("builds = %d, want 1", builds)
	}

	// 刚刷过，全部 feed 都不到期
	refreshed, err = s.Refresh(context.Background(), nil, false)
	if err != nil || refreshed {
		t.Fatalf("second refresh = %v, %v, want no-op", refreshed, err)
	}
	if builds != 1 {
		t.Fatalf("builds = %d, want still 1", builds)
	}
}

func TestRefreshForceBypassesFreshness(t *testing.T) {
	builds := 0
	s, _ := testScheduler(&builds)

	s.Refresh(context.Background(), nil, false)
	refreshed, err := s.Refresh(context.Background(), nil, true)
	if err != nil || !refreshed {
		t.Fatalf("forced refresh = %v, %v", refreshed, err)
	}
	if builds != 2 {
		t.Fatalf("builds = %d, want 2", builds)
	}
}

func TestRefreshPerFeedCadence(t *testing.T) {
	builds := 0
	s, _ := testScheduler(&builds)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.Refresh(context.Background(), nil, false)

	// 6 分钟后只有 top_tokens 到期
	s.now = func() time.Time { return base.Add(6 * time.Minute) }
	due := s.dueFeeds(nil, false)
	if len(due) != 1 || due[0] != FeedTopTokens {
		t.Fatalf("due = %v, want [top_tokens]", due)
	}

	// 11 分钟后两个都到期
	s.now = func() time.Time { return base.Add(11 * time.Minute) }
	due = s.dueFeeds(nil, false)
	if len(due) != 2 {
		t.Fatalf("due = %v, want both feeds", due)
	}
}

func TestRefreshSkipsWhenLockHeld(t *testing.T) {
	builds := 0
	s, mutex := testScheduler(&builds)

	ok, err := mutex.TryLock(context.Background(), time.Minute)
	if err != nil || !ok {
		t.Fatalf("manual lock: %v %v", ok, err)
	}

	refreshed, err := s.Refresh(context.Background(), nil, true)
	if err != nil || refreshed {
		t.Fatalf("refresh = %v, %v, want skip while locked", refreshed, err)
	}
	if builds != 0 {
		t.Fatalf("builds = %d, want 0", builds)
	}

	mutex.Unlock(context.Background())
	refreshed, _ = s.Refresh(context.Background(), nil, true)
	if !refreshed || builds != 1 {
		t.Fatalf("after unlock refreshed=%v builds=%d", refreshed, builds)
	}
}

func TestRefreshScopeFilter(t *testing.T) {
	builds := 0
	s, _ := testScheduler(&builds)

	due := s.dueFeeds([]string{FeedTopTokens, "unknown_feed"}, false)
	if len(due) != 1 || due[0] != FeedTopTokens {
		t.Fatalf("due = %v, want [top_tokens]", due)
	}
}
