package ingest

import (
	"context"
	"testing"
	"time"

	"smart-board/internal/worker/config"
	"smart-board/internal/worker/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newTestStore(maxEvents, ttlMinutes int) *Store {
	return NewStore(config.IngestConfig{MaxEvents: maxEvents, TTLMinutes: ttlMinutes}, zap.NewNop(), nil)
}

func ev(sig, wallet, mint string, blockTime int64) model.TransferEvent {
	return model.TransferEvent{
		Signature: sig,
		BlockTime: blockTime,
		Wallet:    wallet,
		Mint:      mint,
		Amount:    decimal.NewFromInt(1),
	}
}

func TestAppendDedup(t *testing.T) {
	s := newTestStore(10, 60)
	now := time.Now().Unix()

	stored, total := s.Append(context.Background(), []model.TransferEvent{
		ev("s1", "w1", "m1", now),
		ev("s1", "w1", "m1", now), // 同键重复
		ev("s1", "w1", "m2", now), // mint 不同，另一条
	})
	if stored != 2 || total != 2 {
		t.Fatalf("stored/total = %d/%d, want 2/2", stored, total)
	}

	// 再推一遍全是重复
	stored, total = s.Append(context.Background(), []model.TransferEvent{
		ev("s1", "w1", "m1", now),
		ev("s1", "w1", "m2", now),
	})
	if stored != 0 || total != 2 {
		t.Fatalf("stored/total = %d/%d, want 0/2", stored, total)
	}
}

func TestAppendEvictsOldestOverCapacity(t *testing.T) {
	s := newTestStore(3, 60)
	now := time.Now().Unix()

	s.Append(context.Background(), []model.TransferEvent{
		ev("s1", "w1", "m1", now),
		ev("s2", "w1", "m1", now),
		ev("s3", "w1", "m1", now),
		ev("s4", "w1", "m1", now),
	})

	events := s.Read()
	if len(events) != 3 {
		t.Fatalf("len = %d, want 3", len(events))
	}
	for _, e := range events {
		if e.Signature == "s1" {
			t.Fatal("oldest event s1 should have been evicted")
		}
	}

	// 被淘汰的键可以重新入库
	stored, _ := s.Append(context.Background(), []model.TransferEvent{ev("s1", "w1", "m1", now)})
	if stored != 1 {
		t.Fatalf("re-append stored = %d, want 1", stored)
	}
}

func TestReadExpiresByTTL(t *testing.T) {
	s := newTestStore(10, 30)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.Append(context.Background(), []model.TransferEvent{
		ev("s1", "w1", "m1", base.Unix()),
		ev("s2", "w1", "m1", base.Add(-time.Hour).Unix()), // 已超 TTL
	})

	events := s.Read()
	if len(events) != 1 || events[0].Signature != "s1" {
		t.Fatalf("events = %+v, want only s1", events)
	}

	// 时间推进后 s1 也过期
	s.now = func() time.Time { return base.Add(time.Hour) }
	if got := s.Read(); len(got) != 0 {
		t.Fatalf("events = %+v, want empty", got)
	}
}
