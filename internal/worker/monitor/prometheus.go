package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SnapshotBuildDuration 快照构建耗时
	SnapshotBuildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "smart_board",
		Name:      "snapshot_build_duration_seconds",
		Help:      "Duration of a full snapshot build",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// WalletsCollected 单次构建采集到的钱包数
	WalletsCollected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "smart_board",
		Name:      "wallets_collected",
		Help:      "Wallets collected in the latest snapshot build",
	})

	// WalletsDegraded 单次构建中降级为零活动的钱包数
	WalletsDegraded = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "smart_board",
		Name:      "wallets_degraded",
		Help:      "Wallets that degraded to empty activity in the latest build",
	})

	// GuardReusedPrevious 塌缩防护拒绝新快照、复用旧快照的次数
	GuardReusedPrevious = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "smart_board",
		Name:      "snapshot_guard_reused_previous_total",
		Help:      "Times the collapse guard rejected a new snapshot and kept the previous one",
	})

	// SnapshotReads 按缓存层级统计的快照读取次数
	SnapshotReads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smart_board",
		Name:      "snapshot_reads_total",
		Help:      "Snapshot reads by cache tier",
	}, []string{"tier"})

	// IngestEventsStored 去重后实际入库的推送事件数
	IngestEventsStored = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "smart_board",
		Name:      "ingest_events_stored_total",
		Help:      "Ingest events stored after dedup",
	})

	// IngestEventsDeduped 因重复键被丢弃的推送事件数
	IngestEventsDeduped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "smart_board",
		Name:      "ingest_events_deduped_total",
		Help:      "Ingest events dropped as duplicates",
	})

	// IngestEventsEvicted 因容量上限被淘汰的推送事件数
	IngestEventsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "smart_board",
		Name:      "ingest_events_evicted_total",
		Help:      "Ingest events evicted by the capacity cap",
	})

	// RPCRetries 链上 RPC 重试次数
	RPCRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "smart_board",
		Name:      "rpc_retries_total",
		Help:      "Chain RPC call retries",
	})

	// MarketLookupFailures 行情元数据查询失败次数
	MarketLookupFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "smart_board",
		Name:      "market_lookup_failures_total",
		Help:      "Token metadata lookup failures",
	})

	// RefreshRuns 按 feed 统计的刷新执行次数
	RefreshRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smart_board",
		Name:      "refresh_runs_total",
		Help:      "Refresh runs by feed",
	}, []string{"feed"})

	// AsyncWriterBatchSize 异步写入器单次落库批量大小
	AsyncWriterBatchSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "smart_board",
		Name:      "async_writer_batch_size",
		Help:      "Batch size per flush of the async writer",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"id"})

	// AsyncWriterItemsWritten 异步写入器累计写入条数
	AsyncWriterItemsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smart_board",
		Name:      "async_writer_items_written_total",
		Help:      "Items written by the async writer",
	}, []string{"id"})

	// AsyncWriterFlushDuration 异步写入器单次落库耗时
	AsyncWriterFlushDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "smart_board",
		Name:      "async_writer_flush_duration_seconds",
		Help:      "Flush duration of the async writer",
		Buckets:   prometheus.DefBuckets,
	}, []string{"id"})

	// AsyncWriterFlushCount 异步写入器落库次数
	AsyncWriterFlushCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smart_board",
		Name:      "async_writer_flush_total",
		Help:      "Flushes performed by the async writer",
	}, []string{"id"})
)

func init() {
	prometheus.MustRegister(
		SnapshotBuildDuration,
		WalletsCollected,
		WalletsDegraded,
		GuardReusedPrevious,
		SnapshotReads,
		IngestEventsStored,
		IngestEventsDeduped,
		IngestEventsEvicted,
		RPCRetries,
		MarketLookupFailures,
		RefreshRuns,
		AsyncWriterBatchSize,
		AsyncWriterItemsWritten,
		AsyncWriterFlushDuration,
		AsyncWriterFlushCount,
	)
}
