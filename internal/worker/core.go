package worker

import (
	"context"
	"sort"
	"time"

	"smart-board/internal/worker/api"
	"smart-board/internal/worker/builder"
	"smart-board/internal/worker/collector"
	"smart-board/internal/worker/config"
	"smart-board/internal/worker/consumer"
	"smart-board/internal/worker/dao"
	"smart-board/internal/worker/ingest"
	"smart-board/internal/worker/job"
	"smart-board/internal/worker/market"
	"smart-board/internal/worker/model"
	"smart-board/internal/worker/monitor"
	"smart-board/internal/worker/refresh"
	"smart-board/internal/worker/registry"
	"smart-board/internal/worker/repository"
	"smart-board/internal/worker/snapcache"
	"smart-board/internal/worker/writer"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

const boardFeed = "board"

type Core struct {
	cfg       config.Config
	tl        *zap.Logger
	repo      repository.Repository
	reg       *registry.Registry
	store     *ingest.Store
	cache     *snapcache.Cache
	builder   *builder.Builder
	sched     *refresh.Scheduler
	scheduler *job.Scheduler
	consumers []*consumer.Consumer
	rowWriter *writer.AsyncBatchWriter[model.LeaderboardRow]
	apiServer *api.Server
	metrics   *monitor.MetricsServer
}

func New(cfg config.Config, logger *zap.Logger) *Core {
	scheduler := job.NewScheduler(logger)
	repo := repository.New(cfg, logger)

	reg := registry.New(cfg.Tracker, logger, repo.GetDB())
	store := ingest.NewStore(cfg.Ingest, logger, repo.GetMainRDB())
	cache := snapcache.New(cfg.Cache, logger, repo.GetMainRDB(), boardFeed)

	coll := collector.New(cfg.Tracker, logger, repo.GetSolanaClient())
	mkt := market.NewClient(cfg.Market, logger, repo.GetMainRDB())
	bld := builder.New(cfg.Tracker, logger, reg, coll, store, mkt, cache)

	// 多进程部署抢 Redis 锁，没配 Redis 时退化为进程内互斥
	var mutex refresh.Mutex
	if repo.GetMainRDB() != nil {
		mutex = refresh.NewRedisMutex(repo.GetMainRDB(), time.Now().Format("20060102150405.000000000"))
	} else {
		mutex = refresh.NewLocalMutex()
	}
	sched := refresh.NewScheduler(cfg.Refresh, logger, mutex, bld.BuildAndPublish)

	// 过期读触发的后台重建走和显式刷新同一条路
	cache.SetRebuild(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := sched.Refresh(ctx, nil, true); err != nil {
			logger.Warn("background rebuild failed", zap.Error(err))
		}
	})

	// 启动热身：先从 Redis 恢复推送事件，再建一版快照
	scheduler.RegisterOnceJob("warmup", func(ctx context.Context) error {
		store.Load(ctx)
		_, err := sched.Refresh(ctx, nil, true)
		return err
	})

	// 到期检查跑得比最短的 feed 周期更密，具体是否重建由调度器判定
	tick := time.Duration(cfg.Refresh.TopTokensIntervalMin) * time.Minute / 2
	if tick < time.Minute {
		tick = time.Minute
	}
	scheduler.RegisterJob("refresh_check", tick, func(ctx context.Context) error {
		_, err := sched.Refresh(ctx, nil, false)
		return err
	})

	var consumers []*consumer.Consumer
	if cfg.Kafka.Brokers != "" && cfg.Kafka.TopicIngest != "" {
		consumers = append(consumers, consumer.NewConsumer(cfg.Kafka, logger, cfg.Kafka.TopicIngest))
	}

	core := &Core{
		cfg:       cfg,
		tl:        logger,
		repo:      repo,
		reg:       reg,
		store:     store,
		cache:     cache,
		builder:   bld,
		sched:     sched,
		scheduler: scheduler,
		consumers: consumers,
		apiServer: api.NewServer(cfg.API, logger, cache, sched, reg, store, mkt),
		metrics:   monitor.NewMetricsServer(cfg.Monitor),
	}

	if repo.GetDB() != nil {
		leaderboardDao := dao.NewLeaderboardDao(logger, repo.GetDB())
		core.rowWriter = writer.NewAsyncBatchWriter[model.LeaderboardRow](
			logger, leaderboardDao, 200, 5*time.Second, "leaderboard", 1)
		// 榜单落库随周期性快照同步，不在发布路径上
		scheduler.RegisterJob("leaderboard_persist", 5*time.Minute, core.persistLeaderboard)
	}

	return core
}

func (c *Core) Start(ctx context.Context) {
	c.tl.Info("Starting worker core...")

	if c.metrics != nil {
		c.metrics.Run()
	}

	c.reg.StartAutoReload(10 * time.Minute)

	handler := consumer.NewIngestHandler(c.tl, c.reg, c.store)
	for _, cons := range c.consumers {
		cons.Start(ctx, handler)
	}

	if c.rowWriter != nil {
		c.rowWriter.Start(ctx)
	}

	c.scheduler.Start(ctx)
	c.apiServer.Run()
	c.tl.Info("Worker started successfully")

	<-ctx.Done()
	c.tl.Info("Shutting down worker due to context cancellation...")
}

// persistLeaderboard 把当前快照的钱包榜展开成行丢给异步写入器
func (c *Core) persistLeaderboard(ctx context.Context) error {
	snap := c.cache.Current(ctx)
	if snap == nil {
		return nil
	}
	now := time.Now().UnixMilli()
	for _, row := range snap.TopWallets {
		var mints []string
		if a := snap.Activity(row.Wallet); a != nil {
			for mint := range a.Positions {
				mints = append(mints, mint)
			}
			sort.Strings(mints)
		}
		tokenList, _ := sonic.Marshal(mints)
		c.rowWriter.Submit(model.LeaderboardRow{
			Feed:          refresh.FeedSmartWallets,
			Rank:          row.Rank,
			WalletAddress: row.Wallet,
			TotalPnl:      row.TotalPnl,
			RealizedPnl:   row.RealizedPnl,
			UnrealizedPnl: row.UnrealizedPnl,
			WinRate:       row.WinRate,
			BuyCount:      row.BuyCount,
			UniqueMints:   row.UniqueMints,
			Tags:          c.reg.Tags(row.Wallet),
			TokenList:     tokenList,
			SnapshotTs:    snap.Timestamp,
			UpdatedAt:     now,
		})
	}
	return nil
}

// Stop 优雅关闭 Core 的所有资源
func (c *Core) Stop(ctx context.Context) {
	c.tl.Info("Stopping worker core...")

	for _, cons := range c.consumers {
		cons.Stop()
	}

	if c.scheduler != nil {
		c.scheduler.Stop(ctx)
	}

	if c.rowWriter != nil {
		c.rowWriter.Close()
	}

	if c.apiServer != nil {
		_ = c.apiServer.Stop(ctx)
	}

	if c.metrics != nil {
		_ = c.metrics.Stop(ctx)
	}

	c.reg.Stop()
	c.repo.Close()

	c.tl.Info("Worker core stopped.")
}
