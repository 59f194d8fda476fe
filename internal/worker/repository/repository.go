package repository

import (
	"context"
	"strings"
	"sync"

	"smart-board/internal/worker/config"
	"smart-board/pkg/database"
	"smart-board/pkg/solana_client"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var once sync.Once
var r *repositoryImpl

func New(cfg config.Config, logger *zap.Logger) Repository {
	once.Do(func() {
		r = &repositoryImpl{
			cfg:    cfg,
			logger: logger,
		}
		r.init()
	})
	return r
}

type repositoryImpl struct {
	cfg          config.Config
	logger       *zap.Logger
	db           *gorm.DB
	mainRdb      *redis.Client
	solanaClient *rpc.Client
}

func (r *repositoryImpl) init() {
	// Postgres 可选，DSN 为空则跳过（registry 回退到配置名单，榜单落库关闭）
	if strings.TrimSpace(r.cfg.Postgres.DSN) != "" {
		var err error
		r.db, err = database.InitPG(r.cfg.Postgres.DSN)
		if err != nil {
			r.logger.Warn("failed to connect to postgres, continue without it", zap.Error(err))
		}
	} else {
		r.logger.Info("postgres dsn empty, skip postgres initialization")
	}

	r.mainRdb = redis.NewClient(&redis.Options{
		Addr:     r.cfg.Redis.Address,
		Password: r.cfg.Redis.Password,
		DB:       r.cfg.Redis.DB,
		PoolSize: 20,
	})

	if err := r.mainRdb.Ping(context.Background()).Err(); err != nil {
		r.logger.Warn("failed to connect to redis, continue", zap.Error(err))
	}

	r.solanaClient = solana_client.Init(r.cfg.SolanaClientRawUrl)
}

func (r *repositoryImpl) GetMainRDB() *redis.Client {
	return r.mainRdb
}

func (r *repositoryImpl) GetDB() *gorm.DB {
	return r.db
}

func (r *repositoryImpl) GetSolanaClient() *rpc.Client {
	return r.solanaClient
}

func (r *repositoryImpl) Close() error {
	if r.db != nil {
		sqlDB, _ := r.db.DB()
		sqlDB.Close()
	}
	if r.mainRdb != nil {
		r.mainRdb.Close()
	}
	return nil
}
