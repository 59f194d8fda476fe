package repository

import (
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type RedisClient = *redis.Client
type DBClient = *gorm.DB

type Repository interface {
	GetMainRDB() RedisClient
	GetDB() DBClient
	GetSolanaClient() *rpc.Client
	Close() error
}
