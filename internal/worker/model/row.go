package model

import (
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// TrackedWallet registry 表中的一条受跟踪钱包
type TrackedWallet struct {
	ID        int64          `gorm:"column:id;primaryKey"`
	Address   string         `gorm:"column:address"`
	Tags      pq.StringArray `gorm:"column:tags;type:varchar(64)[]"`
	CreatedAt int64          `gorm:"column:created_at"` // 毫秒
}

func (TrackedWallet) TableName() string {
	return "smart_board.tracked_wallets"
}

// LeaderboardRow 榜单落库行，快照发布后由异步写入器批量 upsert
type LeaderboardRow struct {
	ID            int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Feed          string          `gorm:"column:feed;index:idx_feed_rank"`
	Rank          int             `gorm:"column:rank;index:idx_feed_rank"`
	WalletAddress string          `gorm:"column:wallet_address"`
	TotalPnl      decimal.Decimal `gorm:"column:total_pnl;type:decimal(38,18)"`
	RealizedPnl   decimal.Decimal `gorm:"column:realized_pnl;type:decimal(38,18)"`
	UnrealizedPnl decimal.Decimal `gorm:"column:unrealized_pnl;type:decimal(38,18)"`
	WinRate       float64         `gorm:"column:win_rate"`
	BuyCount      int             `gorm:"column:buy_count"`
	UniqueMints   int             `gorm:"column:unique_mints"`
	Tags          pq.StringArray  `gorm:"column:tags;type:varchar(64)[]"`
	TokenList     datatypes.JSON  `gorm:"column:token_list"`
	SnapshotTs    int64           `gorm:"column:snapshot_ts"` // 毫秒
	UpdatedAt     int64           `gorm:"column:updated_at"`  // 毫秒
}

func (LeaderboardRow) TableName() string {
	return "smart_board.wallet_leaderboard"
}
