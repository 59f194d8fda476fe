package dao

import (
	"context"

	"smart-board/internal/worker/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LeaderboardDao 榜单行落库，按 (feed, wallet_address) upsert
// 实现 writer.BatchWriter[model.LeaderboardRow]
type LeaderboardDao struct {
	tl *zap.Logger
	db *gorm.DB
}

func NewLeaderboardDao(tl *zap.Logger, db *gorm.DB) *LeaderboardDao {
	return &LeaderboardDao{tl: tl, db: db}
}

func (d *LeaderboardDao) BWrite(ctx context.Context, batch []model.LeaderboardRow) error {
	if d.db == nil || len(batch) == 0 {
		return nil
	}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "feed"}, {Name: "wallet_address"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"rank", "total_pnl", "realized_pnl", "unrealized_pnl",
			"win_rate", "buy_count", "unique_mints", "tags",
			"token_list", "snapshot_ts", "updated_at",
		}),
	}).Create(&batch).Error
	if err != nil {
		d.tl.Error("failed to upsert leaderboard rows", zap.Int("rows", len(batch)), zap.Error(err))
	}
	return err
}

func (d *LeaderboardDao) Close() error {
	return nil
}
