package repository

import (
	"context"
	"scoreboard/metrics"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GameValue is the search index row for one full game category, keyed by
// game and category. Each upsert overwrites the previous record holder.
type GameValue struct {
	GameId            string    `gorm:"primaryKey"`
	CategoryId        string    `gorm:"primaryKey"`
	RunId             string    `gorm:"not null"`
	PlatformId        string    `gorm:"not null;default:''"`
	WorldRecordTime   int       `gorm:"not null"`
	WorldRecordPoints int       `gorm:"not null;index"`
	MeanTime          int       `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

type GameValueRepository struct {
	DB *gorm.DB
}

func NewGameValueRepository(db *gorm.DB) *GameValueRepository {
	return &GameValueRepository{DB: db}
}

func (r *GameValueRepository) Upsert(ctx context.Context, value *GameValue) error {
	timer := prometheus.NewTimer(metrics.QueryDuration.WithLabelValues("UpsertGameValue"))
	defer timer.ObserveDuration()
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "game_id"}, {Name: "category_id"}},
		UpdateAll: true,
	}).Create(value).Error
}

func (r *GameValueRepository) GetGameValue(ctx context.Context, gameId string, categoryId string) (*GameValue, error) {
	timer := prometheus.NewTimer(metrics.QueryDuration.WithLabelValues("GetGameValue"))
	defer timer.ObserveDuration()
	var value GameValue
	result := r.DB.WithContext(ctx).First(&value, &GameValue{GameId: gameId, CategoryId: categoryId})
	if result.Error != nil {
		return nil, result.Error
	}
	return &value, nil
}

// ListTopGameValues returns the categories worth the most points, optionally
// restricted to one platform.
func (r *GameValueRepository) ListTopGameValues(ctx context.Context, platformId string, limit int) ([]*GameValue, error) {
	timer := prometheus.NewTimer(metrics.QueryDuration.WithLabelValues("ListTopGameValues"))
	defer timer.ObserveDuration()
	query := r.DB.WithContext(ctx).Order("world_record_points DESC").Order("game_id").Order("category_id").Limit(limit)
	if platformId != "" {
		query = query.Where(&GameValue{PlatformId: platformId})
	}
	values := make([]*GameValue, 0)
	if err := query.Find(&values).Error; err != nil {
		return nil, err
	}
	return values, nil
}
