package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/navid-fn/minions/server/internal/model"
)

type TradeRepository interface {
	GetLatestTrades(ctx context.Context, symbol string, limit int) ([]model.Trade, error)
	GetTradesCount(ctx context.Context, symbol string) (int64, error)
	GetLatestKlines(ctx context.Context, symbol, interval string, limit int) ([]model.Kline, error)
}

type gormTradeRepository struct {
	db *gorm.DB
}

func NewGormTradeRepository(db *gorm.DB) TradeRepository {
	return &gormTradeRepository{db: db}
}

func (gtr *gormTradeRepository) GetLatestTrades(ctx context.Context, symbol string, limit int) ([]model.Trade, error) {
	var trades []model.Trade
	query := gtr.db.WithContext(ctx).Order("event_time desc").Limit(limit)
	if symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}
	if err := query.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("latest trades: %w", err)
	}
	return trades, nil
}

func (gtr *gormTradeRepository) GetTradesCount(ctx context.Context, symbol string) (int64, error) {
	var count int64
	query := gtr.db.WithContext(ctx).Model(&model.Trade{})
	if symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return count, nil
}

func (gtr *gormTradeRepository) GetLatestKlines(ctx context.Context, symbol, interval string, limit int) ([]model.Kline, error) {
	var klines []model.Kline
	err := gtr.db.WithContext(ctx).
		Where("symbol = ? AND interval = ?", symbol, interval).
		Order("event_time desc").
		Limit(limit).
		Find(&klines).Error
	if err != nil {
		return nil, fmt.Errorf("latest klines: %w", err)
	}
	return klines, nil
}
