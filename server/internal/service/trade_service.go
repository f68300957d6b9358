package service

import (
	"context"

	"github.com/navid-fn/minions/server/internal/model"
	"github.com/navid-fn/minions/server/internal/repository"
)

const (
	defaultLimit = 10
	maxLimit     = 500
)

type TradesService struct {
	repo repository.TradeRepository
}

func NewTradesService(repo repository.TradeRepository) *TradesService {
	return &TradesService{
		repo: repo,
	}
}

func (ts *TradesService) GetLatestTrades(ctx context.Context, symbol string, limit int) ([]model.Trade, error) {
	return ts.repo.GetLatestTrades(ctx, NormalizeSymbol(symbol), clampLimit(limit))
}

func (ts *TradesService) GetCountTrades(ctx context.Context, symbol string) (int64, error) {
	return ts.repo.GetTradesCount(ctx, NormalizeSymbol(symbol))
}

func (ts *TradesService) GetLatestKlines(ctx context.Context, symbol, interval string, limit int) ([]model.Kline, error) {
	return ts.repo.GetLatestKlines(ctx, NormalizeSymbol(symbol), interval, clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return min(limit, maxLimit)
}
