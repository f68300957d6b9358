package service

import (
	"context"
	"errors"
	"strings"

	"github.com/navid-fn/minions/internal/control"
	"github.com/navid-fn/minions/server/internal/repository"
)

var ErrInvalidSymbol = errors.New("invalid symbol")

type WatchService struct {
	repo     repository.WatchRepository
	exchange string
}

func NewWatchService(repo repository.WatchRepository, exchange string) *WatchService {
	return &WatchService{repo: repo, exchange: exchange}
}

// GetWatches returns the persisted watch list without duplicates.
func (ws *WatchService) GetWatches(ctx context.Context) ([]string, error) {
	items, err := ws.repo.GetWatches(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

// AddWatch asks the orchestrator to start streaming symbol.
func (ws *WatchService) AddWatch(ctx context.Context, symbol string) (control.Command, error) {
	return ws.send(ctx, control.AddWatch, symbol)
}

// RemoveWatch asks the orchestrator to stop streaming symbol.
func (ws *WatchService) RemoveWatch(ctx context.Context, symbol string) (control.Command, error) {
	return ws.send(ctx, control.DelWatch, symbol)
}

func (ws *WatchService) send(ctx context.Context, name control.CommandName, symbol string) (control.Command, error) {
	symbol = NormalizeSymbol(symbol)
	if !ValidSymbol(symbol) {
		return control.Command{}, ErrInvalidSymbol
	}
	cmd := control.Command{Exchange: ws.exchange, Command: name, Symbol: symbol}
	return cmd, ws.repo.SendCommand(ctx, cmd)
}

func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidSymbol accepts upper-case letters and digits only.
func ValidSymbol(symbol string) bool {
	if symbol == "" || len(symbol) > 32 {
		return false
	}
	for _, r := range symbol {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
