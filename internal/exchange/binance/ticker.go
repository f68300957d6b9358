package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/navid-fn/minions/internal/models"
)

const tickerPath = "/api/v3/ticker/24hr"

// Ticker24h fetches the 24h rolling statistics of every symbol.
func (c *Client) Ticker24h(ctx context.Context) ([]models.Ticker, error) {
	if err := c.restLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait rest slot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.RESTURL+tickerPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build ticker request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ticker request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ticker status %d: %s", resp.StatusCode, body)
	}

	var payload []tickerPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode ticker: %w", err)
	}

	tickers := make([]models.Ticker, len(payload))
	for i, p := range payload {
		tickers[i] = p.ticker()
	}
	return tickers, nil
}
