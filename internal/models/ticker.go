package models

// Ticker is one row of a 24h rolling statistics snapshot.
type Ticker struct {
	Symbol      string  `json:"symbol"`
	LastPrice   float64 `json:"lastPrice"`
	Volume      float64 `json:"volume"`
	QuoteVolume float64 `json:"quoteVolume"`
	Count       int64   `json:"count"`
}
