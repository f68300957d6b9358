package models

// KlineRecord is a single normalized candle update.
type KlineRecord struct {
	// Exchange is the exchange identifier (e.g., "binance").
	Exchange string `json:"exchange"`

	// Symbol is the exchange symbol in upper case.
	Symbol string `json:"symbol"`

	// Interval is the candle timeframe label: "1h", "4h", "1d", etc.
	Interval string `json:"interval"`

	// OpenTime and CloseTime bound the candle, in Unix milliseconds.
	OpenTime  int64 `json:"openTime"`
	CloseTime int64 `json:"closeTime"`

	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`

	// QuoteVolume is the traded volume expressed in quote currency.
	QuoteVolume float64 `json:"quoteAssetVolume"`

	// Trades is the number of trades aggregated into the candle.
	Trades int64 `json:"trades"`

	// IsFinal is true once the candle period has closed.
	IsFinal bool `json:"isKlineClosed"`

	// EventTime is when the exchange emitted the update, in Unix milliseconds.
	EventTime int64 `json:"eventTime"`
}
