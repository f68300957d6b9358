// Package models defines the normalized records that flow from stream adapters
// through the ingestion queue into the sink.
package models

// TradeRecord is a single normalized trade as published to the ingestion queue.
type TradeRecord struct {
	// Exchange is the exchange identifier (e.g., "binance").
	Exchange string `json:"exchange"`

	// Symbol is the exchange symbol in upper case (e.g., "BTCUSDT").
	Symbol string `json:"symbol"`

	// TradeID is the exchange-assigned trade id.
	TradeID int64 `json:"tradeId"`

	// Price is the trade price in quote currency.
	Price float64 `json:"price"`

	// Quantity is the traded amount of base currency.
	Quantity float64 `json:"quantity"`

	// BuyerOrderID and SellerOrderID identify the matched orders.
	// Zero when the exchange no longer reports them.
	BuyerOrderID  int64 `json:"buyerOrderId"`
	SellerOrderID int64 `json:"sellerOrderId"`

	// EventTime is when the exchange emitted the event, in Unix milliseconds.
	EventTime int64 `json:"eventTime"`

	// TradeTime is when the trade was matched, in Unix milliseconds.
	TradeTime int64 `json:"tradeTime"`

	// IsBuyerMaker is true when the buyer was the resting order.
	IsBuyerMaker bool `json:"isBuyerMarketMaker"`
}
