// Package store holds the Redis-backed persistent lists, the Recency Store
// and the published price extrema.
package store

import "strings"

// TradeKey is the recency key of a symbol's trades.
func TradeKey(symbol, exchange string) string {
	return join("trade", symbol, exchange)
}

// KlineKey is the recency key of a symbol's candles at one interval.
func KlineKey(symbol, interval, exchange string) string {
	return join("kline", symbol, interval, exchange)
}

// HighKey holds the latest high of one bucket.
func HighKey(bucket, symbol, exchange string) string {
	return join("high", bucket, symbol, exchange)
}

// LowKey holds the latest low of one bucket.
func LowKey(bucket, symbol, exchange string) string {
	return join("low", bucket, symbol, exchange)
}

func join(parts ...string) string {
	return strings.Join(parts, ":")
}
