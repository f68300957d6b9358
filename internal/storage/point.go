package storage

import (
	"strconv"
	"time"

	"github.com/navid-fn/minions/internal/models"
)

// Source tags every point written by this pipeline.
const Source = "minions"

// Point is one time-series write: a measurement, string tags, numeric
// fields and a millisecond-precision timestamp.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]float64
	Time        time.Time
}

const (
	MeasurementTrade = "trade"
	MeasurementKline = "kline"
)

func baseTags(exchange, symbol, kind string) map[string]string {
	return map[string]string{
		"exchange": exchange,
		"symbol":   symbol,
		"type":     kind,
		"source":   Source,
	}
}

// TradePoint converts a trade record, stamped with its trade time.
func TradePoint(t models.TradeRecord) Point {
	tags := baseTags(t.Exchange, t.Symbol, MeasurementTrade)
	tags["trade_id"] = strconv.FormatInt(t.TradeID, 10)
	tags["is_buyer_maker"] = strconv.FormatBool(t.IsBuyerMaker)

	return Point{
		Measurement: MeasurementTrade,
		Tags:        tags,
		Fields: map[string]float64{
			"price":    t.Price,
			"quantity": t.Quantity,
		},
		Time: time.UnixMilli(t.TradeTime).UTC(),
	}
}

// KlinePoint converts a kline record, stamped with its close time.
func KlinePoint(k models.KlineRecord) Point {
	tags := baseTags(k.Exchange, k.Symbol, MeasurementKline)
	tags["interval"] = k.Interval

	return Point{
		Measurement: MeasurementKline,
		Tags:        tags,
		Fields: map[string]float64{
			"open":         k.Open,
			"high":         k.High,
			"low":          k.Low,
			"close":        k.Close,
			"volume":       k.Volume,
			"quote_volume": k.QuoteVolume,
			"trades":       float64(k.Trades),
		},
		Time: time.UnixMilli(k.CloseTime).UTC(),
	}
}
