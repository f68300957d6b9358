package binance

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/navid-fn/minions/internal/exchange"
	"github.com/navid-fn/minions/internal/models"
)

// Every single-letter key is declared, including the ones we ignore:
// encoding/json matches keys case-insensitively, so an undeclared "M" would
// land in the field tagged "m".

type combinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type eventHeader struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
}

type tradePayload struct {
	EventType     string          `json:"e"`
	EventTime     int64           `json:"E"`
	Symbol        string          `json:"s"`
	TradeID       int64           `json:"t"`
	Price         decimal.Decimal `json:"p"`
	Quantity      decimal.Decimal `json:"q"`
	BuyerOrderID  int64           `json:"b"`
	SellerOrderID int64           `json:"a"`
	TradeTime     int64           `json:"T"`
	IsBuyerMaker  bool            `json:"m"`
	Ignore        bool            `json:"M"`
}

type klinePayload struct {
	EventType string    `json:"e"`
	EventTime int64     `json:"E"`
	Symbol    string    `json:"s"`
	Kline     klineData `json:"k"`
}

type klineData struct {
	StartTime     int64           `json:"t"`
	CloseTime     int64           `json:"T"`
	Symbol        string          `json:"s"`
	Interval      string          `json:"i"`
	FirstTradeID  int64           `json:"f"`
	LastTradeID   int64           `json:"L"`
	Open          decimal.Decimal `json:"o"`
	Close         decimal.Decimal `json:"c"`
	High          decimal.Decimal `json:"h"`
	Low           decimal.Decimal `json:"l"`
	Volume        decimal.Decimal `json:"v"`
	Trades        int64           `json:"n"`
	IsFinal       bool            `json:"x"`
	QuoteVolume   decimal.Decimal `json:"q"`
	TakerBuyBase  decimal.Decimal `json:"V"`
	TakerBuyQuote decimal.Decimal `json:"Q"`
	Ignore        json.RawMessage `json:"B"`
}

type tickerPayload struct {
	Symbol      string          `json:"symbol"`
	LastPrice   decimal.Decimal `json:"lastPrice"`
	Volume      decimal.Decimal `json:"volume"`
	QuoteVolume decimal.Decimal `json:"quoteVolume"`
	Count       int64           `json:"count"`
}

// decodeEvent parses one frame of a combined stream. ok is false for frames
// that carry no trade or kline (subscription acks, unknown event types).
func decodeEvent(raw []byte) (ev exchange.Event, ok bool, err error) {
	var msg combinedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ev, false, fmt.Errorf("decode frame: %w", err)
	}
	data := msg.Data
	if len(data) == 0 {
		// raw (non-combined) stream frame
		data = raw
	}

	var header eventHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return ev, false, fmt.Errorf("decode header: %w", err)
	}

	switch exchange.EventType(header.EventType) {
	case exchange.EventTrade:
		var p tradePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return ev, false, fmt.Errorf("decode trade: %w", err)
		}
		return exchange.Event{Type: exchange.EventTrade, Trade: p.record()}, true, nil
	case exchange.EventKline:
		var p klinePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return ev, false, fmt.Errorf("decode kline: %w", err)
		}
		return exchange.Event{Type: exchange.EventKline, Kline: p.record()}, true, nil
	default:
		return ev, false, nil
	}
}

func (p tradePayload) record() models.TradeRecord {
	return models.TradeRecord{
		Exchange:      Name,
		Symbol:        p.Symbol,
		TradeID:       p.TradeID,
		Price:         p.Price.InexactFloat64(),
		Quantity:      p.Quantity.InexactFloat64(),
		BuyerOrderID:  p.BuyerOrderID,
		SellerOrderID: p.SellerOrderID,
		EventTime:     p.EventTime,
		TradeTime:     p.TradeTime,
		IsBuyerMaker:  p.IsBuyerMaker,
	}
}

func (p klinePayload) record() models.KlineRecord {
	k := p.Kline
	return models.KlineRecord{
		Exchange:    Name,
		Symbol:      p.Symbol,
		Interval:    k.Interval,
		OpenTime:    k.StartTime,
		CloseTime:   k.CloseTime,
		Open:        k.Open.InexactFloat64(),
		High:        k.High.InexactFloat64(),
		Low:         k.Low.InexactFloat64(),
		Close:       k.Close.InexactFloat64(),
		Volume:      k.Volume.InexactFloat64(),
		QuoteVolume: k.QuoteVolume.InexactFloat64(),
		Trades:      k.Trades,
		IsFinal:     k.IsFinal,
		EventTime:   p.EventTime,
	}
}

func (p tickerPayload) ticker() models.Ticker {
	return models.Ticker{
		Symbol:      p.Symbol,
		LastPrice:   p.LastPrice.InexactFloat64(),
		Volume:      p.Volume.InexactFloat64(),
		QuoteVolume: p.QuoteVolume.InexactFloat64(),
		Count:       p.Count,
	}
}
