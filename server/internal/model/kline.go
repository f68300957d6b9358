package model

import "time"

type Kline struct {
	Exchange    string    `gorm:"column:exchange" json:"exchange"`
	Symbol      string    `gorm:"column:symbol" json:"symbol"`
	Type        string    `gorm:"column:type" json:"type"`
	Source      string    `gorm:"column:source" json:"source"`
	Interval    string    `gorm:"column:interval" json:"interval"`
	Open        float64   `gorm:"column:open;type:Float64" json:"open"`
	High        float64   `gorm:"column:high;type:Float64" json:"high"`
	Low         float64   `gorm:"column:low;type:Float64" json:"low"`
	Close       float64   `gorm:"column:close;type:Float64" json:"close"`
	Volume      float64   `gorm:"column:volume;type:Float64" json:"volume"`
	QuoteVolume float64   `gorm:"column:quote_volume;type:Float64" json:"quote_volume"`
	Trades      float64   `gorm:"column:trades;type:Float64" json:"trades"`
	EventTime   time.Time `gorm:"column:event_time;type:DateTime64(3, 'UTC')" json:"event_time"`
	InsertedAt  time.Time `gorm:"column:inserted_at;type:DateTime64(3, 'UTC');default:now64(3)" json:"inserted_at"`
}

func (Kline) TableName() string {
	return "kline"
}
