package model

import "time"

type Trade struct {
	Exchange     string    `gorm:"column:exchange" json:"exchange"`
	Symbol       string    `gorm:"column:symbol" json:"symbol"`
	Type         string    `gorm:"column:type" json:"type"`
	Source       string    `gorm:"column:source" json:"source"`
	TradeID      string    `gorm:"column:trade_id;primaryKey" json:"trade_id"`
	IsBuyerMaker string    `gorm:"column:is_buyer_maker" json:"is_buyer_maker"`
	Price        float64   `gorm:"column:price;type:Float64" json:"price"`
	Quantity     float64   `gorm:"column:quantity;type:Float64" json:"quantity"`
	EventTime    time.Time `gorm:"column:event_time;type:DateTime64(3, 'UTC')" json:"event_time"`
	InsertedAt   time.Time `gorm:"column:inserted_at;type:DateTime64(3, 'UTC');default:now64(3)" json:"inserted_at"`
}

func (Trade) TableName() string {
	return "trade"
}
