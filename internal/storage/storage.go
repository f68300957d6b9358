// Package storage writes time-series points into ClickHouse.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

var ErrUnknownMeasurement = errors.New("storage: unknown measurement")

// Sink accepts batched point writes.
// Implementations must be safe for concurrent use.
type Sink interface {
	// WritePoints inserts the points; all of them or none are acknowledged.
	WritePoints(ctx context.Context, points []Point) error

	// Close releases database connection resources.
	Close() error
}

// table maps a measurement onto its ClickHouse table. Columns are tags,
// then fields, then event_time.
type table struct {
	name   string
	tags   []string
	fields []string
}

var tables = map[string]table{
	MeasurementTrade: {
		name:   "trade",
		tags:   []string{"exchange", "symbol", "type", "source", "trade_id", "is_buyer_maker"},
		fields: []string{"price", "quantity"},
	},
	MeasurementKline: {
		name:   "kline",
		tags:   []string{"exchange", "symbol", "type", "source", "interval"},
		fields: []string{"open", "high", "low", "close", "volume", "quote_volume", "trades"},
	},
}

func (t table) insertSQL() string {
	columns := make([]string, 0, len(t.tags)+len(t.fields)+1)
	columns = append(columns, t.tags...)
	columns = append(columns, t.fields...)
	columns = append(columns, "event_time")
	return fmt.Sprintf("INSERT INTO %s (%s)", t.name, strings.Join(columns, ", "))
}

// row orders a point's values like insertSQL. Missing tags are empty and
// missing fields are zero.
func (t table) row(p Point) []any {
	values := make([]any, 0, len(t.tags)+len(t.fields)+1)
	for _, tag := range t.tags {
		values = append(values, p.Tags[tag])
	}
	for _, field := range t.fields {
		values = append(values, p.Fields[field])
	}
	return append(values, p.Time)
}

// groupByMeasurement keeps the first-seen order of measurements.
func groupByMeasurement(points []Point) ([]string, map[string][]Point, error) {
	var order []string
	groups := make(map[string][]Point)
	for _, p := range points {
		if _, ok := tables[p.Measurement]; !ok {
			return nil, nil, fmt.Errorf("%w: %q", ErrUnknownMeasurement, p.Measurement)
		}
		if _, seen := groups[p.Measurement]; !seen {
			order = append(order, p.Measurement)
		}
		groups[p.Measurement] = append(groups[p.Measurement], p)
	}
	return order, groups, nil
}

// asyncInsert lets the server coalesce the small per-message batches into
// larger parts. Waiting keeps WritePoints failing when the flush fails.
var asyncInsert = clickhouse.Settings{
	"async_insert":          1,
	"wait_for_async_insert": 1,
}

// clickhouseSink implements Sink using native ClickHouse driver.
// Uses batch inserts for high-throughput data ingestion.
type clickhouseSink struct {
	conn driver.Conn
}

// NewClickHouseSink creates a new ClickHouse connection.
// It parses the DSN, opens a connection, and verifies connectivity with a ping.
// Returns an error if connection cannot be established within 5 seconds.
func NewClickHouseSink(dsn string) (Sink, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	// Test connection with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, err
	}

	return &clickhouseSink{conn: conn}, nil
}

// WritePoints sends one async-insert batch per measurement.
func (s *clickhouseSink) WritePoints(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	order, groups, err := groupByMeasurement(points)
	if err != nil {
		return err
	}

	ctx = clickhouse.Context(ctx, clickhouse.WithSettings(asyncInsert))
	for _, m := range order {
		t := tables[m]
		batch, err := s.conn.PrepareBatch(ctx, t.insertSQL())
		if err != nil {
			return fmt.Errorf("prepare %s batch: %w", t.name, err)
		}
		for _, p := range groups[m] {
			if err := batch.Append(t.row(p)...); err != nil {
				return fmt.Errorf("append %s row: %w", t.name, err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("send %s batch: %w", t.name, err)
		}
	}
	return nil
}

// Close closes the ClickHouse connection.
func (s *clickhouseSink) Close() error {
	return s.conn.Close()
}
