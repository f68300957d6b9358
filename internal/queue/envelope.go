// Package queue is the Ingestion Queue: normalized records travel over Kafka
// inside a small JSON envelope and are committed explicitly by consumers.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/navid-fn/minions/internal/models"
)

// EventType discriminates the payload of an envelope.
type EventType string

const (
	EventTrade EventType = "trade"
	EventKline EventType = "kline"
)

// EventTypes lists every known event type.
func EventTypes() []EventType {
	return []EventType{EventTrade, EventKline}
}

func (t EventType) valid() bool {
	switch t {
	case EventTrade, EventKline:
		return true
	}
	return false
}

var (
	ErrMalformed        = errors.New("queue: malformed envelope")
	ErrUnknownEventType = errors.New("queue: unknown event type")
)

// Envelope wraps one record. Attempt counts deliveries already tried.
type Envelope struct {
	ID          string          `json:"id"`
	EventType   EventType       `json:"eventType"`
	Attempt     int             `json:"attempt"`
	PublishedAt int64           `json:"publishedAt"`
	Payload     json.RawMessage `json:"payload"`
}

// NewEnvelope encodes payload under a fresh id.
func NewEnvelope(t EventType, payload any) (Envelope, error) {
	if !t.valid() {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownEventType, t)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Envelope{
		ID:          uuid.NewString(),
		EventType:   t,
		PublishedAt: time.Now().UnixMilli(),
		Payload:     raw,
	}, nil
}

// Encode returns the wire form.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Retry returns a copy for the next delivery attempt.
func (e Envelope) Retry() Envelope {
	e.Attempt++
	e.PublishedAt = time.Now().UnixMilli()
	return e
}

// DecodeEnvelope parses and validates the wire form.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !e.EventType.valid() {
		return e, fmt.Errorf("%w: %q", ErrUnknownEventType, e.EventType)
	}
	if len(e.Payload) == 0 {
		return e, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	return e, nil
}

// Trade decodes a trade payload.
func (e Envelope) Trade() (models.TradeRecord, error) {
	var t models.TradeRecord
	if e.EventType != EventTrade {
		return t, fmt.Errorf("%w: want trade, got %q", ErrMalformed, e.EventType)
	}
	if err := json.Unmarshal(e.Payload, &t); err != nil {
		return t, fmt.Errorf("%w: trade: %v", ErrMalformed, err)
	}
	return t, nil
}

// Kline decodes a kline payload.
func (e Envelope) Kline() (models.KlineRecord, error) {
	var k models.KlineRecord
	if e.EventType != EventKline {
		return k, fmt.Errorf("%w: want kline, got %q", ErrMalformed, e.EventType)
	}
	if err := json.Unmarshal(e.Payload, &k); err != nil {
		return k, fmt.Errorf("%w: kline: %v", ErrMalformed, err)
	}
	return k, nil
}
