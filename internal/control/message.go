// Package control carries watch commands and ranking updates between the
// ranking loop, operators and the orchestrator.
package control

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Type tags the envelope of a control message.
type Type string

const (
	TypeCommands   Type = "commands"
	TypeTopSymbols Type = "top_symbols"
	TypeIntervals  Type = "intervals"
)

// CommandName tags the payload of a commands message.
type CommandName string

const (
	AddWatch  CommandName = "add_watch"
	DelWatch  CommandName = "del_watch"
	ListWatch CommandName = "list_watch"
)

var (
	ErrMalformed      = errors.New("control: malformed message")
	ErrUnknownType    = errors.New("control: unknown message type")
	ErrUnknownCommand = errors.New("control: unknown command")
)

// Message is the wire form: {"type": ..., "data": ...}.
type Message struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Payload is one decoded message kind. The set is closed: Command,
// TopSymbols and Intervals are the only implementations.
type Payload interface {
	messageType() Type
}

// Command is a manual watch instruction for one exchange.
type Command struct {
	Exchange string      `json:"exchange"`
	Command  CommandName `json:"command"`
	Symbol   string      `json:"symbol,omitempty"`
}

// TopSymbols is a freshly ranked, ordered symbol list.
type TopSymbols struct {
	Symbols []string
}

// Intervals replaces the default kline interval set.
type Intervals struct {
	Intervals []string
}

func (Command) messageType() Type    { return TypeCommands }
func (TopSymbols) messageType() Type { return TypeTopSymbols }
func (Intervals) messageType() Type  { return TypeIntervals }

// Encode wraps a payload into its wire envelope.
func Encode(p Payload) ([]byte, error) {
	var data any
	switch v := p.(type) {
	case Command:
		data = v
	case TopSymbols:
		data = nonNil(v.Symbols)
	case Intervals:
		data = nonNil(v.Intervals)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, p)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", p.messageType(), err)
	}
	return json.Marshal(Message{Type: p.messageType(), Data: raw})
}

// Decode parses a wire envelope into its payload. Data may be inline JSON
// or a JSON string holding encoded JSON.
func Decode(raw []byte) (Payload, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	data, err := unwrap(msg.Data)
	if err != nil {
		return nil, err
	}

	switch msg.Type {
	case TypeCommands:
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("%w: commands: %v", ErrMalformed, err)
		}
		return cmd, cmd.validate()
	case TypeTopSymbols:
		var symbols []string
		if err := json.Unmarshal(data, &symbols); err != nil {
			return nil, fmt.Errorf("%w: top_symbols: %v", ErrMalformed, err)
		}
		return TopSymbols{Symbols: symbols}, nil
	case TypeIntervals:
		var intervals []string
		if err := json.Unmarshal(data, &intervals); err != nil {
			return nil, fmt.Errorf("%w: intervals: %v", ErrMalformed, err)
		}
		return Intervals{Intervals: intervals}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
}

func (c Command) validate() error {
	switch c.Command {
	case AddWatch, DelWatch:
		if strings.TrimSpace(c.Symbol) == "" {
			return fmt.Errorf("%w: %s without symbol", ErrMalformed, c.Command)
		}
		return nil
	case ListWatch:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, c.Command)
	}
}

func unwrap(data json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: missing data", ErrMalformed)
	}
	if trimmed[0] != '"' {
		return trimmed, nil
	}

	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return []byte(inner), nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
