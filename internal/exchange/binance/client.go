// Package binance implements the exchange collaborator over the Binance spot
// combined websocket streams and the REST 24h ticker.
package binance

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Name is the exchange identifier used in keys, tags and commands.
const Name = "binance"

const (
	DefaultStreamURL = "wss://stream.binance.com:9443"
	DefaultRESTURL   = "https://api.binance.com"

	httpTimeout = 10 * time.Second
)

// Config holds endpoint and pacing settings. Zero values use the defaults.
type Config struct {
	StreamURL string
	RESTURL   string

	// HTTPClient is used for REST calls.
	HTTPClient *http.Client

	// RESTEvery spaces REST requests; the full ticker costs a heavy weight.
	RESTEvery time.Duration

	// DialsPerSecond and DialBurst pace new stream connections.
	DialsPerSecond float64
	DialBurst      int

	// ReadTimeout bounds the silence tolerated on a stream (server pings reset it).
	ReadTimeout time.Duration
}

// Client talks to Binance. It is safe for concurrent use.
type Client struct {
	cfg         Config
	http        *http.Client
	restLimiter *rate.Limiter
	dialLimiter *rate.Limiter
	logger      *logrus.Entry
}

// NewClient applies defaults and builds the rate limiters.
func NewClient(cfg Config, logger *logrus.Entry) *Client {
	if cfg.StreamURL == "" {
		cfg.StreamURL = DefaultStreamURL
	}
	if cfg.RESTURL == "" {
		cfg.RESTURL = DefaultRESTURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: httpTimeout}
	}
	if cfg.RESTEvery <= 0 {
		cfg.RESTEvery = time.Second
	}
	if cfg.DialsPerSecond <= 0 {
		cfg.DialsPerSecond = 1
	}
	if cfg.DialBurst <= 0 {
		cfg.DialBurst = 5
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = wsReadTimeout
	}

	return &Client{
		cfg:         cfg,
		http:        cfg.HTTPClient,
		restLimiter: rate.NewLimiter(rate.Every(cfg.RESTEvery), 1),
		dialLimiter: rate.NewLimiter(rate.Limit(cfg.DialsPerSecond), cfg.DialBurst),
		logger:      logger,
	}
}

// Name returns the exchange identifier.
func (c *Client) Name() string {
	return Name
}
