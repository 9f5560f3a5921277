// Package notify publishes simulation snapshots to NATS.
package notify

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	triathlon "github.com/LuisLeon1705/Triatlon-Ujap"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Default subjects.
const (
	DefaultStandingsSubject = "triathlon.standings"
	DefaultLifecycleSubject = "triathlon.lifecycle"
)

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// Config holds NATS configuration
type Config struct {
	URL              string
	Name             string
	ReconnectWait    time.Duration
	MaxReconnects    int
	ConnectTimeout   time.Duration
	StandingsSubject string
	LifecycleSubject string
}

// DefaultConfig returns a Config for url with the default subjects.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		Name:             "triathlon-simulator",
		ReconnectWait:    2 * time.Second,
		MaxReconnects:    -1,
		ConnectTimeout:   5 * time.Second,
		StandingsSubject: DefaultStandingsSubject,
		LifecycleSubject: DefaultLifecycleSubject,
	}
}

// LifecycleMessage is published when a run starts, finishes or is reset.
type LifecycleMessage struct {
	RunID     string          `json:"runId,omitempty"`
	Event     triathlon.Event `json:"event"`
	State     string          `json:"state"`
	Mode      triathlon.Mode  `json:"mode"`
	StartTime *time.Time      `json:"startTime,omitempty"`
	Racers    int             `json:"racers"`
	Finishers int             `json:"finishers"`
	Sent      time.Time       `json:"sent"`
}

// Publisher sends every Standings snapshot to NATS. It implements
// triathlon.Listener; publish failures are logged, never returned.
type Publisher struct {
	mu     sync.Mutex
	conn   Conn
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	published  atomic.Uint64
	failed     atomic.Uint64
	reconnects atomic.Int64
	closed     bool
}

// Connect dials NATS and returns a publisher over the connection.
func Connect(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	p := newPublisher(nil, cfg, logger)

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			p.reconnects.Add(1)
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	p.conn = conn

	logger.Info("connected to nats",
		zap.String("url", cfg.URL),
		zap.String("standings_subject", p.cfg.StandingsSubject),
		zap.String("lifecycle_subject", p.cfg.LifecycleSubject))
	return p, nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn Conn, cfg Config, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return newPublisher(conn, cfg, logger)
}

func newPublisher(conn Conn, cfg Config, logger *zap.Logger) *Publisher {
	if cfg.StandingsSubject == "" {
		cfg.StandingsSubject = DefaultStandingsSubject
	}
	if cfg.LifecycleSubject == "" {
		cfg.LifecycleSubject = DefaultLifecycleSubject
	}
	return &Publisher{
		conn:   conn,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// StateChanged publishes s, and a LifecycleMessage for lifecycle events.
func (p *Publisher) StateChanged(s triathlon.Standings) {
	p.publish(p.cfg.StandingsSubject, s)

	if s.Event.Lifecycle() {
		p.publish(p.cfg.LifecycleSubject, p.lifecycleMessage(s))
	}
}

func (p *Publisher) lifecycleMessage(s triathlon.Standings) LifecycleMessage {
	msg := LifecycleMessage{
		RunID:     s.RunID,
		Event:     s.Event,
		State:     s.State,
		Mode:      s.Mode,
		StartTime: s.StartTime,
		Racers:    len(s.Rows),
		Sent:      p.now(),
	}
	for _, row := range s.Rows {
		if row.Finished && !row.Disqualified {
			msg.Finishers++
		}
	}
	return msg
}

func (p *Publisher) publish(subject string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.failed.Add(1)
		p.logger.Error("failed to marshal notification", zap.String("subject", subject), zap.Error(err))
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.conn == nil {
		p.failed.Add(1)
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		p.failed.Add(1)
		p.logger.Warn("failed to publish notification", zap.String("subject", subject), zap.Error(err))
		return
	}
	p.published.Add(1)
}

// Published returns how many messages were handed to NATS.
func (p *Publisher) Published() uint64 { return p.published.Load() }

// Failed returns how many messages could not be published.
func (p *Publisher) Failed() uint64 { return p.failed.Load() }

// Reconnects returns how many times the connection was re-established.
func (p *Publisher) Reconnects() int64 { return p.reconnects.Load() }

// Close closes the connection. Later snapshots are dropped.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	if p.conn != nil {
		p.conn.Close()
	}
}
