// Package ocapnats publishes engine state snapshots to a NATS subject as
// they happen, so other services can follow permission changes without
// polling the engine directly.
package ocapnats

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/domaincap/ocap-engine/go/ocap"
)

// Opts configures the connection to the NATS server.
type Opts struct {
	URL           string        `long:"url" env:"URL" description:"NATS server URL" default:"nats://localhost:4222"`
	Subject       string        `long:"subject" env:"SUBJECT" description:"Subject snapshots are published on" default:"ocap.snapshots"`
	ReconnectWait time.Duration `long:"reconnect-wait" env:"RECONNECT_WAIT" default:"1s"`
	TotalWait     time.Duration `long:"total-wait" env:"TOTAL_WAIT" default:"10m"`
}

// Publisher is an ocap.ChangeObserver that publishes every state snapshot as
// JSON to a NATS subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
	log     *slog.Logger
}

// Connect dials the configured NATS server and returns a ready Publisher.
func Connect(opts *Opts, log *slog.Logger) (*Publisher, error) {
	if log == nil {
		log = slog.Default()
	}
	options := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(int(opts.TotalWait / opts.ReconnectWait)),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("ocapnats: disconnected, will attempt reconnects", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("ocapnats: reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			if err := nc.LastError(); err != nil {
				log.Warn("ocapnats: connection closed", "error", err)
			}
		}),
	}
	conn, err := nats.Connect(opts.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	log.Info("ocapnats: connected", "url", opts.URL, "subject", opts.Subject)
	return &Publisher{conn: conn, subject: opts.Subject, log: log}, nil
}

// OnStateChange implements ocap.ChangeObserver.
func (p *Publisher) OnStateChange(state ocap.EngineState) {
	payload, err := json.Marshal(state)
	if err != nil {
		p.log.Error("ocapnats: marshaling snapshot", "error", err)
		return
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		p.log.Error("ocapnats: publishing snapshot", "error", err)
	}
}

// Close drains and closes the underlying NATS connection.
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.log.Warn("ocapnats: draining connection", "error", err)
	}
}
