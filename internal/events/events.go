// Package events announces seed results on NATS for anything downstream that
// wants to react to fresh articles.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/jdholdren/pulse/internal/pulse"
)

const (
	SubjectSource  = "pulse.ingest.source"
	SubjectSummary = "pulse.ingest.summary"
)

// Conn is the part of a NATS connection the publisher uses.
type Conn interface {
	Publish(subj string, data []byte) error
}

// Publisher publishes results as JSON. A Publisher without a connection does
// nothing.
type Publisher struct {
	conn Conn
}

func NewPublisher(conn Conn) *Publisher {
	return &Publisher{conn: conn}
}

// Connect dials url, returning a no-op publisher when url is empty. The close
// func drains the connection.
func Connect(url string) (*Publisher, func(), error) {
	if url == "" {
		return &Publisher{}, func() {}, nil
	}

	nc, err := nats.Connect(url, nats.Name("pulse-seed"))
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to nats: %w", err)
	}

	return NewPublisher(nc), func() {
		if err := nc.Drain(); err != nil {
			slog.Error("error draining nats connection", "error", err)
		}
	}, nil
}

func (p *Publisher) ReportSource(ctx context.Context, r pulse.SourceResult) {
	p.publish(ctx, SubjectSource, r)
}

func (p *Publisher) ReportSummary(ctx context.Context, s pulse.SeedSummary) {
	p.publish(ctx, SubjectSummary, s)
}

// Failures are only logged, they never affect a run.
func (p *Publisher) publish(ctx context.Context, subject string, v any) {
	if p == nil || p.conn == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		slog.ErrorContext(ctx, "error marshaling event", "subject", subject, "error", err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		slog.ErrorContext(ctx, "error publishing event", "subject", subject, "error", err)
	}
}
