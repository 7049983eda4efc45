package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/pulse/internal/pulse"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs []message
	err  error
}

func (c *fakeConn) Publish(subj string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, message{subject: subj, data: data})
	return nil
}

func TestPublisher(t *testing.T) {
	var (
		conn = &fakeConn{}
		p    = NewPublisher(conn)
		ctx  = context.Background()
	)

	p.ReportSource(ctx, pulse.SourceResult{SourceID: "s1", HTTPStatus: 200, Metrics: pulse.Metrics{Fetched: 2}})
	p.ReportSummary(ctx, pulse.SeedSummary{RunID: "run", Results: []pulse.SourceResult{}})

	require.Len(t, conn.msgs, 2)
	assert.Equal(t, SubjectSource, conn.msgs[0].subject)
	assert.Equal(t, SubjectSummary, conn.msgs[1].subject)

	var got pulse.SourceResult
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &got))
	assert.Equal(t, "s1", got.SourceID)
	assert.Equal(t, 2, got.Metrics.Fetched)
}

func TestPublisher_NoConn(t *testing.T) {
	p, closeFn, err := Connect("")
	require.NoError(t, err)
	defer closeFn()

	assert.NotPanics(t, func() {
		p.ReportSource(context.Background(), pulse.SourceResult{})
		p.ReportSummary(context.Background(), pulse.SeedSummary{})
	})
}

func TestPublisher_FailuresSwallowed(t *testing.T) {
	p := NewPublisher(&fakeConn{err: errors.New("nats: connection closed")})

	assert.NotPanics(t, func() {
		p.ReportSource(context.Background(), pulse.SourceResult{SourceID: "s1"})
	})
}
