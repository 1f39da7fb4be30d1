package natsbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/transport"
)

// Name is the transport identifier used in config and metrics.
const Name = "nats"

// Transport publishes notification envelopes on a NATS subject. With
// JetStream enabled a send counts as confirmed once the stream acks it;
// otherwise once the server has processed a flush.
type Transport struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

var _ transport.Transport = (*Transport)(nil)

// New connects to the server described by cfg.
func New(cfg model.NATSConfig) (*Transport, error) {
	subject := strings.TrimSpace(cfg.Subject)
	if subject == "" {
		return nil, errors.New("nats subject is empty")
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("ghwatch"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS %s: %w", cfg.URL, err)
	}

	t := &Transport{conn: conn, subject: subject}
	if cfg.JetStream {
		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("creating JetStream context: %w", err)
		}
		t.js = js
	}
	return t, nil
}

func (t *Transport) Name() string { return Name }

// Send publishes the envelope of n.
func (t *Transport) Send(ctx context.Context, n model.NotificationRecord) error {
	msg, err := buildMsg(t.subject, n)
	if err != nil {
		return transport.Wrap(Name, err)
	}

	if t.js != nil {
		if _, err := t.js.PublishMsg(ctx, msg); err != nil {
			return transport.Wrap(Name, fmt.Errorf("publishing to stream on %s: %w", t.subject, err))
		}
		return nil
	}

	if err := t.conn.PublishMsg(msg); err != nil {
		return transport.Wrap(Name, fmt.Errorf("publishing on %s: %w", t.subject, err))
	}
	if err := t.conn.FlushWithContext(ctx); err != nil {
		return transport.Wrap(Name, fmt.Errorf("flushing %s: %w", t.subject, err))
	}
	return nil
}

// Close drains and closes the connection.
func (t *Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Drain()
}

func buildMsg(subject string, n model.NotificationRecord) (*nats.Msg, error) {
	data, err := transport.MarshalEnvelope(n)
	if err != nil {
		return nil, err
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, transport.MessageID(n))
	msg.Header.Set("Ghwatch-Change", string(n.ChangeKind))
	msg.Header.Set("Ghwatch-Entity", n.Entity.String())
	return msg, nil
}
