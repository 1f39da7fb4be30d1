package logsink

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/transport"
)

// Name is the transport identifier used in config and metrics.
const Name = "log"

// Transport writes each notification to the log. It never fails, which
// makes it the dry-run channel.
type Transport struct {
	log zerolog.Logger
}

var _ transport.Transport = (*Transport)(nil)

// New creates a log transport writing through log.
func New(log zerolog.Logger) *Transport {
	return &Transport{log: log.With().Str("transport", Name).Logger()}
}

func (t *Transport) Name() string { return Name }

func (t *Transport) Send(ctx context.Context, n model.NotificationRecord) error {
	if err := ctx.Err(); err != nil {
		return transport.Wrap(Name, err)
	}
	t.log.Info().
		Int64("notification_id", n.ID).
		Str("kind", string(n.Entity.Kind)).
		Str("ref", n.Entity.Ref).
		Str("change", string(n.ChangeKind)).
		Str("url", n.Payload.URL).
		Msg(n.Payload.Text)
	return nil
}

func (t *Transport) Close() error { return nil }
