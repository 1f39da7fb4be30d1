// Package mailbox delivers notifications by appending a rendered e-mail
// to an IMAP folder, so any mail client subscribed to it sees them.
package mailbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/transport"
)

// Name is the transport identifier used in config and metrics.
const Name = "mailbox"

// Transport appends one message per notification to an IMAP mailbox.
type Transport struct {
	cfg      model.MailboxConfig
	password string
	now      func() time.Time
}

var _ transport.Transport = (*Transport)(nil)

// New creates a mailbox transport. The password is already resolved.
func New(cfg model.MailboxConfig, password string) (*Transport, error) {
	if cfg.Host == "" || cfg.Username == "" {
		return nil, errors.New("mailbox host and username are required")
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.To == "" {
		cfg.To = cfg.Username
	}
	return &Transport{cfg: cfg, password: password, now: time.Now}, nil
}

func (t *Transport) Name() string { return Name }

// Send renders n and appends it to the configured mailbox.
func (t *Transport) Send(ctx context.Context, n model.NotificationRecord) error {
	raw, err := compose(t.cfg, n, t.now())
	if err != nil {
		return transport.Wrap(Name, err)
	}

	// go-imap commands take no context; ctx bounds the wait.
	done := make(chan error, 1)
	go func() { done <- t.appendMessage(raw) }()

	select {
	case <-ctx.Done():
		return transport.Wrap(Name, ctx.Err())
	case err := <-done:
		return transport.Wrap(Name, err)
	}
}

func (t *Transport) Close() error { return nil }

// connect establishes a connection to the IMAP server and authenticates.
// The caller is responsible for calling Logout on the returned client.
func (t *Transport) connect() (*imapclient.Client, error) {
	addr := t.cfg.Host + ":" + t.cfg.Port

	var client *imapclient.Client
	var err error

	if t.cfg.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(t.cfg.Username, t.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("authentication failed for %s: %w", t.cfg.Username, err)
	}

	return client, nil
}

func (t *Transport) appendMessage(raw []byte) error {
	client, err := t.connect()
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	cmd := client.Append(t.cfg.Mailbox, int64(len(raw)), &imap.AppendOptions{
		Time: t.now(),
	})
	if _, err := cmd.Write(raw); err != nil {
		_ = cmd.Close()
		return fmt.Errorf("writing message to %s: %w", t.cfg.Mailbox, err)
	}
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("closing append to %s: %w", t.cfg.Mailbox, err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("appending to %s: %w", t.cfg.Mailbox, err)
	}
	return nil
}

// compose renders n as a multipart/alternative message with plain text and
// HTML bodies.
func compose(cfg model.MailboxConfig, n model.NotificationRecord, now time.Time) ([]byte, error) {
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		from = &mail.Address{Address: cfg.From}
	}
	to, err := mail.ParseAddress(cfg.To)
	if err != nil {
		to = &mail.Address{Address: cfg.To}
	}
	if from.Name == "" {
		from.Name = "ghwatch"
	}

	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", []*mail.Address{to})
	h.SetSubject(fmt.Sprintf("[ghwatch] %s: %s", n.Payload.Headline, n.Payload.Subject))
	h.SetMessageID(fmt.Sprintf("%s@ghwatch", transport.MessageID(n)))
	h.Set("X-Ghwatch-Entity", n.Entity.String())
	h.Set("X-Ghwatch-Change", string(n.ChangeKind))

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating mail writer: %w", err)
	}
	iw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("creating inline part: %w", err)
	}

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", n.Payload.Text},
		{"text/html", htmlDocument(n.Payload.HTML)},
	}
	for _, p := range parts {
		var ph mail.InlineHeader
		ph.SetContentType(p.contentType, map[string]string{"charset": "utf-8"})
		w, err := iw.CreatePart(ph)
		if err != nil {
			return nil, fmt.Errorf("creating %s part: %w", p.contentType, err)
		}
		if _, err := w.Write([]byte(p.body)); err != nil {
			return nil, fmt.Errorf("writing %s part: %w", p.contentType, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("closing %s part: %w", p.contentType, err)
		}
	}

	if err := iw.Close(); err != nil {
		return nil, fmt.Errorf("closing inline part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing mail writer: %w", err)
	}
	return buf.Bytes(), nil
}

// htmlDocument wraps the Telegram-style HTML fragment, whose line breaks
// are literal newlines, in a minimal document.
func htmlDocument(fragment string) string {
	return "<!DOCTYPE html><html><body><div style=\"white-space: pre-wrap\">" +
		fragment + "</div></body></html>"
}
