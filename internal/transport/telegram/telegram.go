package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/transport"
)

// Name is the transport identifier used in config and metrics.
const Name = "telegram"

// Config holds the resolved settings of the Telegram transport.
type Config struct {
	Token  string
	ChatID int64

	// APIURL overrides the Bot API root. Empty means the public API.
	APIURL string

	// RatePerSec caps sends per second. Zero disables pacing.
	RatePerSec float64

	Timeout time.Duration
}

// Transport sends notifications as HTML messages to one chat.
type Transport struct {
	bot     *tele.Bot
	chat    *tele.Chat
	limiter *rate.Limiter
}

var _ transport.Transport = (*Transport)(nil)

// New creates a Telegram transport. The bot is created offline, so no
// request is made until the first Send.
func New(cfg Config) (*Transport, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	b, err := tele.NewBot(tele.Settings{
		URL:     strings.TrimRight(cfg.APIURL, "/"),
		Token:   cfg.Token,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	t := &Transport{bot: b, chat: &tele.Chat{ID: cfg.ChatID}}
	if cfg.RatePerSec > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return t, nil
}

// ParseChatID parses a numeric chat identifier.
func ParseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing telegram chat id %q: %w", s, err)
	}
	return id, nil
}

func (t *Transport) Name() string { return Name }

// Send posts the HTML rendering of the payload, falling back to plain text.
func (t *Transport) Send(ctx context.Context, n model.NotificationRecord) error {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return transport.Wrap(Name, err)
		}
	}

	text := n.Payload.HTML
	opt := &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true}
	if strings.TrimSpace(text) == "" {
		text = n.Payload.Text
		opt.ParseMode = ""
	}

	// telebot has no context support; the HTTP client timeout bounds the
	// call and ctx bounds the wait.
	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(t.chat, text, opt)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return transport.Wrap(Name, ctx.Err())
	case err := <-done:
		return transport.Wrap(Name, err)
	}
}

func (t *Transport) Close() error { return nil }
