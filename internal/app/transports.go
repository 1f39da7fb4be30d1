package app

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nhle/ghwatch/internal/credential"
	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/transport"
	"github.com/nhle/ghwatch/internal/transport/logsink"
	"github.com/nhle/ghwatch/internal/transport/mailbox"
	"github.com/nhle/ghwatch/internal/transport/natsbus"
	"github.com/nhle/ghwatch/internal/transport/redisq"
	"github.com/nhle/ghwatch/internal/transport/telegram"
)

// ErrUnknownTransport is returned for an unsupported delivery.transport value.
var ErrUnknownTransport = errors.New("unknown transport")

// TransportNames lists the supported delivery.transport values.
var TransportNames = []string{telegram.Name, natsbus.Name, redisq.Name, mailbox.Name, logsink.Name}

// newTransport builds the configured notification transport with its
// secrets resolved.
func newTransport(cfg model.DeliveryConfig, log zerolog.Logger) (transport.Transport, error) {
	switch cfg.Transport {
	case telegram.Name:
		token, err := credential.Lookup(cfg.Telegram.BotTokenRef, cfg.Telegram.BotTokenEnv)
		if err != nil {
			return nil, fmt.Errorf("telegram bot token: %w", err)
		}
		chat := cfg.Telegram.ChatID
		if chat == "" {
			if chat, err = credential.Lookup(cfg.Telegram.ChatIDEnv); err != nil {
				return nil, fmt.Errorf("telegram chat id: %w", err)
			}
		}
		chatID, err := telegram.ParseChatID(chat)
		if err != nil {
			return nil, err
		}
		return telegram.New(telegram.Config{
			Token:      token,
			ChatID:     chatID,
			RatePerSec: cfg.Telegram.RatePerSec,
			Timeout:    cfg.AttemptTimeout,
		})

	case natsbus.Name:
		return natsbus.New(cfg.NATS)

	case redisq.Name:
		var password string
		if cfg.Redis.PasswordEnv != "" {
			p, err := credential.Resolve(cfg.Redis.PasswordEnv)
			if err != nil && !errors.Is(err, credential.ErrMissing) {
				return nil, fmt.Errorf("redis password: %w", err)
			}
			password = p
		}
		return redisq.New(cfg.Redis, password)

	case mailbox.Name:
		password, err := credential.Lookup(cfg.Mailbox.PasswordRef)
		if err != nil {
			return nil, fmt.Errorf("mailbox password: %w", err)
		}
		return mailbox.New(cfg.Mailbox, password)

	case logsink.Name, "":
		return logsink.New(log), nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownTransport, cfg.Transport)
}
