package redisq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/transport"
)

// Name is the transport identifier used in config and metrics.
const Name = "redis"

// Transport pushes notification envelopes onto a Redis list. Consumers
// pop from the other end (BRPOP), so the list is FIFO.
type Transport struct {
	client *redis.Client
	key    string
}

var _ transport.Transport = (*Transport)(nil)

// New creates a Redis list transport. The password is already resolved.
func New(cfg model.RedisConfig, password string) (*Transport, error) {
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		return nil, errors.New("redis key is empty")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
		MaxRetries:  1,
	})
	return &Transport{client: rdb, key: key}, nil
}

func (t *Transport) Name() string { return Name }

// Send LPUSHes the envelope of n. A nil error means Redis acknowledged the write.
func (t *Transport) Send(ctx context.Context, n model.NotificationRecord) error {
	data, err := transport.MarshalEnvelope(n)
	if err != nil {
		return transport.Wrap(Name, err)
	}
	if err := t.client.LPush(ctx, t.key, data).Err(); err != nil {
		return transport.Wrap(Name, fmt.Errorf("pushing onto %s: %w", t.key, err))
	}
	return nil
}

// Ping checks the server is reachable.
func (t *Transport) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

func (t *Transport) Close() error {
	return t.client.Close()
}
