package redisq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/transport"
)

func TestNewRequiresKey(t *testing.T) {
	_, err := New(model.RedisConfig{Addr: "127.0.0.1:6379"}, "")
	require.Error(t, err)
}

func TestSendToUnreachableServerIsDeliveryError(t *testing.T) {
	tr, err := New(model.RedisConfig{Addr: "127.0.0.1:1", Key: "ghwatch:test"}, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	ctx, cancel := context.WithTimeout(t.Context(), 3*time.Second)
	defer cancel()

	err = tr.Send(ctx, model.NotificationRecord{ID: 1})
	require.Error(t, err)
	assert.True(t, transport.IsDeliveryError(err))
	assert.Equal(t, Name, tr.Name())
}
