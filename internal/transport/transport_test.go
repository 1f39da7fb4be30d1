package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ghwatch/internal/model"
)

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap("telegram", cause)

	require.Error(t, err)
	assert.True(t, IsDeliveryError(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "telegram")

	// Already wrapped errors are not wrapped twice.
	var de *DeliveryError
	require.ErrorAs(t, Wrap("nats", fmt.Errorf("outer: %w", err)), &de)
	assert.Equal(t, "telegram", de.Transport)
	assert.NoError(t, Wrap("telegram", nil))
}

func TestEnvelope(t *testing.T) {
	n := model.NotificationRecord{
		ID:         12,
		Entity:     model.EntityKey{Kind: model.KindIssue, Ref: "acme/widget#7"},
		ChangeKind: model.ChangeCreated,
		RunID:      "run-1",
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Payload:    model.Payload{Headline: "New Issue", Title: "Bug X"},
	}

	data, err := MarshalEnvelope(n)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.EqualValues(t, 12, got["id"])
	assert.Equal(t, "issue", got["kind"])
	assert.Equal(t, "created", got["change_kind"])
	assert.Equal(t, "Bug X", got["payload"].(map[string]any)["title"])
	assert.Equal(t, "ghwatch-12", MessageID(n))
}
