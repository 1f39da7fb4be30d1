// Package transport defines the outbound notification channel contract
// and the wire envelope shared by the message-bus transports.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/ghwatch/internal/model"
)

// Transport delivers one rendered notification. Send blocks until the
// channel confirms delivery or ctx ends; a nil error means confirmed.
type Transport interface {
	Name() string
	Send(ctx context.Context, n model.NotificationRecord) error
	Close() error
}

// DeliveryError reports a failed send on a named channel.
type DeliveryError struct {
	Transport string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery via %s failed: %v", e.Transport, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// IsDeliveryError reports whether err (or any error in its chain) is a DeliveryError.
func IsDeliveryError(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}

// Wrap returns err as a DeliveryError for transport name, or nil.
func Wrap(name string, err error) error {
	if err == nil {
		return nil
	}
	if IsDeliveryError(err) {
		return err
	}
	return &DeliveryError{Transport: name, Err: err}
}

// Envelope is the JSON document published by bus and queue transports.
type Envelope struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	Ref        string    `json:"ref"`
	ChangeKind string    `json:"change_kind"`
	RunID      string    `json:"run_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	Payload model.Payload `json:"payload"`
}

// NewEnvelope builds the wire envelope for n.
func NewEnvelope(n model.NotificationRecord) Envelope {
	return Envelope{
		ID:         n.ID,
		Kind:       string(n.Entity.Kind),
		Ref:        n.Entity.Ref,
		ChangeKind: string(n.ChangeKind),
		RunID:      n.RunID,
		CreatedAt:  n.CreatedAt.UTC(),
		Payload:    n.Payload,
	}
}

// MarshalEnvelope encodes the envelope of n.
func MarshalEnvelope(n model.NotificationRecord) ([]byte, error) {
	data, err := json.Marshal(NewEnvelope(n))
	if err != nil {
		return nil, fmt.Errorf("encoding notification %d: %w", n.ID, err)
	}
	return data, nil
}

// MessageID is the idempotency key of n on channels that support one.
func MessageID(n model.NotificationRecord) string {
	return fmt.Sprintf("ghwatch-%d", n.ID)
}
