package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/platform/metrics"
)

// Message is the delivery form of an inbox notification.
type Message struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Title     string     `json:"title"`
	Body      string     `json:"message"`
	Type      string     `json:"type"`
	RelatedID *uuid.UUID `json:"related_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`

	// Email is the recipient address; empty skips the email channel.
	Email string `json:"-"`
}

// Dispatcher pushes a Message to the live stream and, when configured, email.
// Either dependency may be nil.
type Dispatcher struct {
	bus     Broadcaster
	email   EmailSender
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewDispatcher(bus Broadcaster, email EmailSender, m *metrics.Metrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{bus: bus, email: email, metrics: m, logger: logger}
}

// Deliver attempts every channel and joins their errors.
func (d *Dispatcher) Deliver(ctx context.Context, msg Message) error {
	var errs []error

	if d.bus != nil {
		payload, err := json.Marshal(msg)
		if err == nil {
			err = d.bus.Publish(ctx, msg.UserID, payload)
		}
		d.metrics.ObserveDelivery("stream", err)
		if err != nil {
			errs = append(errs, fmt.Errorf("stream: %w", err))
		}
	}

	if d.email != nil && msg.Email != "" {
		err := d.email.SendEmail(ctx, msg.Email, msg.Title, msg.Body)
		d.metrics.ObserveDelivery("email", err)
		if err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		d.logger.Warn().Err(err).
			Str("notification_id", msg.ID.String()).
			Str("user_id", msg.UserID.String()).
			Msg("notification delivery incomplete")
		return err
	}
	return nil
}

// Subscribe opens the live stream of userID's notifications.
func (d *Dispatcher) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan []byte, func(), error) {
	if d.bus == nil {
		return nil, nil, errors.New("live notifications are not configured")
	}
	return d.bus.Subscribe(ctx, userID)
}
