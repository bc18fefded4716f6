package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/platform/db"
	"github.com/carebook/carebook/internal/platform/metrics"
	notify "github.com/carebook/carebook/internal/platform/notification"
)

// Deliverer fans a stored notification out to live subscribers and email.
type Deliverer interface {
	Deliver(ctx context.Context, msg notify.Message) error
	Subscribe(ctx context.Context, userID uuid.UUID) (<-chan []byte, func(), error)
}

// EmailLookup resolves the address a user's notifications are mailed to.
type EmailLookup interface {
	ContactEmail(ctx context.Context, userID uuid.UUID) (string, error)
}

type Service struct {
	repo      Repository
	deliverer Deliverer
	emails    EmailLookup
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewService wires the inbox. deliverer and emails may be nil, in which case
// notifications are only stored.
func NewService(repo Repository, deliverer Deliverer, emails EmailLookup, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{repo: repo, deliverer: deliverer, emails: emails, metrics: m, logger: logger}
}

// Notify stores a notification for userID. When ctx carries a transaction
// the fan-out waits until it commits.
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, title, message, typ string, relatedID *uuid.UUID) (*Notification, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if strings.TrimSpace(title) == "" || strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: title and message are required", ErrValidation)
	}
	if !ValidType(typ) {
		return nil, fmt.Errorf("%w: unknown type %q", ErrValidation, typ)
	}

	n := &Notification{UserID: userID, Title: title, Message: message, Type: typ, RelatedID: relatedID}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}

	db.AfterCommit(ctx, func(ctx context.Context) {
		s.metrics.ObserveNotification(n.Type)
		s.deliver(ctx, n)
	})
	return n, nil
}

func (s *Service) deliver(ctx context.Context, n *Notification) {
	if s.deliverer == nil {
		return
	}
	msg := notify.Message{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Body:      n.Message,
		Type:      n.Type,
		RelatedID: n.RelatedID,
		CreatedAt: n.CreatedAt,
	}
	if s.emails != nil {
		email, err := s.emails.ContactEmail(ctx, n.UserID)
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", n.UserID.String()).Msg("lookup notification email")
		}
		msg.Email = email
	}
	// Deliver logs its own failures.
	_ = s.deliverer.Deliver(ctx, msg)
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	return s.repo.ListByUser(ctx, userID, unreadOnly, limit, offset)
}

func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

// MarkRead marks one notification read. Only its recipient may do so.
func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) (*Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, ErrForbidden
	}
	if n.IsRead {
		return n, nil
	}
	if err := s.repo.MarkRead(ctx, id); err != nil {
		return nil, err
	}
	n.IsRead = true
	return n, nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

// Subscribe opens the caller's live notification feed.
func (s *Service) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan []byte, func(), error) {
	if s.deliverer == nil {
		return nil, nil, ErrStreamUnavailable
	}
	ch, cancel, err := s.deliverer.Subscribe(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStreamUnavailable, err)
	}
	return ch, cancel, nil
}
