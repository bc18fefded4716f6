package notification

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	TypeAppointment = "appointment"
	TypeReview      = "review"
	TypeSystem      = "system"
	TypeReminder    = "reminder"
)

var validTypes = map[string]bool{
	TypeAppointment: true,
	TypeReview:      true,
	TypeSystem:      true,
	TypeReminder:    true,
}

func ValidType(t string) bool { return validTypes[t] }

// Notification is one inbox entry. Only IsRead changes after creation.
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      string     `json:"type"`
	IsRead    bool       `json:"is_read"`
	RelatedID *uuid.UUID `json:"related_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

var (
	ErrNotFound   = errors.New("notification not found")
	ErrForbidden  = errors.New("notification belongs to another user")
	ErrValidation = errors.New("validation failed")
	// ErrStreamUnavailable is returned when no live transport is configured.
	ErrStreamUnavailable = errors.New("live notifications are not available")
)
