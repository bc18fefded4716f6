package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/carebook/carebook/internal/domain/identity"
	"github.com/carebook/carebook/internal/domain/notification"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, videoRoomID *string) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error)
	ListConfirmedBetween(ctx context.Context, from, to time.Time) ([]*Appointment, error)
}

// DoctorStore is the part of the doctor profile store the lifecycle needs.
type DoctorStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.DoctorProfile, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*identity.DoctorProfile, error)
	IncrementConsultations(ctx context.Context, id uuid.UUID) error
}

type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, title, message, typ string, relatedID *uuid.UUID) (*notification.Notification, error)
}

type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
