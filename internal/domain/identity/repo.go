package identity

import (
	"context"

	"github.com/google/uuid"
)

type ProfileRepository interface {
	Create(ctx context.Context, p *Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	GetByEmail(ctx context.Context, email string) (*Profile, error)
	UpdateContact(ctx context.Context, p *Profile) error
}

type DoctorRepository interface {
	Create(ctx context.Context, d *DoctorProfile) error
	GetByID(ctx context.Context, id uuid.UUID) (*DoctorProfile, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*DoctorProfile, error)
	Update(ctx context.Context, d *DoctorProfile) error
	SetAvailability(ctx context.Context, id uuid.UUID, available bool) error
	SetVerified(ctx context.Context, id uuid.UUID, verified bool) error
	List(ctx context.Context, f DoctorFilter, limit, offset int) ([]*DoctorProfile, int, error)

	// Aggregates maintained by the appointment and review services.
	UpdateRating(ctx context.Context, id uuid.UUID, rating float64) error
	IncrementConsultations(ctx context.Context, id uuid.UUID) error
}
