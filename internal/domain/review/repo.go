package review

import (
	"context"

	"github.com/google/uuid"

	"github.com/carebook/carebook/internal/domain/identity"
)

type Repository interface {
	Create(ctx context.Context, r *Review) error
	ExistsForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error)
	ListRatingsForDoctor(ctx context.Context, doctorID uuid.UUID) ([]int, error)
	// ListByDoctor pages a doctor's reviews, newest first. A non-nil
	// patientID restricts the page to that patient's reviews.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, patientID *uuid.UUID, limit, offset int) ([]*Review, int, error)
}

// DoctorStore is the part of the doctor profile store reviews need.
type DoctorStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.DoctorProfile, error)
	UpdateRating(ctx context.Context, id uuid.UUID, rating float64) error
}
