package review

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	MinRating = 1
	MaxRating = 5
)

type Review struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	Rating        int       `json:"rating"`
	Comment       *string   `json:"comment,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type CreateInput struct {
	Rating  int     `json:"rating"`
	Comment *string `json:"comment"`
}

var (
	ErrInvalidRating       = errors.New("rating must be between 1 and 5")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrForbidden           = errors.New("only the appointment's patient can review it")
	ErrNotCompleted        = errors.New("only completed appointments can be reviewed")
	ErrAlreadyReviewed     = errors.New("appointment already reviewed")
	ErrNotVisible          = errors.New("not allowed to view these reviews")
)
