package appointment

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending     = "pending"
	StatusConfirmed   = "confirmed"
	StatusCompleted   = "completed"
	StatusCancelled   = "cancelled"
	StatusRescheduled = "rescheduled"
)

var validStatuses = map[string]bool{
	StatusPending:     true,
	StatusConfirmed:   true,
	StatusCompleted:   true,
	StatusCancelled:   true,
	StatusRescheduled: true,
}

func ValidStatus(s string) bool { return validStatuses[s] }

type Appointment struct {
	ID          uuid.UUID `json:"id"`
	PatientID   uuid.UUID `json:"patient_id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason"`
	Notes       *string   `json:"notes,omitempty"`
	VideoRoomID *string   `json:"video_room_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Actor is the caller of a lifecycle operation. DoctorID is set for doctors
// that own a doctor profile.
type Actor struct {
	UserID   uuid.UUID
	Role     string
	DoctorID *uuid.UUID
}

type CreateInput struct {
	DoctorID    uuid.UUID `json:"doctor_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Reason      string    `json:"reason"`
	Notes       *string   `json:"notes"`
}

// ListFilter narrows a listing. Nil ids match any value.
type ListFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    string
}
