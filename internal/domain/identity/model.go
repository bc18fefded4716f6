package identity

import (
	"time"

	"github.com/google/uuid"
)

// Profile is a registered user. ID, Email and Role never change after
// registration; FullName and Phone are editable by the owner.
type Profile struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Role         string    `json:"role"`
	Phone        *string   `json:"phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DoctorProfile holds the practice details of a doctor account.
type DoctorProfile struct {
	ID                 uuid.UUID `json:"id"`
	UserID             uuid.UUID `json:"user_id"`
	FullName           string    `json:"full_name,omitempty"`
	Specialization     string    `json:"specialization"`
	LicenseNumber      string    `json:"license_number"`
	ConsultationFee    float64   `json:"consultation_fee"`
	Bio                *string   `json:"bio,omitempty"`
	IsVerified         bool      `json:"is_verified"`
	IsAvailable        bool      `json:"is_available"`
	Rating             float64   `json:"rating"`
	TotalConsultations int       `json:"total_consultations"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type DoctorFilter struct {
	Specialization string
	Available      *bool
	VerifiedOnly   bool
}

type RegisterInput struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName string  `json:"full_name"`
	Role     string  `json:"role"`
	Phone    *string `json:"phone"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ContactUpdate carries the mutable profile fields. Nil leaves a field as is;
// an empty phone clears it.
type ContactUpdate struct {
	FullName *string `json:"full_name"`
	Phone    *string `json:"phone"`
}

type DoctorInput struct {
	Specialization  string  `json:"specialization"`
	LicenseNumber   string  `json:"license_number"`
	ConsultationFee float64 `json:"consultation_fee"`
	Bio             *string `json:"bio"`
}

// Session is returned by register and login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Profile   *Profile  `json:"profile"`
}
