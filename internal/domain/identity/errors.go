package identity

import "errors"

var (
	ErrNotFound            = errors.New("profile not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrEmailTaken          = errors.New("Email already registered")
	ErrInvalidCredentials  = errors.New("Invalid credentials")
	ErrLicenseTaken        = errors.New("license number already registered")
	ErrDoctorProfileExists = errors.New("doctor profile already exists")
	ErrForbidden           = errors.New("forbidden")
	ErrValidation          = errors.New("validation failed")
)
