package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"

	"github.com/carebook/carebook/internal/platform/auth"
)

type Service struct {
	profiles    ProfileRepository
	doctors     DoctorRepository
	tokens      *auth.TokenIssuer
	phoneRegion string
}

func NewService(profiles ProfileRepository, doctors DoctorRepository, tokens *auth.TokenIssuer, phoneRegion string) *Service {
	if phoneRegion == "" {
		phoneRegion = "US"
	}
	return &Service{profiles: profiles, doctors: doctors, tokens: tokens, phoneRegion: phoneRegion}
}

// -- Accounts --

func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		return nil, fmt.Errorf("%w: full_name is required", ErrValidation)
	}

	role := in.Role
	switch role {
	case "":
		role = auth.RolePatient
	case auth.RolePatient, auth.RoleDoctor:
	case auth.RoleAdmin:
		return nil, fmt.Errorf("%w: admin accounts cannot self-register", ErrValidation)
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, in.Role)
	}

	phone, err := s.normalizePhone(in.Phone)
	if err != nil {
		return nil, err
	}

	if _, err := s.profiles.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordLength) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, err
	}

	p := &Profile{Email: email, PasswordHash: hash, FullName: fullName, Role: role, Phone: phone}
	if err := s.profiles.Create(ctx, p); err != nil {
		return nil, err
	}
	return s.session(p)
}

func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	p, err := s.profiles.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(in.Email)))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(p.PasswordHash, in.Password) {
		return nil, ErrInvalidCredentials
	}
	return s.session(p)
}

func (s *Service) session(p *Profile) (*Session, error) {
	token, exp, err := s.tokens.Issue(auth.Identity{UserID: p.ID, Email: p.Email, Role: p.Role})
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: exp, Profile: p}, nil
}

func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return s.profiles.GetByID(ctx, userID)
}

func (s *Service) UpdateContact(ctx context.Context, userID uuid.UUID, in ContactUpdate) (*Profile, error) {
	p, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if name == "" {
			return nil, fmt.Errorf("%w: full_name cannot be empty", ErrValidation)
		}
		p.FullName = name
	}
	if in.Phone != nil {
		phone, err := s.normalizePhone(in.Phone)
		if err != nil {
			return nil, err
		}
		p.Phone = phone
	}
	if err := s.profiles.UpdateContact(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ContactEmail returns the address notifications for userID are mailed to.
func (s *Service) ContactEmail(ctx context.Context, userID uuid.UUID) (string, error) {
	p, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return p.Email, nil
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: email is required", ErrValidation)
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", fmt.Errorf("%w: invalid email address", ErrValidation)
	}
	return strings.ToLower(addr.Address), nil
}

// normalizePhone formats a phone number as E.164. Nil or blank input yields nil.
func (s *Service) normalizePhone(raw *string) (*string, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	num, err := phonenumbers.Parse(*raw, s.phoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return nil, fmt.Errorf("%w: invalid phone number", ErrValidation)
	}
	formatted := phonenumbers.Format(num, phonenumbers.E164)
	return &formatted, nil
}

// -- Doctors --

func validateDoctorInput(in DoctorInput) error {
	if strings.TrimSpace(in.Specialization) == "" {
		return fmt.Errorf("%w: specialization is required", ErrValidation)
	}
	if in.ConsultationFee < 0 {
		return fmt.Errorf("%w: consultation_fee must not be negative", ErrValidation)
	}
	return nil
}

func (s *Service) CreateDoctorProfile(ctx context.Context, caller auth.Identity, in DoctorInput) (*DoctorProfile, error) {
	if caller.Role != auth.RoleDoctor {
		return nil, ErrForbidden
	}
	if err := validateDoctorInput(in); err != nil {
		return nil, err
	}
	license := strings.TrimSpace(in.LicenseNumber)
	if license == "" {
		return nil, fmt.Errorf("%w: license_number is required", ErrValidation)
	}

	if _, err := s.doctors.GetByUserID(ctx, caller.UserID); err == nil {
		return nil, ErrDoctorProfileExists
	} else if !errors.Is(err, ErrDoctorNotFound) {
		return nil, err
	}

	d := &DoctorProfile{
		UserID:          caller.UserID,
		Specialization:  strings.TrimSpace(in.Specialization),
		LicenseNumber:   license,
		ConsultationFee: in.ConsultationFee,
		Bio:             in.Bio,
		IsAvailable:     true,
	}
	if err := s.doctors.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// UpdateDoctorProfile edits the caller's own practice details. The license
// number is fixed once registered.
func (s *Service) UpdateDoctorProfile(ctx context.Context, userID uuid.UUID, in DoctorInput) (*DoctorProfile, error) {
	if err := validateDoctorInput(in); err != nil {
		return nil, err
	}
	d, err := s.doctors.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	d.Specialization = strings.TrimSpace(in.Specialization)
	d.ConsultationFee = in.ConsultationFee
	d.Bio = in.Bio
	if err := s.doctors.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) SetAvailability(ctx context.Context, userID uuid.UUID, available bool) (*DoctorProfile, error) {
	d, err := s.doctors.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.doctors.SetAvailability(ctx, d.ID, available); err != nil {
		return nil, err
	}
	d.IsAvailable = available
	return d, nil
}

func (s *Service) SetVerification(ctx context.Context, caller auth.Identity, doctorID uuid.UUID, verified bool) (*DoctorProfile, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	d, err := s.doctors.GetByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if err := s.doctors.SetVerified(ctx, doctorID, verified); err != nil {
		return nil, err
	}
	d.IsVerified = verified
	return d, nil
}

// GetDoctor returns a doctor profile. Unverified profiles are reported as
// missing to everyone except their owner and admins.
func (s *Service) GetDoctor(ctx context.Context, caller auth.Identity, id uuid.UUID) (*DoctorProfile, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.IsVerified && d.UserID != caller.UserID && !caller.IsAdmin() {
		return nil, ErrDoctorNotFound
	}
	return d, nil
}

func (s *Service) ListDoctors(ctx context.Context, f DoctorFilter, limit, offset int) ([]*DoctorProfile, int, error) {
	f.VerifiedOnly = true
	return s.doctors.List(ctx, f, limit, offset)
}

// DoctorForUser returns the doctor profile owned by userID.
func (s *Service) DoctorForUser(ctx context.Context, userID uuid.UUID) (*DoctorProfile, error) {
	return s.doctors.GetByUserID(ctx, userID)
}
