package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebook/carebook/internal/platform/db"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// -- Profile Repository --

type profileRepoPG struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepoPG{pool: pool}
}

func (r *profileRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const profileCols = `id, email, password_hash, full_name, role, phone, created_at, updated_at`

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Email, &p.PasswordHash, &p.FullName, &p.Role, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *profileRepoPG) Create(ctx context.Context, p *Profile) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO profile (id, email, password_hash, full_name, role, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		p.ID, p.Email, p.PasswordHash, p.FullName, p.Role, p.Phone,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err, "profile_email_key") {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("profile create: %w", err)
	}
	return nil
}

func (r *profileRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return scanProfile(r.conn(ctx).QueryRow(ctx, `SELECT `+profileCols+` FROM profile WHERE id = $1`, id))
}

func (r *profileRepoPG) GetByEmail(ctx context.Context, email string) (*Profile, error) {
	return scanProfile(r.conn(ctx).QueryRow(ctx, `SELECT `+profileCols+` FROM profile WHERE email = $1`, email))
}

func (r *profileRepoPG) UpdateContact(ctx context.Context, p *Profile) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE profile SET full_name = $2, phone = $3, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FullName, p.Phone,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// -- Doctor Repository --

type doctorRepoPG struct {
	pool *pgxpool.Pool
}

func NewDoctorRepo(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const doctorSelect = `SELECT d.id, d.user_id, p.full_name, d.specialization, d.license_number,
	d.consultation_fee::float8, d.bio, d.is_verified, d.is_available, d.rating::float8,
	d.total_consultations, d.created_at, d.updated_at
	FROM doctor_profile d JOIN profile p ON p.id = d.user_id`

func scanDoctor(row rowScanner) (*DoctorProfile, error) {
	var d DoctorProfile
	err := row.Scan(&d.ID, &d.UserID, &d.FullName, &d.Specialization, &d.LicenseNumber,
		&d.ConsultationFee, &d.Bio, &d.IsVerified, &d.IsAvailable, &d.Rating,
		&d.TotalConsultations, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *doctorRepoPG) Create(ctx context.Context, d *DoctorProfile) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_profile (id, user_id, specialization, license_number, consultation_fee, bio, is_available)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		d.ID, d.UserID, d.Specialization, d.LicenseNumber, d.ConsultationFee, d.Bio, d.IsAvailable,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	switch {
	case db.IsUniqueViolation(err, "doctor_profile_license_number_key"):
		return ErrLicenseTaken
	case db.IsUniqueViolation(err, "doctor_profile_user_id_key"):
		return ErrDoctorProfileExists
	case err != nil:
		return fmt.Errorf("doctor profile create: %w", err)
	}
	return nil
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*DoctorProfile, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx, doctorSelect+` WHERE d.id = $1`, id))
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*DoctorProfile, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx, doctorSelect+` WHERE d.user_id = $1`, userID))
}

func (r *doctorRepoPG) Update(ctx context.Context, d *DoctorProfile) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor_profile SET specialization = $2, consultation_fee = $3, bio = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.Specialization, d.ConsultationFee, d.Bio,
	).Scan(&d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDoctorNotFound
	}
	return err
}

func (r *doctorRepoPG) exec(ctx context.Context, sql string, args ...interface{}) error {
	tag, err := r.conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *doctorRepoPG) SetAvailability(ctx context.Context, id uuid.UUID, available bool) error {
	return r.exec(ctx, `UPDATE doctor_profile SET is_available = $2, updated_at = now() WHERE id = $1`, id, available)
}

func (r *doctorRepoPG) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	return r.exec(ctx, `UPDATE doctor_profile SET is_verified = $2, updated_at = now() WHERE id = $1`, id, verified)
}

func (r *doctorRepoPG) UpdateRating(ctx context.Context, id uuid.UUID, rating float64) error {
	return r.exec(ctx, `UPDATE doctor_profile SET rating = $2, updated_at = now() WHERE id = $1`, id, rating)
}

func (r *doctorRepoPG) IncrementConsultations(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `UPDATE doctor_profile SET total_consultations = total_consultations + 1, updated_at = now() WHERE id = $1`, id)
}

func (r *doctorRepoPG) List(ctx context.Context, f DoctorFilter, limit, offset int) ([]*DoctorProfile, int, error) {
	var where []string
	var args []interface{}
	if f.VerifiedOnly {
		where = append(where, "d.is_verified")
	}
	if f.Specialization != "" {
		args = append(args, f.Specialization)
		where = append(where, fmt.Sprintf("d.specialization ILIKE $%d", len(args)))
	}
	if f.Available != nil {
		args = append(args, *f.Available)
		where = append(where, fmt.Sprintf("d.is_available = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM doctor_profile d`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(doctorSelect+clause+` ORDER BY d.rating DESC, p.full_name LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*DoctorProfile
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}
