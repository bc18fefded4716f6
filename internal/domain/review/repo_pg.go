package review

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebook/carebook/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const reviewCols = `id, appointment_id, patient_id, doctor_id, rating, comment, created_at`

func (r *repoPG) Create(ctx context.Context, rv *Review) error {
	rv.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO review (id, appointment_id, patient_id, doctor_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		rv.ID, rv.AppointmentID, rv.PatientID, rv.DoctorID, rv.Rating, rv.Comment,
	).Scan(&rv.CreatedAt)
	switch {
	case db.IsUniqueViolation(err, "review_appointment_id_key"):
		return ErrAlreadyReviewed
	case db.IsCheckViolation(err):
		return ErrInvalidRating
	case err != nil:
		return fmt.Errorf("review create: %w", err)
	}
	return nil
}

func (r *repoPG) ExistsForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM review WHERE appointment_id = $1)`, appointmentID).Scan(&exists)
	return exists, err
}

func (r *repoPG) ListRatingsForDoctor(ctx context.Context, doctorID uuid.UUID) ([]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT rating FROM review WHERE doctor_id = $1`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ratings []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		ratings = append(ratings, v)
	}
	return ratings, rows.Err()
}

func (r *repoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, patientID *uuid.UUID, limit, offset int) ([]*Review, int, error) {
	where := ` WHERE doctor_id = $1 AND ($2::uuid IS NULL OR patient_id = $2)`

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM review`+where, doctorID, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+reviewCols+` FROM review`+where+` ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		doctorID, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Review
	for rows.Next() {
		var rv Review
		if err := rows.Scan(&rv.ID, &rv.AppointmentID, &rv.PatientID, &rv.DoctorID,
			&rv.Rating, &rv.Comment, &rv.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &rv)
	}
	return items, total, rows.Err()
}
