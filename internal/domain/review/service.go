package review

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/carebook/carebook/internal/domain/appointment"
	"github.com/carebook/carebook/internal/domain/notification"
	"github.com/carebook/carebook/internal/platform/auth"
	"github.com/carebook/carebook/internal/platform/db"
	"github.com/carebook/carebook/internal/platform/events"
	"github.com/carebook/carebook/internal/platform/metrics"
	notify "github.com/carebook/carebook/internal/platform/notification"
	"github.com/carebook/carebook/internal/platform/telemetry"
)

// AppointmentReader loads the appointment being reviewed.
type AppointmentReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

type Service struct {
	reviews      Repository
	appointments AppointmentReader
	doctors      DoctorStore
	aggregator   *Aggregator
	notifier     appointment.Notifier
	tx           appointment.TxRunner
	templates    *notify.TemplateEngine
	events       events.Publisher
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(reviews Repository, appointments AppointmentReader, doctors DoctorStore,
	notifier appointment.Notifier, tx appointment.TxRunner, publisher events.Publisher,
	m *metrics.Metrics, logger zerolog.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		reviews:      reviews,
		appointments: appointments,
		doctors:      doctors,
		aggregator:   NewAggregator(reviews, doctors),
		notifier:     notifier,
		tx:           tx,
		templates:    notify.NewTemplateEngine(),
		events:       publisher,
		metrics:      m,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateReview records the patient's review of a completed appointment and
// refreshes the doctor's rating in the same transaction.
func (s *Service) CreateReview(ctx context.Context, actor appointment.Actor, appointmentID uuid.UUID, in CreateInput) (result *Review, err error) {
	ctx, span := telemetry.StartSpan(ctx, "review.CreateReview",
		attribute.String("appointment.id", appointmentID.String()),
		attribute.Int("review.rating", in.Rating),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	if in.Rating < MinRating || in.Rating > MaxRating {
		return nil, ErrInvalidRating
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		appt, err := s.appointments.GetByID(ctx, appointmentID)
		if errors.Is(err, appointment.ErrNotFound) {
			return ErrAppointmentNotFound
		}
		if err != nil {
			return err
		}
		if actor.Role != auth.RolePatient || appt.PatientID != actor.UserID {
			return ErrForbidden
		}
		if appt.Status != appointment.StatusCompleted {
			return ErrNotCompleted
		}

		exists, err := s.reviews.ExistsForAppointment(ctx, appt.ID)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyReviewed
		}

		rv := &Review{
			AppointmentID: appt.ID,
			PatientID:     appt.PatientID,
			DoctorID:      appt.DoctorID,
			Rating:        in.Rating,
			Comment:       in.Comment,
		}
		if err := s.reviews.Create(ctx, rv); err != nil {
			return err
		}

		rating, err := s.aggregator.RecomputeRating(ctx, appt.DoctorID, rv.Rating)
		if err != nil {
			return err
		}

		doctor, err := s.doctors.GetByID(ctx, appt.DoctorID)
		if err != nil {
			return fmt.Errorf("load doctor: %w", err)
		}
		title, body, err := s.templates.Render(notify.TplReviewReceived, map[string]string{
			"rating": strconv.Itoa(rv.Rating),
		})
		if err != nil {
			return err
		}
		if _, err := s.notifier.Notify(ctx, doctor.UserID, title, body, notification.TypeReview, &rv.ID); err != nil {
			return fmt.Errorf("notify doctor: %w", err)
		}

		db.AfterCommit(ctx, func(ctx context.Context) {
			s.metrics.ObserveReview(rv.Rating)
			ev := events.Event{
				ID:            uuid.New(),
				Type:          events.TypeReviewSubmitted,
				AppointmentID: appt.ID,
				PatientID:     appt.PatientID,
				DoctorID:      appt.DoctorID,
				Rating:        &rating,
				ActorID:       actor.UserID,
				OccurredAt:    s.now().UTC(),
			}
			if err := s.events.Publish(ctx, ev); err != nil {
				s.logger.Warn().Err(err).Str("review_id", rv.ID.String()).Msg("publish review event")
			}
		})
		result = rv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListForDoctor pages the reviews of doctorID visible to actor. Patients see
// only their own reviews; doctors only those on their own profile.
func (s *Service) ListForDoctor(ctx context.Context, actor appointment.Actor, doctorID uuid.UUID, limit, offset int) ([]*Review, int, error) {
	var patientID *uuid.UUID
	switch actor.Role {
	case auth.RoleAdmin:
	case auth.RoleDoctor:
		if actor.DoctorID == nil || *actor.DoctorID != doctorID {
			return nil, 0, ErrNotVisible
		}
	case auth.RolePatient:
		uid := actor.UserID
		patientID = &uid
	default:
		return nil, 0, ErrNotVisible
	}
	return s.reviews.ListByDoctor(ctx, doctorID, patientID, limit, offset)
}
