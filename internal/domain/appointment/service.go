package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/carebook/carebook/internal/domain/identity"
	"github.com/carebook/carebook/internal/domain/notification"
	"github.com/carebook/carebook/internal/platform/auth"
	"github.com/carebook/carebook/internal/platform/db"
	"github.com/carebook/carebook/internal/platform/events"
	"github.com/carebook/carebook/internal/platform/metrics"
	notify "github.com/carebook/carebook/internal/platform/notification"
	"github.com/carebook/carebook/internal/platform/telemetry"
)

const reminderWindow = 24 * time.Hour

// statusTemplates picks the patient-facing message for each new status.
var statusTemplates = map[string]string{
	StatusPending:     notify.TplAppointmentPending,
	StatusConfirmed:   notify.TplAppointmentConfirmed,
	StatusCompleted:   notify.TplAppointmentCompleted,
	StatusCancelled:   notify.TplAppointmentCancelled,
	StatusRescheduled: notify.TplAppointmentRescheduled,
}

type Service struct {
	appts     Repository
	doctors   DoctorStore
	notifier  Notifier
	tx        TxRunner
	templates *notify.TemplateEngine
	events    events.Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(appts Repository, doctors DoctorStore, notifier Notifier, tx TxRunner,
	publisher events.Publisher, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		appts:     appts,
		doctors:   doctors,
		notifier:  notifier,
		tx:        tx,
		templates: notify.NewTemplateEngine(),
		events:    publisher,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// ResolveActor attaches the caller's doctor profile id, if any.
func (s *Service) ResolveActor(ctx context.Context, id auth.Identity) (Actor, error) {
	actor := Actor{UserID: id.UserID, Role: id.Role}
	if id.Role != auth.RoleDoctor {
		return actor, nil
	}
	d, err := s.doctors.GetByUserID(ctx, id.UserID)
	if errors.Is(err, identity.ErrDoctorNotFound) {
		return actor, nil
	}
	if err != nil {
		return Actor{}, err
	}
	actor.DoctorID = &d.ID
	return actor, nil
}

func (s *Service) render(tpl string, a *Appointment) (string, string, error) {
	return s.templates.Render(tpl, map[string]string{
		"date":   a.ScheduledAt.UTC().Format("Jan 2, 2006 15:04 MST"),
		"reason": a.Reason,
	})
}

// Create books a pending appointment for a patient and notifies the doctor.
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (*Appointment, error) {
	if actor.Role != auth.RolePatient {
		return nil, fmt.Errorf("%w: only patients can book appointments", ErrForbidden)
	}
	if in.DoctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor_id is required", ErrValidation)
	}
	if in.ScheduledAt.IsZero() {
		return nil, fmt.Errorf("%w: scheduled_at is required", ErrValidation)
	}
	if !in.ScheduledAt.After(s.now()) {
		return nil, fmt.Errorf("%w: scheduled_at must be in the future", ErrValidation)
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrValidation)
	}

	doctor, err := s.doctors.GetByID(ctx, in.DoctorID)
	if errors.Is(err, identity.ErrDoctorNotFound) || (err == nil && !doctor.IsVerified) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, err
	}
	if !doctor.IsAvailable {
		return nil, ErrDoctorUnavailable
	}

	a := &Appointment{
		PatientID:   actor.UserID,
		DoctorID:    doctor.ID,
		ScheduledAt: in.ScheduledAt,
		Status:      StatusPending,
		Reason:      reason,
		Notes:       in.Notes,
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.appts.Create(ctx, a); err != nil {
			return err
		}
		title, body, err := s.render(notify.TplAppointmentRequested, a)
		if err != nil {
			return err
		}
		if _, err := s.notifier.Notify(ctx, doctor.UserID, title, body, notification.TypeAppointment, &a.ID); err != nil {
			return fmt.Errorf("notify doctor: %w", err)
		}
		db.AfterCommit(ctx, func(ctx context.Context) {
			s.publish(ctx, a, events.TypeAppointmentCreated, "", actor.UserID)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Get returns an appointment visible to actor.
func (s *Service) Get(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, a) {
		return nil, ErrForbidden
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, actor Actor, status string, limit, offset int) ([]*Appointment, int, error) {
	if status != "" && !ValidStatus(status) {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	f, ok := scope(actor, ListFilter{Status: status})
	if !ok {
		return nil, 0, nil
	}
	return s.appts.List(ctx, f, limit, offset)
}

// SetStatus moves an appointment to requested. Completion requires the
// appointment to be confirmed; every other move is allowed. The status
// change, the patient's notification and the consultation count commit
// together.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, requested string, actor Actor) (result *Appointment, err error) {
	ctx, span := telemetry.StartSpan(ctx, "appointment.SetStatus",
		attribute.String("appointment.id", id.String()),
		attribute.String("appointment.requested_status", requested),
		attribute.String("actor.role", actor.Role),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	if !ValidStatus(requested) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, requested)
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.appts.GetByID(ctx, id)
		if err != nil {
			return err
		}

		switch actor.Role {
		case auth.RoleAdmin:
		case auth.RoleDoctor:
			if actor.DoctorID == nil || *actor.DoctorID != a.DoctorID {
				return ErrForbidden
			}
		case auth.RolePatient:
			if a.PatientID != actor.UserID || requested == StatusCompleted {
				return ErrForbidden
			}
		default:
			return ErrForbidden
		}

		if requested == StatusCompleted && a.Status != StatusConfirmed {
			return fmt.Errorf("%w: only confirmed appointments can be completed (current status %s)",
				ErrInvalidTransition, a.Status)
		}

		from := a.Status
		if requested == StatusConfirmed && a.VideoRoomID == nil {
			room := "room-" + uuid.NewString()
			a.VideoRoomID = &room
		}
		if err := s.appts.UpdateStatus(ctx, a.ID, requested, a.VideoRoomID); err != nil {
			return err
		}
		a.Status = requested
		a.UpdatedAt = s.now()

		title, body, err := s.render(statusTemplates[requested], a)
		if err != nil {
			return err
		}
		if _, err := s.notifier.Notify(ctx, a.PatientID, title, body, notification.TypeAppointment, &a.ID); err != nil {
			return fmt.Errorf("notify patient: %w", err)
		}

		if requested == StatusCompleted {
			if err := s.doctors.IncrementConsultations(ctx, a.DoctorID); err != nil {
				return fmt.Errorf("increment consultations: %w", err)
			}
		}

		db.AfterCommit(ctx, func(ctx context.Context) {
			s.metrics.ObserveTransition(from, requested)
			s.publish(ctx, a, events.TypeAppointmentStatusChanged, from, actor.UserID)
		})
		result = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) publish(ctx context.Context, a *Appointment, typ, from string, actorID uuid.UUID) {
	ev := events.Event{
		ID:            uuid.New(),
		Type:          typ,
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		FromStatus:    from,
		ToStatus:      a.Status,
		ActorID:       actorID,
		OccurredAt:    s.now().UTC(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).
			Str("event_type", typ).
			Str("appointment_id", a.ID.String()).
			Msg("publish appointment event")
	}
}

// SendReminders notifies the patient of every confirmed appointment starting
// within the next 24 hours. It returns how many reminders were created.
func (s *Service) SendReminders(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.appts.ListConfirmedBetween(ctx, now, now.Add(reminderWindow))
	if err != nil {
		return 0, fmt.Errorf("list due appointments: %w", err)
	}

	sent := 0
	var errs []error
	for _, a := range due {
		title, body, err := s.render(notify.TplAppointmentReminder, a)
		if err == nil {
			_, err = s.notifier.Notify(ctx, a.PatientID, title, body, notification.TypeReminder, &a.ID)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("appointment %s: %w", a.ID, err))
			continue
		}
		sent++
	}
	s.metrics.ObserveReminders(sent)
	return sent, errors.Join(errs...)
}
