package appointment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/domain/identity"
	"github.com/carebook/carebook/internal/domain/notification"
	"github.com/carebook/carebook/internal/platform/auth"
	"github.com/carebook/carebook/internal/platform/events"
	"github.com/carebook/carebook/internal/platform/events/eventstest"
)

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// -- Mocks --

type mockRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]*Appointment
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[uuid.UUID]*Appointment)}
}

func (m *mockRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.CreatedAt = fixedNow
	a.UpdatedAt = fixedNow
	cp := *a
	m.store[a.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string, videoRoomID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.VideoRoomID = videoRoomID
	return nil
}

func (m *mockRepo) List(_ context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.store {
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.After(out[j].ScheduledAt) })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *mockRepo) ListConfirmedBetween(_ context.Context, from, to time.Time) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.store {
		if a.Status == StatusConfirmed && !a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

type mockDoctors struct {
	store map[uuid.UUID]*identity.DoctorProfile
}

func (m *mockDoctors) GetByID(_ context.Context, id uuid.UUID) (*identity.DoctorProfile, error) {
	d, ok := m.store[id]
	if !ok {
		return nil, identity.ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDoctors) GetByUserID(_ context.Context, userID uuid.UUID) (*identity.DoctorProfile, error) {
	for _, d := range m.store {
		if d.UserID == userID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, identity.ErrDoctorNotFound
}

func (m *mockDoctors) IncrementConsultations(_ context.Context, id uuid.UUID) error {
	d, ok := m.store[id]
	if !ok {
		return identity.ErrDoctorNotFound
	}
	d.TotalConsultations++
	return nil
}

type sentNotification struct {
	UserID    uuid.UUID
	Title     string
	Message   string
	Type      string
	RelatedID *uuid.UUID
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (m *mockNotifier) Notify(_ context.Context, userID uuid.UUID, title, message, typ string, relatedID *uuid.UUID) (*notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.sent = append(m.sent, sentNotification{userID, title, message, typ, relatedID})
	return &notification.Notification{ID: uuid.New(), UserID: userID, Title: title, Message: message, Type: typ, RelatedID: relatedID}, nil
}

func (m *mockNotifier) last() sentNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type passthroughTx struct{ calls int }

func (p *passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	p.calls++
	return fn(ctx)
}

type fixture struct {
	svc       *Service
	repo      *mockRepo
	doctors   *mockDoctors
	notifier  *mockNotifier
	tx        *passthroughTx
	publisher *eventstest.Recorder

	doctor        *identity.DoctorProfile
	doctorActor   Actor
	patientActor  Actor
	adminActor    Actor
	otherDoctor   Actor
	otherPatient  Actor
	unavailableID uuid.UUID
	unverifiedID  uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		repo:      newMockRepo(),
		doctors:   &mockDoctors{store: make(map[uuid.UUID]*identity.DoctorProfile)},
		notifier:  &mockNotifier{},
		tx:        &passthroughTx{},
		publisher: &eventstest.Recorder{},
	}
	f.svc = NewService(f.repo, f.doctors, f.notifier, f.tx, f.publisher, nil, zerolog.Nop())
	f.svc.now = func() time.Time { return fixedNow }

	addDoctor := func(verified, available bool) *identity.DoctorProfile {
		d := &identity.DoctorProfile{ID: uuid.New(), UserID: uuid.New(), IsVerified: verified, IsAvailable: available}
		f.doctors.store[d.ID] = d
		return d
	}
	f.doctor = addDoctor(true, true)
	other := addDoctor(true, true)
	f.unavailableID = addDoctor(true, false).ID
	f.unverifiedID = addDoctor(false, true).ID

	f.doctorActor = Actor{UserID: f.doctor.UserID, Role: auth.RoleDoctor, DoctorID: &f.doctor.ID}
	f.otherDoctor = Actor{UserID: other.UserID, Role: auth.RoleDoctor, DoctorID: &other.ID}
	f.patientActor = Actor{UserID: uuid.New(), Role: auth.RolePatient}
	f.otherPatient = Actor{UserID: uuid.New(), Role: auth.RolePatient}
	f.adminActor = Actor{UserID: uuid.New(), Role: auth.RoleAdmin}
	return f
}

func (f *fixture) book(t *testing.T) *Appointment {
	t.Helper()
	a, err := f.svc.Create(context.Background(), f.patientActor, CreateInput{
		DoctorID:    f.doctor.ID,
		ScheduledAt: fixedNow.Add(48 * time.Hour),
		Reason:      "Chest pain",
	})
	if err != nil {
		t.Fatalf("create appointment: %v", err)
	}
	return a
}

// -- Create --

func TestService_Create(t *testing.T) {
	f := newFixture()
	a := f.book(t)

	if a.Status != StatusPending {
		t.Errorf("expected pending, got %s", a.Status)
	}
	if a.PatientID != f.patientActor.UserID || a.DoctorID != f.doctor.ID {
		t.Errorf("unexpected parties: %+v", a)
	}
	n := f.notifier.last()
	if n.UserID != f.doctor.UserID || n.Type != notification.TypeAppointment {
		t.Errorf("expected doctor to be notified, got %+v", n)
	}
	if *n.RelatedID != a.ID {
		t.Error("notification should reference the appointment")
	}
	evs := f.publisher.Events()
	if len(evs) != 1 || evs[0].Type != events.TypeAppointmentCreated {
		t.Errorf("expected one created event, got %+v", evs)
	}
}

func TestService_Create_Rejects(t *testing.T) {
	f := newFixture()
	future := fixedNow.Add(time.Hour)
	tests := []struct {
		name  string
		actor Actor
		in    CreateInput
		want  error
	}{
		{"doctor cannot book", f.doctorActor, CreateInput{DoctorID: f.doctor.ID, ScheduledAt: future, Reason: "x"}, ErrForbidden},
		{"missing doctor", f.patientActor, CreateInput{ScheduledAt: future, Reason: "x"}, ErrValidation},
		{"missing time", f.patientActor, CreateInput{DoctorID: f.doctor.ID, Reason: "x"}, ErrValidation},
		{"past time", f.patientActor, CreateInput{DoctorID: f.doctor.ID, ScheduledAt: fixedNow.Add(-time.Minute), Reason: "x"}, ErrValidation},
		{"missing reason", f.patientActor, CreateInput{DoctorID: f.doctor.ID, ScheduledAt: future, Reason: "  "}, ErrValidation},
		{"unknown doctor", f.patientActor, CreateInput{DoctorID: uuid.New(), ScheduledAt: future, Reason: "x"}, ErrDoctorNotFound},
		{"unverified doctor", f.patientActor, CreateInput{DoctorID: f.unverifiedID, ScheduledAt: future, Reason: "x"}, ErrDoctorNotFound},
		{"unavailable doctor", f.patientActor, CreateInput{DoctorID: f.unavailableID, ScheduledAt: future, Reason: "x"}, ErrDoctorUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Create(context.Background(), tt.actor, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if f.notifier.count() != 0 {
		t.Error("rejected bookings must not notify")
	}
}

// -- SetStatus --

func TestService_SetStatus_LifecycleScenario(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.book(t)

	confirmed, err := f.svc.SetStatus(ctx, a.ID, StatusConfirmed, f.doctorActor)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.VideoRoomID == nil || len(*confirmed.VideoRoomID) <= len("room-") || (*confirmed.VideoRoomID)[:5] != "room-" {
		t.Errorf("expected a video room on confirmation, got %v", confirmed.VideoRoomID)
	}
	room := *confirmed.VideoRoomID

	if _, err := f.svc.SetStatus(ctx, a.ID, StatusCompleted, f.patientActor); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden when the patient completes, got %v", err)
	}
	if got, _ := f.svc.Get(ctx, f.doctorActor, a.ID); got.Status != StatusConfirmed {
		t.Errorf("patient completion must leave status confirmed, got %s", got.Status)
	}
	if f.doctors.store[f.doctor.ID].TotalConsultations != 0 {
		t.Fatal("rejected patient completion must not count a consultation")
	}

	if _, err := f.svc.SetStatus(ctx, a.ID, StatusRescheduled, f.doctorActor); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	_, err = f.svc.SetStatus(ctx, a.ID, StatusCompleted, f.doctorActor)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition completing a rescheduled appointment, got %v", err)
	}
	if f.doctors.store[f.doctor.ID].TotalConsultations != 0 {
		t.Fatal("rejected completion must not count a consultation")
	}

	reconfirmed, err := f.svc.SetStatus(ctx, a.ID, StatusConfirmed, f.doctorActor)
	if err != nil {
		t.Fatalf("re-confirm: %v", err)
	}
	if *reconfirmed.VideoRoomID != room {
		t.Error("existing video room should be kept")
	}

	before := f.notifier.count()
	done, err := f.svc.SetStatus(ctx, a.ID, StatusCompleted, f.doctorActor)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", done.Status)
	}
	if got := f.doctors.store[f.doctor.ID].TotalConsultations; got != 1 {
		t.Errorf("expected 1 consultation, got %d", got)
	}
	if f.notifier.count() != before+1 {
		t.Errorf("expected exactly one notification for completion")
	}
	n := f.notifier.last()
	if n.UserID != f.patientActor.UserID || n.Title != "Appointment completed" {
		t.Errorf("expected patient completion notification, got %+v", n)
	}

	// Completing twice is rejected.
	if _, err := f.svc.SetStatus(ctx, a.ID, StatusCompleted, f.doctorActor); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition on second completion, got %v", err)
	}

	var changes []string
	for _, ev := range f.publisher.Events() {
		if ev.Type == events.TypeAppointmentStatusChanged {
			changes = append(changes, ev.FromStatus+">"+ev.ToStatus)
		}
	}
	want := []string{"pending>confirmed", "confirmed>rescheduled", "rescheduled>confirmed", "confirmed>completed"}
	if len(changes) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, changes)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], changes[i])
		}
	}
}

func TestService_SetStatus_CompleteRequiresConfirmed(t *testing.T) {
	for _, from := range []string{StatusPending, StatusCancelled, StatusRescheduled, StatusCompleted} {
		t.Run(from, func(t *testing.T) {
			f := newFixture()
			a := f.book(t)
			f.repo.store[a.ID].Status = from

			if _, err := f.svc.SetStatus(context.Background(), a.ID, StatusCompleted, f.adminActor); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition from %s, got %v", from, err)
			}
		})
	}
}

func TestService_SetStatus_Permissive(t *testing.T) {
	f := newFixture()
	a := f.book(t)
	f.repo.store[a.ID].Status = StatusCancelled

	got, err := f.svc.SetStatus(context.Background(), a.ID, StatusPending, f.patientActor)
	if err != nil {
		t.Fatalf("expected cancelled -> pending to be allowed, got %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("expected pending, got %s", got.Status)
	}
}

func TestService_SetStatus_Errors(t *testing.T) {
	f := newFixture()
	a := f.book(t)
	ctx := context.Background()

	if _, err := f.svc.SetStatus(ctx, a.ID, "done", f.doctorActor); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := f.svc.SetStatus(ctx, uuid.New(), StatusConfirmed, f.doctorActor); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.SetStatus(ctx, a.ID, StatusConfirmed, f.otherDoctor); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for another doctor, got %v", err)
	}
	if _, err := f.svc.SetStatus(ctx, a.ID, StatusCancelled, f.otherPatient); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for another patient, got %v", err)
	}
	noProfile := Actor{UserID: uuid.New(), Role: auth.RoleDoctor}
	if _, err := f.svc.SetStatus(ctx, a.ID, StatusConfirmed, noProfile); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for doctor without profile, got %v", err)
	}
	if _, err := f.svc.SetStatus(ctx, a.ID, StatusCancelled, f.patientActor); err != nil {
		t.Errorf("patient should cancel own appointment: %v", err)
	}
	if _, err := f.svc.SetStatus(ctx, a.ID, StatusConfirmed, f.adminActor); err != nil {
		t.Errorf("admin should act on any appointment: %v", err)
	}
}

func TestService_SetStatus_NotifyFailureAborts(t *testing.T) {
	f := newFixture()
	a := f.book(t)
	f.notifier.err = errors.New("insert failed")
	published := len(f.publisher.Events())

	if _, err := f.svc.SetStatus(context.Background(), a.ID, StatusConfirmed, f.doctorActor); err == nil {
		t.Fatal("expected error when the notification cannot be stored")
	}
	if len(f.publisher.Events()) != published {
		t.Error("no event should be published for a failed transition")
	}
}

// -- Visibility --

func TestService_Get_Visibility(t *testing.T) {
	f := newFixture()
	a := f.book(t)
	ctx := context.Background()

	for name, actor := range map[string]Actor{"patient": f.patientActor, "doctor": f.doctorActor, "admin": f.adminActor} {
		if _, err := f.svc.Get(ctx, actor, a.ID); err != nil {
			t.Errorf("%s should see the appointment: %v", name, err)
		}
	}
	for name, actor := range map[string]Actor{"other patient": f.otherPatient, "other doctor": f.otherDoctor} {
		if _, err := f.svc.Get(ctx, actor, a.ID); !errors.Is(err, ErrForbidden) {
			t.Errorf("%s: expected ErrForbidden, got %v", name, err)
		}
	}
	if _, err := f.svc.Get(ctx, f.patientActor, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_List_Scoped(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.book(t)
	second := f.book(t)
	f.svc.SetStatus(ctx, second.ID, StatusConfirmed, f.doctorActor)

	_, total, _ := f.svc.List(ctx, f.patientActor, "", 10, 0)
	if total != 2 {
		t.Errorf("patient: expected 2, got %d", total)
	}
	_, total, _ = f.svc.List(ctx, f.otherPatient, "", 10, 0)
	if total != 0 {
		t.Errorf("other patient: expected 0, got %d", total)
	}
	_, total, _ = f.svc.List(ctx, f.doctorActor, StatusConfirmed, 10, 0)
	if total != 1 {
		t.Errorf("doctor confirmed: expected 1, got %d", total)
	}
	_, total, _ = f.svc.List(ctx, f.otherDoctor, "", 10, 0)
	if total != 0 {
		t.Errorf("other doctor: expected 0, got %d", total)
	}
	_, total, _ = f.svc.List(ctx, f.adminActor, "", 10, 0)
	if total != 2 {
		t.Errorf("admin: expected 2, got %d", total)
	}
	_, total, _ = f.svc.List(ctx, Actor{UserID: uuid.New(), Role: auth.RoleDoctor}, "", 10, 0)
	if total != 0 {
		t.Errorf("doctor without profile: expected 0, got %d", total)
	}
	if _, _, err := f.svc.List(ctx, f.adminActor, "unknown", 10, 0); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestService_ResolveActor(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a, err := f.svc.ResolveActor(ctx, auth.Identity{UserID: f.doctor.UserID, Role: auth.RoleDoctor})
	if err != nil || a.DoctorID == nil || *a.DoctorID != f.doctor.ID {
		t.Errorf("expected doctor profile id, got %+v, %v", a, err)
	}

	a, err = f.svc.ResolveActor(ctx, auth.Identity{UserID: uuid.New(), Role: auth.RoleDoctor})
	if err != nil || a.DoctorID != nil {
		t.Errorf("doctor without profile should resolve without id, got %+v, %v", a, err)
	}

	a, _ = f.svc.ResolveActor(ctx, auth.Identity{UserID: f.patientActor.UserID, Role: auth.RolePatient})
	if a.DoctorID != nil || a.Role != auth.RolePatient {
		t.Errorf("unexpected patient actor %+v", a)
	}
}

// -- Reminders --

func TestService_SendReminders(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	soon := f.book(t)
	f.repo.store[soon.ID].Status = StatusConfirmed
	f.repo.store[soon.ID].ScheduledAt = fixedNow.Add(3 * time.Hour)

	later := f.book(t)
	f.repo.store[later.ID].Status = StatusConfirmed // 48h out

	pending := f.book(t)
	f.repo.store[pending.ID].ScheduledAt = fixedNow.Add(2 * time.Hour)

	before := f.notifier.count()
	sent, err := f.svc.SendReminders(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 1 || f.notifier.count() != before+1 {
		t.Fatalf("expected one reminder, got %d", sent)
	}
	n := f.notifier.last()
	if n.Type != notification.TypeReminder || *n.RelatedID != soon.ID || n.UserID != f.patientActor.UserID {
		t.Errorf("unexpected reminder %+v", n)
	}
}

func TestReminderJob(t *testing.T) {
	f := newFixture()
	if _, err := NewReminderJob(f.svc, "not a schedule", zerolog.Nop()); err == nil {
		t.Error("expected error for invalid cron spec")
	}

	job, err := NewReminderJob(f.svc, "0 8 * * *", zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := f.book(t)
	f.repo.store[a.ID].Status = StatusConfirmed
	f.repo.store[a.ID].ScheduledAt = fixedNow.Add(time.Hour)

	before := f.notifier.count()
	job.Run()
	if f.notifier.count() != before+1 {
		t.Error("expected Run to send the due reminder")
	}

	job.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	job.Stop(ctx)
}
