package notification

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	notify "github.com/carebook/carebook/internal/platform/notification"
)

// -- Mocks --

type mockRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]*Notification
	seq   int
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[uuid.UUID]*Notification)}
}

func (m *mockRepo) Create(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	n.ID = uuid.New()
	n.CreatedAt = time.Unix(int64(m.seq), 0)
	cp := *n
	m.store[n.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *mockRepo) ListByUser(_ context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Notification
	for _, n := range m.store {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
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

func (m *mockRepo) CountUnread(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.store {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *mockRepo) MarkRead(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	n.IsRead = true
	return nil
}

func (m *mockRepo) MarkAllRead(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.store {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			count++
		}
	}
	return count, nil
}

type mockDeliverer struct {
	mu        sync.Mutex
	delivered []notify.Message
	feed      chan []byte
	subErr    error
}

func (d *mockDeliverer) Deliver(_ context.Context, msg notify.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delivered = append(d.delivered, msg)
	return nil
}

func (d *mockDeliverer) Subscribe(_ context.Context, _ uuid.UUID) (<-chan []byte, func(), error) {
	if d.subErr != nil {
		return nil, nil, d.subErr
	}
	return d.feed, func() {}, nil
}

func (d *mockDeliverer) messages() []notify.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notify.Message(nil), d.delivered...)
}

type staticEmails map[uuid.UUID]string

func (s staticEmails) ContactEmail(_ context.Context, userID uuid.UUID) (string, error) {
	email, ok := s[userID]
	if !ok {
		return "", errors.New("no such user")
	}
	return email, nil
}

func newTestService() (*Service, *mockRepo, *mockDeliverer) {
	repo := newMockRepo()
	d := &mockDeliverer{}
	return NewService(repo, d, staticEmails{}, nil, zerolog.Nop()), repo, d
}

// -- Tests --

func TestService_Notify(t *testing.T) {
	repo := newMockRepo()
	d := &mockDeliverer{}
	user := uuid.New()
	related := uuid.New()
	svc := NewService(repo, d, staticEmails{user: "pat@example.com"}, nil, zerolog.Nop())

	n, err := svc.Notify(context.Background(), user, "Appointment confirmed", "See you soon", TypeAppointment, &related)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.IsRead {
		t.Error("new notification should be unread")
	}
	if _, err := repo.GetByID(context.Background(), n.ID); err != nil {
		t.Errorf("notification not stored: %v", err)
	}

	msgs := d.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(msgs))
	}
	if msgs[0].Email != "pat@example.com" || msgs[0].Body != "See you soon" || *msgs[0].RelatedID != related {
		t.Errorf("unexpected delivery: %+v", msgs[0])
	}
}

func TestService_Notify_NoDedup(t *testing.T) {
	svc, repo, _ := newTestService()
	user := uuid.New()
	for i := 0; i < 2; i++ {
		if _, err := svc.Notify(context.Background(), user, "Same", "Same", TypeSystem, nil); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}
	if n, _ := repo.CountUnread(context.Background(), user); n != 2 {
		t.Errorf("expected 2 notifications, got %d", n)
	}
}

func TestService_Notify_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	user := uuid.New()
	tests := []struct {
		name           string
		user           uuid.UUID
		title, message string
		typ            string
	}{
		{"nil user", uuid.Nil, "t", "m", TypeSystem},
		{"empty title", user, "", "m", TypeSystem},
		{"empty message", user, "t", " ", TypeSystem},
		{"unknown type", user, "t", "m", "marketing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Notify(context.Background(), tt.user, tt.title, tt.message, tt.typ, nil); !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestService_Notify_WithoutDeliverer(t *testing.T) {
	svc := NewService(newMockRepo(), nil, nil, nil, zerolog.Nop())
	if _, err := svc.Notify(context.Background(), uuid.New(), "t", "m", TypeReminder, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := svc.Subscribe(context.Background(), uuid.New()); !errors.Is(err, ErrStreamUnavailable) {
		t.Errorf("expected ErrStreamUnavailable, got %v", err)
	}
}

func TestService_ListAndUnread(t *testing.T) {
	svc, _, _ := newTestService()
	user := uuid.New()
	other := uuid.New()

	first, _ := svc.Notify(context.Background(), user, "one", "1", TypeSystem, nil)
	svc.Notify(context.Background(), user, "two", "2", TypeSystem, nil)
	svc.Notify(context.Background(), other, "three", "3", TypeSystem, nil)

	if _, err := svc.MarkRead(context.Background(), user, first.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	all, total, _ := svc.List(context.Background(), user, false, 10, 0)
	if total != 2 || len(all) != 2 {
		t.Errorf("expected 2, got %d", total)
	}
	if all[0].Title != "two" {
		t.Errorf("expected newest first, got %s", all[0].Title)
	}

	unread, total, _ := svc.List(context.Background(), user, true, 10, 0)
	if total != 1 || unread[0].Title != "two" {
		t.Errorf("expected only the unread notification, got %d", total)
	}

	if n, _ := svc.UnreadCount(context.Background(), user); n != 1 {
		t.Errorf("expected unread count 1, got %d", n)
	}
}

func TestService_MarkRead_RecipientOnly(t *testing.T) {
	svc, _, _ := newTestService()
	owner := uuid.New()
	n, _ := svc.Notify(context.Background(), owner, "t", "m", TypeReview, nil)

	if _, err := svc.MarkRead(context.Background(), uuid.New(), n.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.MarkRead(context.Background(), owner, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	got, err := svc.MarkRead(context.Background(), owner, n.ID)
	if err != nil || !got.IsRead {
		t.Errorf("expected read notification, got %+v, %v", got, err)
	}
	// Idempotent.
	if _, err := svc.MarkRead(context.Background(), owner, n.ID); err != nil {
		t.Errorf("second mark read: %v", err)
	}
}

func TestService_MarkAllRead(t *testing.T) {
	svc, _, _ := newTestService()
	user := uuid.New()
	for i := 0; i < 3; i++ {
		svc.Notify(context.Background(), user, "t", "m", TypeSystem, nil)
	}

	n, err := svc.MarkAllRead(context.Background(), user)
	if err != nil || n != 3 {
		t.Errorf("expected 3 updated, got %d, %v", n, err)
	}
	if c, _ := svc.UnreadCount(context.Background(), user); c != 0 {
		t.Errorf("expected 0 unread, got %d", c)
	}
}
