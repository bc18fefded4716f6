package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestEncode(t *testing.T) {
	apptID := uuid.New()
	msg, err := encode(Event{
		Type:          TypeAppointmentStatusChanged,
		AppointmentID: apptID,
		FromStatus:    "confirmed",
		ToStatus:      "completed",
	})
	require.NoError(t, err)

	assert.Equal(t, apptID.String(), string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, TypeAppointmentStatusChanged, string(msg.Headers[0].Value))

	var got Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.NotEqual(t, uuid.Nil, got.ID)
	assert.False(t, got.OccurredAt.IsZero())
	assert.Equal(t, "completed", got.ToStatus)
	assert.Nil(t, got.Rating)
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, p.Publish(context.Background(), Event{Type: TypeAppointmentCreated, AppointmentID: uuid.New(), OccurredAt: at}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, at, w.msgs[0].Time)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := &KafkaPublisher{writer: &fakeWriter{err: errors.New("broker unavailable")}}
	err := p.Publish(context.Background(), Event{Type: TypeReviewSubmitted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "review.submitted")
}

func TestNewKafkaPublisher(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "appointments")
	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "appointments", w.Topic)
	assert.Equal(t, kafka.RequireOne, w.RequiredAcks)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Event{Type: TypeAppointmentCreated}))
	assert.NoError(t, p.Close())
}
