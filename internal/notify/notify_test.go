package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusfix/backend/internal/models"
)

type recordingEmitter struct {
	got []models.Notification
	err error
}

func (r *recordingEmitter) Emit(ctx context.Context, n models.Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func TestMultiDeliversToEverySink(t *testing.T) {
	failing := &recordingEmitter{err: errors.New("broker down")}
	ok := &recordingEmitter{}
	err := Multi{failing, nil, ok}.Emit(context.Background(), models.Notification{Type: models.NotificationSLAWarning})

	require.Error(t, err)
	assert.Len(t, failing.got, 1)
	assert.Len(t, ok.got, 1)
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaEmitterPublishesJSON(t *testing.T) {
	w := &fakeWriter{}
	k := &KafkaEmitter{topic: "notifications", writer: w}
	err := k.Emit(context.Background(), models.Notification{
		UserID:  "tech-1",
		Type:    models.NotificationTechnicianAssigned,
		Message: "New assignment",
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "user:tech-1", string(msg.Key))
	var decoded models.Notification
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, models.NotificationTechnicianAssigned, decoded.Type)
	assert.NotEmpty(t, decoded.ID)
}

func TestNewKafkaEmitterRequiresBrokers(t *testing.T) {
	_, err := NewKafkaEmitter(KafkaConfig{Topic: "x"})
	assert.Error(t, err)
}
