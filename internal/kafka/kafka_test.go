package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safety-service/internal/engine"
	"safety-service/internal/logging"
	"safety-service/internal/models"
)

func TestDecodeLocation(t *testing.T) {
	upd, err := DecodeLocation([]byte(`{"tourist_id_code":"TR-000001","lat":26.9,"lng":75.8,"accuracy_m":12.5,"source":"android","recorded_at":"2024-05-01T17:30:00+05:30"}`))
	require.NoError(t, err)

	assert.Equal(t, "TR-000001", upd.SubjectCode)
	assert.Equal(t, 26.9, upd.Lat)
	assert.Equal(t, 75.8, upd.Lng)
	assert.Equal(t, 12.5, *upd.AccuracyM)
	assert.Equal(t, "android", *upd.Source)
	require.NotNil(t, upd.RecordedAt)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), *upd.RecordedAt)
}

func TestDecodeLocationWithoutTimestamp(t *testing.T) {
	upd, err := DecodeLocation([]byte(`{"tourist_id_code":"TR-000001","lat":0,"lng":0}`))
	require.NoError(t, err)
	assert.Nil(t, upd.RecordedAt)
	assert.Nil(t, upd.Source)
}

func TestDecodeLocationRejects(t *testing.T) {
	cases := map[string]string{
		"not json":      `{`,
		"missing code":  `{"lat":1,"lng":1}`,
		"missing lat":   `{"tourist_id_code":"TR-000001","lng":1}`,
		"out of range":  `{"tourist_id_code":"TR-000001","lat":91,"lng":1}`,
		"bad timestamp": `{"tourist_id_code":"TR-000001","lat":1,"lng":1,"recorded_at":"soon"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeLocation([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestEncodeAlert(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	event := models.AlertEvent{ID: "evt-1", Type: models.EventAlertCreated, OccurredAt: at,
		Alert: models.Alert{ID: 3, Kind: models.KindPanic}}

	msg, err := EncodeAlert("TR-000001", event)
	require.NoError(t, err)
	assert.Equal(t, "TR-000001", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	assert.Equal(t, []kafka.Header{{Key: "event_type", Value: []byte("alert.created")}}, msg.Headers)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "evt-1", decoded["event_id"])
	assert.Equal(t, "panic", decoded["alert"].(map[string]interface{})["type"])
}

type stubIngester struct {
	got []engine.LocationUpdate
	err error
}

func (s *stubIngester) IngestLocation(_ context.Context, upd engine.LocationUpdate) ([]models.Alert, error) {
	s.got = append(s.got, upd)
	return nil, s.err
}

func TestHandleSkipsBadRecords(t *testing.T) {
	ing := &stubIngester{err: engine.ErrSubjectNotFound}
	c := &Consumer{ingester: ing, logger: logging.Discard()}

	c.handle(context.Background(), kafka.Message{Value: []byte(`garbage`)})
	assert.Empty(t, ing.got)

	c.handle(context.Background(), kafka.Message{Value: []byte(`{"tourist_id_code":"TR-000404","lat":1,"lng":1}`)})
	require.Len(t, ing.got, 1)
	assert.Equal(t, "TR-000404", ing.got[0].SubjectCode)

	ing.err = errors.New("db down")
	c.handle(context.Background(), kafka.Message{Value: []byte(`{"tourist_id_code":"TR-000001","lat":1,"lng":1}`)})
	assert.Len(t, ing.got, 2)
}

// flakyReader fails a few fetches, then serves its messages, then blocks.
type flakyReader struct {
	mu        sync.Mutex
	failures  int
	messages  []kafka.Message
	committed []int64
}

func (r *flakyReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.failures > 0 {
		r.failures--
		r.mu.Unlock()
		return kafka.Message{}, errors.New("broker unreachable")
	}
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *flakyReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *flakyReader) Close() error { return nil }

func (r *flakyReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func TestConsumerRecoversFromFetchErrors(t *testing.T) {
	reader := &flakyReader{
		failures: 3,
		messages: []kafka.Message{{Offset: 7, Value: []byte(`{"tourist_id_code":"TR-000001","lat":1,"lng":1}`)}},
	}
	ing := &stubIngester{}
	c := &Consumer{reader: reader, topic: "tourist_locations", ingester: ing, logger: logging.Discard(), backoff: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	c.Start(ctx, &wg)

	assert.Eventually(t, func() bool { return reader.commits() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	wg.Wait()

	require.Len(t, ing.got, 1)
	assert.Equal(t, []int64{7}, reader.committed)
}

func TestConsumerStopsWhenReaderClosed(t *testing.T) {
	c := &Consumer{reader: closedReader{}, ingester: &stubIngester{}, logger: logging.Discard(), backoff: time.Millisecond}
	done := make(chan struct{})
	go func() {
		c.run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer kept running after the reader closed")
	}
}

type closedReader struct{}

func (closedReader) FetchMessage(context.Context) (kafka.Message, error) { return kafka.Message{}, io.EOF }
func (closedReader) CommitMessages(context.Context, ...kafka.Message) error { return nil }
func (closedReader) Close() error { return nil }
