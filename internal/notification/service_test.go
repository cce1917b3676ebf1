package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safety-service/internal/config"
	"safety-service/internal/logging"
	"safety-service/internal/models"
	"safety-service/internal/providers"
)

type fakeLog struct {
	mu       sync.Mutex
	created  []models.Dispatch
	statuses map[[16]byte]string
}

func (f *fakeLog) CreateDispatch(_ context.Context, d models.Dispatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, d)
	return nil
}

func (f *fakeLog) UpdateDispatchStatus(_ context.Context, id [16]byte, status, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses == nil {
		f.statuses = map[[16]byte]string{}
	}
	f.statuses[id] = status
	return nil
}

func (f *fakeLog) statusCounts() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int{}
	for _, s := range f.statuses {
		out[s]++
	}
	return out
}

type fakePublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *fakePublisher) PublishAlert(_ context.Context, key string, _ models.AlertEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

type capture struct {
	mu   sync.Mutex
	msgs []providers.Message
}

func (c *capture) send(_ context.Context, m providers.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func testConfig() config.Config {
	var cfg config.Config
	cfg.Notification.QueueSize = 10
	cfg.Notification.MaxWorkers = 2
	cfg.Dispatch.OpsEmails = []string{"ops@example.com", "duty@example.com"}
	return cfg
}

func startService(t *testing.T, svc *Service) {
	t.Helper()
	var wg sync.WaitGroup
	svc.Start(&wg)
	t.Cleanup(func() {
		svc.Stop()
		wg.Wait()
	})
}

func subjectWithContact() models.Subject {
	phone := "+919812345678"
	return models.Subject{ID: 1, Code: "TR-000001", FullName: "Asha", EmergencyContactPhone: &phone}
}

func TestPanicFansOutToProviders(t *testing.T) {
	log := &fakeLog{}
	pub := &fakePublisher{}
	svc := New(log, logging.Discard(), testConfig(), nil)
	svc.SetPublisher(pub)

	sms, mail := &capture{}, &capture{}
	svc.RegisterProvider("sms", sms.send)
	svc.RegisterProvider("email", mail.send)
	startService(t, svc)

	svc.Notify(models.Alert{ID: 5, Kind: models.KindPanic, Severity: models.SeverityCritical, Title: "Panic button activated"}, subjectWithContact())

	assert.Eventually(t, func() bool {
		return sms.count() == 1 && mail.count() == 2 && pub.count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "+919812345678", sms.msgs[0].Recipient)
	assert.Equal(t, "[CRITICAL] Panic button activated", sms.msgs[0].Subject)
	assert.Eventually(t, func() bool { return log.statusCounts()[models.DispatchSent] == 3 }, 2*time.Second, 10*time.Millisecond)
}

// stalledPublisher blocks until its context ends, like a broker that
// accepts connections but never acknowledges writes.
type stalledPublisher struct {
	mu    sync.Mutex
	calls int
}

func (p *stalledPublisher) PublishAlert(ctx context.Context, _ string, _ models.AlertEvent) error {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (p *stalledPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestPanicDeliveryNotBlockedByStalledBroker(t *testing.T) {
	pub := &stalledPublisher{}
	svc := New(nil, logging.Discard(), testConfig(), nil)
	svc.SetPublisher(pub)
	sms := &capture{}
	svc.RegisterProvider("sms", sms.send)
	startService(t, svc)

	// More panics than workers: none may wait behind a stuck publish.
	for id := int64(1); id <= 4; id++ {
		svc.Notify(models.Alert{ID: id, Kind: models.KindPanic}, subjectWithContact())
	}

	assert.Eventually(t, func() bool { return sms.count() == 4 }, 500*time.Millisecond, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return pub.count() == 4 }, 500*time.Millisecond, 5*time.Millisecond)
}

func TestNonPanicSkipsProviders(t *testing.T) {
	pub := &fakePublisher{}
	svc := New(nil, logging.Discard(), testConfig(), nil)
	svc.SetPublisher(pub)
	sms := &capture{}
	svc.RegisterProvider("sms", sms.send)
	startService(t, svc)

	svc.Notify(models.Alert{ID: 6, Kind: models.KindGeofenceBreach}, subjectWithContact())

	assert.Eventually(t, func() bool { return pub.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, sms.count())
}

func TestProviderFailureIsRecorded(t *testing.T) {
	log := &fakeLog{}
	svc := New(log, logging.Discard(), testConfig(), nil)
	svc.RegisterProvider("sms", func(context.Context, providers.Message) error { return errors.New("twilio down") })
	svc.RegisterProvider("push", func(context.Context, providers.Message) error { panic("bad provider") })
	startService(t, svc)

	svc.Notify(models.Alert{ID: 7, Kind: models.KindPanic}, subjectWithContact())

	assert.Eventually(t, func() bool { return log.statusCounts()[models.DispatchFailed] == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestSMSSkippedWithoutContact(t *testing.T) {
	log := &fakeLog{}
	pub := &fakePublisher{}
	svc := New(log, logging.Discard(), testConfig(), nil)
	svc.SetPublisher(pub)
	sms := &capture{}
	svc.RegisterProvider("sms", sms.send)
	startService(t, svc)

	svc.Notify(models.Alert{ID: 8, Kind: models.KindPanic}, models.Subject{Code: "TR-000002"})

	assert.Eventually(t, func() bool { return pub.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, sms.count())
}

func TestQueueFullDrops(t *testing.T) {
	cfg := testConfig()
	cfg.Notification.QueueSize = 1
	svc := New(nil, logging.Discard(), cfg, nil)

	// Workers are not started, so the second task has nowhere to go.
	svc.Notify(models.Alert{ID: 1}, models.Subject{})
	svc.Notify(models.Alert{ID: 2}, models.Subject{})
	assert.Len(t, svc.tasks, 1)
}

func TestLiveFeedBroadcast(t *testing.T) {
	svc := New(nil, logging.Discard(), testConfig(), nil)
	startService(t, svc)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		svc.Hub().Add("admin-1", conn)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, func() bool { return svc.Hub().Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	code := "TR-000001"
	svc.Notify(models.Alert{ID: 9, Kind: models.KindInactivity, SubjectCode: &code}, models.Subject{Code: code})

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)

	var event models.AlertEvent
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, models.EventAlertCreated, event.Type)
	assert.Equal(t, int64(9), event.Alert.ID)
	assert.Equal(t, models.KindInactivity, event.Alert.Kind)
}
