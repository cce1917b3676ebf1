// Package notification fans created alerts out to the live feed, the alert
// topic and, for panics, the emergency providers.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"safety-service/internal/config"
	"safety-service/internal/logging"
	"safety-service/internal/metrics"
	"safety-service/internal/models"
	"safety-service/internal/providers"
)

// Provider delivers one rendered message.
type Provider func(context.Context, providers.Message) error

// DispatchLog persists delivery attempts. It may be nil.
type DispatchLog interface {
	CreateDispatch(ctx context.Context, d models.Dispatch) error
	UpdateDispatchStatus(ctx context.Context, id [16]byte, status, lastError string) error
}

// Publisher forwards alert events to a message broker.
type Publisher interface {
	PublishAlert(ctx context.Context, key string, event models.AlertEvent) error
}

// Service processes alert Tasks and dispatches notifications.
type Service struct {
	log           DispatchLog
	logger        *logging.Logger
	config        config.Config
	metrics       *metrics.Metrics
	tasks         chan models.Task
	ctx           context.Context
	cancel        context.CancelFunc
	wg            *sync.WaitGroup
	providerFuncs map[string]Provider
	publisher     Publisher
	hub           *Hub
}

// New constructs a notification Service. Providers are registered from cfg
// when dispatch is enabled; a provider that cannot be configured is skipped.
func New(log DispatchLog, logger *logging.Logger, cfg config.Config, m *metrics.Metrics) *Service {
	if cfg.Notification.QueueSize <= 0 {
		cfg.Notification.QueueSize = 500
	}
	if cfg.Notification.MaxWorkers <= 0 {
		cfg.Notification.MaxWorkers = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		log:           log,
		logger:        logger,
		config:        cfg,
		metrics:       m,
		tasks:         make(chan models.Task, cfg.Notification.QueueSize),
		ctx:           ctx,
		cancel:        cancel,
		providerFuncs: map[string]Provider{},
		hub:           NewHub(logger),
	}

	if cfg.ProviderEnabled("email") {
		svc.providerFuncs["email"] = providers.NewEmail(cfg)
	}
	if cfg.ProviderEnabled("sms") {
		if p, err := providers.NewSMS(cfg, logger); err != nil {
			logger.Warnf("SMS dispatch disabled: %v", err)
		} else {
			svc.providerFuncs["sms"] = p
		}
	}
	if cfg.ProviderEnabled("telegram") {
		if p, err := providers.NewTelegram(cfg, logger); err != nil {
			logger.Warnf("Telegram dispatch disabled: %v", err)
		} else {
			svc.providerFuncs["telegram"] = p
		}
	}
	return svc
}

// RegisterProvider adds or replaces the provider for a channel.
func (s *Service) RegisterProvider(channel string, p Provider) {
	s.providerFuncs[channel] = p
}

// SetPublisher wires the broker used for alert events.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// Hub exposes the live feed so the API can attach websocket clients.
func (s *Service) Hub() *Hub {
	return s.hub
}

// Start launches the worker pool.
func (s *Service) Start(wg *sync.WaitGroup) {
	s.wg = wg
	for i := 0; i < s.config.Notification.MaxWorkers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop signals workers and fan-out to exit and closes live feed connections.
func (s *Service) Stop() {
	s.cancel()
	s.hub.CloseAll()
}

// Notify queues the alert for dispatch. It never blocks.
func (s *Service) Notify(alert models.Alert, subject models.Subject) {
	s.QueueTask(models.Task{
		RequestID: uuid.NewString(),
		Alert:     alert,
		Subject:   subject,
		QueuedAt:  time.Now().UTC(),
	})
}

// QueueTask enqueues a Task for processing.
func (s *Service) QueueTask(task models.Task) {
	select {
	case s.tasks <- task:
		s.logger.Debugf("Queued task: request_id=%s alert=%d", task.RequestID, task.Alert.ID)
	default:
		s.metrics.QueueDropped()
		s.logger.Errorf("Queue full, dropping task: request_id=%s alert=%d", task.RequestID, task.Alert.ID)
	}
}

// worker processes Tasks until context is cancelled.
func (s *Service) worker(id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debugf("Worker %d stopped", id)
			return
		case task := <-s.tasks:
			s.handleTask(task)
		}
	}
}

// fanoutTimeout bounds one broker publish.
const fanoutTimeout = 10 * time.Second

// handleTask contacts the emergency channels for panics, then hands the
// live feed and the alert topic to a background fan-out.
func (s *Service) handleTask(task models.Task) {
	reqID, err := uuid.Parse(task.RequestID)
	if err != nil {
		s.logger.Errorf("Invalid request ID %s: %v", task.RequestID, err)
		return
	}

	if task.Alert.Kind == models.KindPanic {
		subject, body := providers.Compose(task.Alert, task.Subject)
		for channel, provider := range s.providerFuncs {
			for _, to := range s.recipients(channel, task.Subject) {
				s.deliver(reqID, channel, provider, providers.Message{
					AlertID:   task.Alert.ID,
					Recipient: to,
					Subject:   subject,
					Body:      body,
				})
			}
		}
	}

	event := models.AlertEvent{
		ID:         reqID.String(),
		Type:       models.EventAlertCreated,
		OccurredAt: task.QueuedAt,
		Alert:      task.Alert,
	}
	// Counted on the worker WaitGroup; the calling worker keeps it above zero.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.broadcast(task, event)
	}()
}

// broadcast writes the event to websocket clients and the broker.
func (s *Service) broadcast(task models.Task, event models.AlertEvent) {
	entry := s.logger.Request(task.RequestID)
	if payload, err := json.Marshal(event); err != nil {
		entry.Errorf("Failed to encode alert %d: %v", task.Alert.ID, err)
	} else {
		s.hub.Broadcast(payload)
	}

	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, fanoutTimeout)
	defer cancel()
	if err := s.publisher.PublishAlert(ctx, task.Subject.Code, event); err != nil {
		entry.Errorf("Publish alert %d failed: %v", task.Alert.ID, err)
	}
}

// recipients resolves who a channel should reach for one tourist.
func (s *Service) recipients(channel string, subject models.Subject) []string {
	switch channel {
	case "sms":
		if subject.EmergencyContactPhone != nil && *subject.EmergencyContactPhone != "" {
			return []string{*subject.EmergencyContactPhone}
		}
		return nil
	case "email":
		return s.config.Dispatch.OpsEmails
	case "telegram":
		return []string{fmt.Sprintf("chat:%d", s.config.Telegram.ChatID)}
	default:
		return []string{channel}
	}
}

// deliver sends one message and records the attempt. Failures are logged only.
func (s *Service) deliver(reqID uuid.UUID, channel string, provider Provider, msg providers.Message) {
	d := models.Dispatch{
		ID:        uuid.New(),
		RequestID: reqID,
		AlertID:   msg.AlertID,
		Channel:   channel,
		Recipient: msg.Recipient,
		Status:    models.DispatchPending,
		CreatedAt: time.Now().UTC(),
	}
	if s.log != nil {
		if err := s.log.CreateDispatch(s.ctx, d); err != nil {
			s.logger.Errorf("CreateDispatch failed: %v", err)
		}
	}

	err := s.safeSend(provider, msg)

	final, lastErr := models.DispatchSent, ""
	if err != nil {
		final, lastErr = models.DispatchFailed, err.Error()
		s.logger.Errorf("Dispatch error via %s for alert %d: %v", channel, msg.AlertID, err)
	} else {
		s.logger.Infof("Alert %d dispatched via %s", msg.AlertID, channel)
	}
	s.metrics.Dispatched(channel, final)

	if s.log != nil {
		if err := s.log.UpdateDispatchStatus(s.ctx, d.ID, final, lastErr); err != nil {
			s.logger.Errorf("UpdateDispatchStatus failed: %v", err)
		}
	}
}

func (s *Service) safeSend(provider Provider, msg providers.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()
	return provider(s.ctx, msg)
}
