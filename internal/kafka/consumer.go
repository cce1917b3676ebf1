package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"safety-service/internal/engine"
	"safety-service/internal/logging"
	"safety-service/internal/models"
)

// Ingester is the engine operation fed by the location topic.
type Ingester interface {
	IngestLocation(ctx context.Context, upd engine.LocationUpdate) ([]models.Alert, error)
}

// locationMessage is the JSON body of a tourist_locations record.
type locationMessage struct {
	Code       string   `json:"tourist_id_code"`
	Lat        *float64 `json:"lat"`
	Lng        *float64 `json:"lng"`
	AccuracyM  *float64 `json:"accuracy_m"`
	Source     *string  `json:"source"`
	RecordedAt *string  `json:"recorded_at"`
}

// DecodeLocation parses and validates one location record.
func DecodeLocation(data []byte) (engine.LocationUpdate, error) {
	var m locationMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return engine.LocationUpdate{}, fmt.Errorf("unmarshal location: %w", err)
	}
	if m.Code == "" || m.Lat == nil || m.Lng == nil {
		return engine.LocationUpdate{}, fmt.Errorf("invalid message: missing tourist_id_code, lat, or lng")
	}
	if *m.Lat < -90 || *m.Lat > 90 || *m.Lng < -180 || *m.Lng > 180 {
		return engine.LocationUpdate{}, fmt.Errorf("invalid message: coordinates out of range")
	}
	upd := engine.LocationUpdate{
		SubjectCode: m.Code,
		Lat:         *m.Lat,
		Lng:         *m.Lng,
		AccuracyM:   m.AccuracyM,
		Source:      m.Source,
	}
	if m.RecordedAt != nil && *m.RecordedAt != "" {
		t, err := models.ParseTimestamp(*m.RecordedAt)
		if err != nil {
			return engine.LocationUpdate{}, err
		}
		upd.RecordedAt = &t
	}
	return upd, nil
}

// Fetch retry backoff bounds.
const (
	minFetchBackoff = time.Second
	maxFetchBackoff = 30 * time.Second
)

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds location updates from Kafka into the engine.
type Consumer struct {
	reader   messageReader
	topic    string
	ingester Ingester
	logger   *logging.Logger
	backoff  time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, ingester Ingester, logger *logging.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, topic: topic, ingester: ingester, logger: logger, backoff: minFetchBackoff}
}

// Start reads until ctx is cancelled or the reader is closed. Fetch errors
// are retried with a doubling backoff.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.run(ctx)
	}()
}

func (c *Consumer) run(ctx context.Context) {
	c.logger.Infof("Kafka consumer started on topic %s", c.topic)
	wait := c.backoff
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				c.logger.Infof("Kafka consumer stopped")
				return
			}
			c.logger.Errorf("Read message failed, retrying in %s: %v", wait, err)
			select {
			case <-ctx.Done():
				c.logger.Infof("Kafka consumer stopped")
				return
			case <-time.After(wait):
			}
			wait *= 2
			if wait > maxFetchBackoff {
				wait = maxFetchBackoff
			}
			continue
		}
		wait = c.backoff
		c.handle(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Errorf("Commit offset %d failed: %v", msg.Offset, err)
		}
	}
}

// handle ingests one record. Bad records are logged and skipped.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	upd, err := DecodeLocation(msg.Value)
	if err != nil {
		c.logger.Errorf("Skipping offset %d: %v", msg.Offset, err)
		return
	}
	alerts, err := c.ingester.IngestLocation(ctx, upd)
	switch {
	case errors.Is(err, engine.ErrSubjectNotFound), errors.Is(err, engine.ErrRateLimitExceeded):
		c.logger.Warnf("Location for %s dropped: %v", upd.SubjectCode, err)
	case err != nil:
		c.logger.Errorf("Ingest location for %s failed: %v", upd.SubjectCode, err)
	default:
		c.logger.Debugf("Ingested location for %s, %d alert(s)", upd.SubjectCode, len(alerts))
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
