package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/ak-mqtt/internal/metrics"
	"github.com/benmeehan/ak-mqtt/internal/models"
	"github.com/benmeehan/ak-mqtt/internal/samplers"
	"github.com/benmeehan/ak-mqtt/pkg/mqtt"
)

// StateReader exposes the current connection state.
type StateReader interface {
	State() models.ConnectionState
}

// TelemetryService publishes one sample per Interval on an absolute schedule, so time
// spent sampling and publishing never accumulates into drift.
type TelemetryService struct {
	Topic     models.Topic
	Interval  time.Duration
	Sampler   samplers.Sampler
	Transport mqtt.Transport
	Session   StateReader
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger

	now        func() time.Time
	sleepUntil func(ctx context.Context, t time.Time) bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTelemetryService initializes a new TelemetryService.
func NewTelemetryService(topic models.Topic, interval time.Duration, sampler samplers.Sampler,
	transport mqtt.Transport, session StateReader, m *metrics.Metrics, logger zerolog.Logger) *TelemetryService {

	t := &TelemetryService{
		Topic:     topic,
		Interval:  interval,
		Sampler:   sampler,
		Transport: transport,
		Session:   session,
		Metrics:   m,
		Logger:    logger,
		now:       time.Now,
	}
	t.sleepUntil = t.waitUntil
	return t
}

// Start launches the publish loop in a separate goroutine.
func (t *TelemetryService) Start() error {
	if t.ctx != nil {
		t.Logger.Warn().Msg("TelemetryService is already running")
		return fmt.Errorf("telemetry service: %w", ErrAlreadyRunning)
	}

	t.ctx, t.cancel = context.WithCancel(context.Background())

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run(t.ctx)
	}()

	t.Logger.Info().
		Str("topic", t.Topic.Name).
		Dur("interval", t.Interval).
		Str("sampler", t.Sampler.Name()).
		Str("sampler_description", t.Sampler.Description()).
		Msg("TelemetryService started successfully")
	return nil
}

// Stop gracefully stops the publish loop.
func (t *TelemetryService) Stop() error {
	if t.ctx == nil {
		t.Logger.Warn().Msg("TelemetryService is not running")
		return fmt.Errorf("telemetry service: %w", ErrNotRunning)
	}

	t.cancel()
	t.wg.Wait()

	t.ctx = nil
	t.cancel = nil

	t.Logger.Info().Msg("TelemetryService stopped successfully")
	return nil
}

func (t *TelemetryService) run(ctx context.Context) {
	wake := t.now()
	for {
		if !t.sleepUntil(ctx, wake) {
			return
		}
		t.publishSample(ctx)
		wake = wake.Add(t.Interval)
	}
}

// waitUntil sleeps until deadline and reports false if ctx ended first.
func (t *TelemetryService) waitUntil(ctx context.Context, deadline time.Time) bool {
	d := deadline.Sub(t.now())
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (t *TelemetryService) publishSample(ctx context.Context) {
	value, err := t.Sampler.Sample(ctx)
	if err != nil {
		t.Metrics.ObserveUplink(err)
		t.Logger.Error().Err(err).Str("sampler", t.Sampler.Name()).Msg("Failed to take sample")
		return
	}

	sample := models.NewSample(value, t.now())
	payload, err := sample.Encode()
	if err != nil {
		t.Metrics.ObserveUplink(err)
		t.Logger.Error().Err(err).Msg("Failed to encode sample")
		return
	}

	if state := t.Session.State(); state != models.StateConnected {
		t.Logger.Debug().Str("state", state.String()).Msg("Session not connected, sample will be buffered")
	}

	err = t.Transport.Publish(t.Topic.Name, t.Topic.QOS, t.Topic.Retained, payload)
	t.Metrics.ObserveUplink(err)
	t.Metrics.SetOutstanding(t.Transport.Outstanding())

	switch {
	case errors.Is(err, mqtt.ErrBufferFull):
		t.Logger.Warn().Err(err).Str("timestamp", sample.Timestamp).Msg("Offline buffer full, dropping sample")
	case err != nil:
		t.Logger.Error().Err(err).Str("topic", t.Topic.Name).Msg("Failed to publish sample")
	default:
		t.Logger.Info().
			Str("topic", t.Topic.Name).
			Int("temperature", sample.Temperature).
			Str("timestamp", sample.Timestamp).
			Msg("Published sample")
	}
}
