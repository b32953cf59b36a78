package services

import (
	"github.com/rs/zerolog"

	"github.com/benmeehan/ak-mqtt/internal/metrics"
	"github.com/benmeehan/ak-mqtt/internal/models"
	"github.com/benmeehan/ak-mqtt/pkg/mqtt"
)

// SubscriptionService (re)establishes the downlink subscription for a session.
type SubscriptionService struct {
	Topic     models.Topic
	Transport mqtt.Transport
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
}

// NewSubscriptionService initializes a SubscriptionService for topic.
func NewSubscriptionService(topic models.Topic, transport mqtt.Transport, m *metrics.Metrics, logger zerolog.Logger) *SubscriptionService {
	return &SubscriptionService{
		Topic:     topic,
		Transport: transport,
		Metrics:   m,
		Logger:    logger,
	}
}

// Subscribe issues the subscription. The outcome is reported later through OnSubscribeResult.
func (s *SubscriptionService) Subscribe() uint32 {
	id := s.Transport.Subscribe(s.Topic.Name, s.Topic.QOS)
	s.Logger.Info().
		Uint32("subscription_id", id).
		Str("topic", s.Topic.Name).
		Uint8("qos", s.Topic.QOS).
		Msg("Subscribing to downlink topic")
	return id
}

// OnSubscribeResult logs the outcome of a subscription. A failure leaves the session
// connected and is not retried.
func (s *SubscriptionService) OnSubscribeResult(ev mqtt.Event) {
	s.Metrics.ObserveSubscription(ev.Err)

	topic := ""
	if len(ev.Topics) > 0 {
		topic = ev.Topics[0]
	}

	if ev.Err != nil {
		s.Logger.Error().
			Err(ev.Err).
			Uint32("subscription_id", ev.SubscriptionID).
			Str("topic", topic).
			Str("session_id", ev.SessionID).
			Msg("Subscription failed")
		return
	}

	s.Logger.Info().
		Uint32("subscription_id", ev.SubscriptionID).
		Str("topic", topic).
		Str("session_id", ev.SessionID).
		Msg("Subscription succeeded")
}
