package services

import (
	"github.com/rs/zerolog"

	"github.com/benmeehan/ak-mqtt/internal/metrics"
	"github.com/benmeehan/ak-mqtt/internal/utils"
)

// maxLoggedPayload caps how much of a downlink payload is written to the log.
const maxLoggedPayload = 1024

// DownlinkService handles messages arriving on the downlink subscription.
// Messages are only logged; there is no command dispatch yet.
type DownlinkService struct {
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// NewDownlinkService initializes a DownlinkService.
func NewDownlinkService(m *metrics.Metrics, logger zerolog.Logger) *DownlinkService {
	return &DownlinkService{
		Metrics: m,
		Logger:  logger,
	}
}

// OnMessage logs a downlink message.
func (d *DownlinkService) OnMessage(topic string, payload []byte) {
	d.Metrics.IncDownlinks()
	d.Logger.Info().
		Str("topic", topic).
		Int("size", len(payload)).
		Str("payload", utils.Preview(payload, maxLoggedPayload)).
		Msg("Downlink message arrived")
}
