package samplers

import (
	"context"
	"errors"
	"math"

	"github.com/benmeehan/ak-mqtt/internal/constants"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/host"
)

// HostTemperatureSampler reads the hottest on-board temperature sensor. When the
// platform exposes no sensors it falls back to another sampler.
type HostTemperatureSampler struct {
	Logger   zerolog.Logger
	Fallback Sampler

	readSensors func(ctx context.Context) ([]host.TemperatureStat, error)
}

// NewHostTemperatureSampler creates a sampler backed by the host's sensors.
func NewHostTemperatureSampler(fallback Sampler, logger zerolog.Logger) *HostTemperatureSampler {
	return &HostTemperatureSampler{
		Logger:      logger,
		Fallback:    fallback,
		readSensors: host.SensorsTemperaturesWithContext,
	}
}

// Name returns the identifier for the host temperature sampler.
func (h *HostTemperatureSampler) Name() string {
	return constants.SamplerHost
}

// Sample returns the highest sensor reading in whole degrees Celsius, clamped to
// [MinTemperature, MaxTemperature].
func (h *HostTemperatureSampler) Sample(ctx context.Context) (int, error) {
	stats, err := h.readSensors(ctx)
	if err != nil && len(stats) == 0 {
		return h.fallback(ctx, err)
	}

	hottest := math.Inf(-1)
	sensor := ""
	for _, stat := range stats {
		if stat.Temperature > hottest {
			hottest = stat.Temperature
			sensor = stat.SensorKey
		}
	}
	if math.IsInf(hottest, -1) {
		return h.fallback(ctx, errors.New("no temperature sensors found"))
	}

	value := int(math.Round(hottest))
	if value < constants.MinTemperature {
		value = constants.MinTemperature
	}
	if value > constants.MaxTemperature {
		value = constants.MaxTemperature
	}

	h.Logger.Debug().Str("sensor", sensor).Float64("raw", hottest).Int("temperature", value).Msg("Host temperature sampled")
	return value, nil
}

func (h *HostTemperatureSampler) fallback(ctx context.Context, cause error) (int, error) {
	if h.Fallback == nil {
		return 0, cause
	}
	h.Logger.Debug().Err(cause).Str("fallback", h.Fallback.Name()).Msg("Host temperature unavailable, using fallback sampler")
	return h.Fallback.Sample(ctx)
}

// Description provides a summary of the value produced.
func (h *HostTemperatureSampler) Description() string {
	return "Hottest host temperature sensor in degrees Celsius."
}
