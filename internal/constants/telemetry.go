package constants

import "time"

const (
	// SampleInterval is the fixed cadence of the publish loop.
	SampleInterval = 5 * time.Second

	// TimestampLayout renders sample timestamps as ISO-8601 UTC with millisecond precision.
	TimestampLayout = "2006-01-02T15:04:05.000Z"

	// MinTemperature and MaxTemperature bound the placeholder sensor value.
	MinTemperature = 0
	MaxTemperature = 100
)

// TokenRenewalMargin is how long before expiry a fresh token is issued.
const TokenRenewalMargin = 1 * time.Hour

// Sampler names accepted by the --sampler flag.
const (
	SamplerRandom = "random"
	SamplerHost   = "host"
)
