package models

import (
	"encoding/json"
	"time"

	"github.com/benmeehan/ak-mqtt/internal/constants"
)

// Sample is a single telemetry measurement published as an uplink.
type Sample struct {
	Temperature int    `json:"temperature"`
	Timestamp   string `json:"timestamp"`
}

// NewSample stamps a temperature reading with t in UTC, truncated to milliseconds.
func NewSample(temperature int, t time.Time) Sample {
	return Sample{
		Temperature: temperature,
		Timestamp:   t.UTC().Truncate(time.Millisecond).Format(constants.TimestampLayout),
	}
}

// Encode returns the compact JSON payload for the sample.
func (s Sample) Encode() ([]byte, error) {
	return json.Marshal(s)
}
