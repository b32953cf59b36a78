package samplers

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSampler struct{ value int }

func (f fixedSampler) Name() string                        { return "fixed" }
func (f fixedSampler) Sample(context.Context) (int, error) { return f.value, nil }
func (f fixedSampler) Description() string                 { return "fixed value" }

func TestRandomSampler_Range(t *testing.T) {
	s := NewRandomSampler(zerolog.Nop())
	assert.Equal(t, "random", s.Name())

	seen := map[int]bool{}
	for i := 0; i < 5000; i++ {
		v, err := s.Sample(context.Background())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 0)
		assert.LessOrEqual(t, v, 100)
		seen[v] = true
	}
	assert.Greater(t, len(seen), 50)
}

func TestHostTemperatureSampler_HottestSensor(t *testing.T) {
	s := NewHostTemperatureSampler(fixedSampler{value: 42}, zerolog.Nop())
	s.readSensors = func(context.Context) ([]host.TemperatureStat, error) {
		return []host.TemperatureStat{
			{SensorKey: "cpu_thermal", Temperature: 48.6},
			{SensorKey: "acpitz", Temperature: 31.2},
		}, nil
	}

	v, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 49, v)
}

func TestHostTemperatureSampler_PartialWarnings(t *testing.T) {
	s := NewHostTemperatureSampler(nil, zerolog.Nop())
	s.readSensors = func(context.Context) ([]host.TemperatureStat, error) {
		return []host.TemperatureStat{{SensorKey: "nvme", Temperature: 130}}, errors.New("some sensors unreadable")
	}

	v, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, v)
}

func TestHostTemperatureSampler_Fallback(t *testing.T) {
	s := NewHostTemperatureSampler(fixedSampler{value: 42}, zerolog.Nop())
	s.readSensors = func(context.Context) ([]host.TemperatureStat, error) {
		return nil, errors.New("not implemented on this platform")
	}

	v, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	s.readSensors = func(context.Context) ([]host.TemperatureStat, error) { return nil, nil }
	v, err = s.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	s.Fallback = nil
	_, err = s.Sample(context.Background())
	assert.EqualError(t, err, "no temperature sensors found")
}

func TestSamplersRegistry(t *testing.T) {
	r := NewSamplersRegistry()
	random := NewRandomSampler(zerolog.Nop())
	r.Register(random)
	r.Register(NewHostTemperatureSampler(random, zerolog.Nop()))

	got, err := r.Get("random")
	require.NoError(t, err)
	assert.Same(t, random, got)

	assert.Equal(t, []string{"host", "random"}, r.Names())

	_, err = r.Get("thermocouple")
	assert.Error(t, err)
}
