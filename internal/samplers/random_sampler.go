package samplers

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/benmeehan/ak-mqtt/internal/constants"
	"github.com/rs/zerolog"
)

// RandomSampler stands in for a real sensor with a uniformly distributed value.
type RandomSampler struct {
	Logger zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSampler seeds a generator from the runtime's random source.
func NewRandomSampler(logger zerolog.Logger) *RandomSampler {
	return &RandomSampler{
		Logger: logger,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Name returns the identifier for the random sampler.
func (r *RandomSampler) Name() string {
	return constants.SamplerRandom
}

// Sample returns an integer in [MinTemperature, MaxTemperature].
func (r *RandomSampler) Sample(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	value := constants.MinTemperature + r.rng.IntN(constants.MaxTemperature-constants.MinTemperature+1)
	r.Logger.Debug().Int("temperature", value).Msg("Random temperature sampled")
	return value, nil
}

// Description provides a summary of the value produced.
func (r *RandomSampler) Description() string {
	return "Placeholder temperature, uniformly random in [0,100]."
}
