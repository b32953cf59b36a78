package samplers

import "context"

// Sampler produces the temperature value carried by each uplink.
type Sampler interface {
	Name() string                            // Name used to select the sampler (e.g., "random")
	Sample(ctx context.Context) (int, error) // Take one reading
	Description() string                     // Description of the reading
}
