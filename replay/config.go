package replay

import "fmt"

// Config groups the engine parameters of one replay run.
// Collaborator settings (endpoint, retries, timeouts) live with the Issuer.
type Config struct {
	PoolSize        int     // number of workers (must be >= 1)
	ScaleFactor     float64 // trace time multiplier: <1 compresses, >1 stretches (must be > 0)
	Streaming       bool    // issue streaming completions
	MaxOutputTokens int64   // per-request output limit (0 = unset)
	Model           string  // default model when a request carries none
	QueueSize       int     // dispatch queue capacity (0 = 2*PoolSize)
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{
		PoolSize:    1,
		ScaleFactor: 1.0,
	}
}

// Validate checks the ranges of every field.
func (c Config) Validate() error {
	if c.PoolSize < 1 {
		return fmt.Errorf("%w: pool size must be >= 1, got %d", ErrInvalidConfig, c.PoolSize)
	}
	if !(c.ScaleFactor > 0) {
		return fmt.Errorf("%w: scale factor must be > 0, got %v", ErrInvalidConfig, c.ScaleFactor)
	}
	if c.MaxOutputTokens < 0 {
		return fmt.Errorf("%w: max output tokens must be >= 0, got %d", ErrInvalidConfig, c.MaxOutputTokens)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("%w: queue size must be >= 0, got %d", ErrInvalidConfig, c.QueueSize)
	}
	return nil
}

// queueCapacity resolves QueueSize, defaulting to twice the pool size.
func (c Config) queueCapacity() int {
	if c.QueueSize > 0 {
		return c.QueueSize
	}
	return 2 * c.PoolSize
}
