package simulator

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"stream-anomaly-detector/models"
)

var (
	ErrInvalidDuration = errors.New("duration must be positive")
	ErrInvalidInterval = errors.New("interval must be positive")
)

// Config describes the synthetic signal: a regular sine pattern, a slower
// seasonal sine and uniform noise, optionally with injected spikes.
type Config struct {
	Duration          time.Duration `mapstructure:"duration"`
	Interval          time.Duration `mapstructure:"interval"`
	Amplitude         float64       `mapstructure:"amplitude"`
	SeasonalAmplitude float64       `mapstructure:"seasonal_amplitude"`
	Noise             float64       `mapstructure:"noise"`
	SpikeProbability  float64       `mapstructure:"spike_probability"`
	SpikeMagnitude    float64       `mapstructure:"spike_magnitude"`
	Seed              int64         `mapstructure:"seed"`
}

func DefaultConfig() Config {
	return Config{
		Duration:          60 * time.Second,
		Interval:          500 * time.Millisecond,
		Amplitude:         10,
		SeasonalAmplitude: 5,
		Noise:             1,
		SpikeProbability:  0.02,
		SpikeMagnitude:    30,
	}
}

func (c Config) Validate() error {
	if c.Duration <= 0 {
		return ErrInvalidDuration
	}
	if c.Interval <= 0 {
		return ErrInvalidInterval
	}
	return nil
}

type Generator struct {
	cfg Config
	rng *rand.Rand
}

func New(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(seed))}, nil
}

// Value returns the signal at elapsed time since the start of the stream.
func (g *Generator) Value(elapsed time.Duration) float64 {
	t := elapsed.Seconds()
	v := g.cfg.Amplitude*math.Sin(0.2*t) + g.cfg.SeasonalAmplitude*math.Sin(0.05*t)
	if g.cfg.Noise > 0 {
		v += (g.rng.Float64()*2 - 1) * g.cfg.Noise
	}
	if g.cfg.SpikeProbability > 0 && g.rng.Float64() < g.cfg.SpikeProbability {
		if g.rng.Intn(2) == 0 {
			v += g.cfg.SpikeMagnitude
		} else {
			v -= g.cfg.SpikeMagnitude
		}
	}
	return v
}

// Run emits one sample per interval until the configured duration elapses or
// ctx is cancelled. out is not closed.
func (g *Generator) Run(ctx context.Context, out chan<- models.Sample) error {
	start := time.Now()
	ticker := time.NewTicker(g.cfg.Interval)
	defer ticker.Stop()

	var index uint64
	for {
		now := time.Now()
		elapsed := now.Sub(start)
		if elapsed >= g.cfg.Duration {
			return nil
		}

		sample := models.Sample{Index: index, Value: g.Value(elapsed), Timestamp: now}
		select {
		case out <- sample:
			index++
		case <-ctx.Done():
			return ctx.Err()
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
