// Package reading provides sensor sample generation with simulation
// abstraction. The simulated implementation generates plausible values
// around fixed baselines. The fake implementation allows deterministic
// testing.
package reading

import (
	"math"
	"math/rand"
	"time"
)

// Sample is one telemetry reading, produced fresh per publish cycle and
// never stored.
type Sample struct {
	Temperature float64
	Humidity    float64
}

// Source produces samples for the publish loop.
type Source interface {
	// Read returns the next sample. Implementations are only called
	// from the publish loop's goroutine and need not be safe for
	// concurrent use.
	Read() Sample
}

// Simulation baselines and jitter spans.
const (
	baseTemperature = 20.0
	spanTemperature = 5.0
	baseHumidity    = 50.0
	spanHumidity    = 15.0
)

// Simulated generates temperature and humidity values with bounded
// random jitter around the baselines, rounded to two decimal places.
type Simulated struct {
	rng *rand.Rand
}

// NewSimulated creates a Simulated source seeded from the clock.
func NewSimulated() *Simulated {
	return &Simulated{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewSimulatedWithSeed creates a Simulated source with a fixed seed.
func NewSimulatedWithSeed(seed int64) *Simulated {
	return &Simulated{rng: rand.New(rand.NewSource(seed))}
}

// Read returns a fresh sample.
func (s *Simulated) Read() Sample {
	t := baseTemperature + s.uniform(-spanTemperature, spanTemperature) + s.rng.Float64()
	h := baseHumidity + s.uniform(-spanHumidity, spanHumidity) + s.rng.Float64()
	return Sample{
		Temperature: round2(t),
		Humidity:    round2(h),
	}
}

func (s *Simulated) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
