package backend

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"codeberg.org/mutker/cpuctl/internal/logger"
	"codeberg.org/mutker/cpuctl/internal/profile"
)

const (
	simulatedMinMHz = 400
	simulatedMaxMHz = 4200
	simulatedJitter = 50.0
)

// freqBands gives each level a plausible operating band for the randomized
// frequency readout.
var freqBands = map[profile.Level][2]float64{
	profile.LevelIdle:   {600, 1200},
	profile.LevelLow:    {1200, 2000},
	profile.LevelMedium: {2000, 3000},
	profile.LevelSurge:  {3000, 4200},
}

var simulatedGovernors = []string{"performance", "powersave", "schedutil", "ondemand", "conservative"}

// Simulated is a Controller with no hardware behind it. Every Apply succeeds
// and readouts are randomized within the band of the applied level. Used when
// no cpufreq control surface is detected, or when forced by configuration.
type Simulated struct {
	mu      sync.Mutex
	rng     *rand.Rand
	current profile.Config
	applied bool
}

func NewSimulated() *Simulated {
	return &Simulated{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Simulated) Apply(_ context.Context, cfg profile.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = cfg
	s.applied = true
	logger.Debug().
		Str("level", cfg.Level.String()).
		Str("governor", cfg.Governor).
		Msg("Simulated profile apply")

	return nil
}

func (s *Simulated) CurrentFrequencyMHz() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	level := profile.LevelIdle
	if s.applied {
		level = s.current.Level
	}

	band := freqBands[level]
	freq := band[0] + s.rng.Float64()*(band[1]-band[0])
	freq += (s.rng.Float64() - 0.5) * simulatedJitter

	if freq < simulatedMinMHz {
		freq = simulatedMinMHz
	}

	return freq, true
}

func (s *Simulated) CurrentGovernor() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.applied {
		return "powersave", true
	}

	return s.current.Governor, true
}

func (s *Simulated) AvailableGovernors() []string {
	governors := make([]string, len(simulatedGovernors))
	copy(governors, simulatedGovernors)

	return governors
}

func (*Simulated) IsAvailable() bool {
	return true
}

func (*Simulated) SystemFreqRange() (int, int) {
	return simulatedMinMHz, simulatedMaxMHz
}

func (*Simulated) Kind() Kind {
	return KindSimulated
}

func (*Simulated) Diagnostics() Diagnostics {
	return Diagnostics{
		FileWritable: map[string]bool{},
	}
}
