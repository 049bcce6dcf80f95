package profile

import "fmt"

// Level is the abstract CPU power level requested by callers. Levels form a
// total order; conflict resolution always picks the highest active level.
type Level int

const (
	LevelIdle Level = iota
	LevelLow
	LevelMedium
	LevelSurge
)

var levelNames = map[Level]string{
	LevelIdle:   "idle",
	LevelLow:    "low",
	LevelMedium: "medium",
	LevelSurge:  "surge",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}

	return fmt.Sprintf("level(%d)", int(l))
}

// IsValid reports whether l is a known level constant
func (l Level) IsValid() bool {
	_, ok := levelNames[l]
	return ok
}

// ParseLevel converts a level name back to its constant
func ParseLevel(name string) (Level, bool) {
	for level, n := range levelNames {
		if n == name {
			return level, true
		}
	}

	return LevelIdle, false
}

// Config describes the concrete hardware settings for one power level.
// Values are immutable once constructed; substitution produces a copy.
type Config struct {
	Level            Level
	Governor         string
	EnergyPreference string
	MinFreqMHz       int
	MaxFreqMHz       int
	Description      string
}

// WithGovernor returns a copy of c with the governor replaced
func (c Config) WithGovernor(governor string) Config {
	c.Governor = governor
	return c
}
