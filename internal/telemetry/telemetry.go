package telemetry

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"sync"

	"codeberg.org/mutker/cpuctl/internal/errors"
)

const defaultStatPath = "/proc/stat"

// Sampler reports aggregate CPU usage percent from the kernel's cumulative
// jiffy counters. Usage is the delta between two consecutive calls, so the
// first call (and any call after a read failure) reports no sample.
type Sampler struct {
	statPath string

	mu        sync.Mutex
	lastBusy  uint64
	lastTotal uint64
	hasSample bool
}

func NewSampler() *Sampler {
	return &Sampler{statPath: defaultStatPath}
}

// NewSamplerWithPath reads counters from an alternate stat file, for tests
func NewSamplerWithPath(path string) *Sampler {
	return &Sampler{statPath: path}
}

// Usage returns CPU usage percent since the previous call. The boolean is
// false while no delta is available yet.
func (s *Sampler) Usage() (float64, bool) {
	busy, total, err := s.readCounters()
	if err != nil {
		s.mu.Lock()
		s.hasSample = false
		s.mu.Unlock()
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		s.lastBusy = busy
		s.lastTotal = total
		s.hasSample = true
	}()

	// A backwards step in either counter invalidates the delta; the new
	// readings only re-baseline.
	if !s.hasSample || total <= s.lastTotal || busy < s.lastBusy {
		return 0, false
	}

	busyDelta := float64(busy - s.lastBusy)
	totalDelta := float64(total - s.lastTotal)

	return 100 * busyDelta / totalDelta, true
}

func (s *Sampler) readCounters() (busy, total uint64, err error) {
	errFactory := errors.New()

	f, err := os.Open(s.statPath)
	if err != nil {
		return 0, 0, errFactory.Wrap(ErrStatUnavailable, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		return parseCPULine(line)
	}

	return 0, 0, errFactory.New(ErrStatMalformed)
}

// parseCPULine parses the aggregate "cpu" line: user nice system idle iowait
// irq softirq steal [guest guest_nice]. Idle plus iowait counts as not busy.
func parseCPULine(line string) (busy, total uint64, err error) {
	errFactory := errors.New()

	fields := strings.Fields(line)
	if len(fields) < 5 {
		return 0, 0, errFactory.New(ErrStatMalformed)
	}

	values := make([]uint64, 0, len(fields)-1)
	for _, field := range fields[1:] {
		value, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return 0, 0, errFactory.Wrap(ErrStatMalformed, err)
		}
		values = append(values, value)
	}

	for _, value := range values {
		total += value
	}

	idle := values[3]
	if len(values) > 4 {
		idle += values[4]
	}

	return total - idle, total, nil
}
