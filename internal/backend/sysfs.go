package backend

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/cpuctl/internal/errors"
	"codeberg.org/mutker/cpuctl/internal/logger"
	"codeberg.org/mutker/cpuctl/internal/profile"
	"golang.org/x/sys/unix"
)

const (
	DefaultSysfsPath = "/sys/devices/system/cpu"

	governorFile  = "scaling_governor"
	eppFile       = "energy_performance_preference"
	minFreqFile   = "scaling_min_freq"
	maxFreqFile   = "scaling_max_freq"
	curFreqFile   = "scaling_cur_freq"
	availGovsFile = "scaling_available_governors"
	hwMinFile     = "cpuinfo_min_freq"
	hwMaxFile     = "cpuinfo_max_freq"

	kHzPerMHz         = 1000
	privilegedTimeout = 5 * time.Second
	maxReportedCores  = 3
	maxRecentErrors   = 5
)

var coreDirPattern = regexp.MustCompile(`cpu(\d+)$`)

// writeOutcome classifies a single sysfs write attempt
type writeOutcome int

const (
	outcomeOK writeOutcome = iota
	// outcomeNotFound means the control file is absent on this
	// kernel/driver; the feature is skipped, not failed
	outcomeNotFound
	outcomePermissionDenied
	outcomeFailed
)

type coreResult struct {
	core    int
	outcome writeOutcome
	err     error
}

// Sysfs drives the Linux cpufreq control surface. Cores with frequency
// control are discovered once at construction; Apply fans writes out across
// them in parallel and aggregates per-core outcomes into a single error.
type Sysfs struct {
	basePath  string
	cores     []int
	governors []string
	hwMinMHz  int
	hwMaxMHz  int

	mu           sync.Mutex
	privilegedOK *bool
	recentErrors []string

	// write seams, replaced in tests
	writeFile       func(path, value string) error
	privilegedWrite func(ctx context.Context, path, value string) error
}

func NewSysfs(basePath string) (*Sysfs, error) {
	errFactory := errors.New()

	if basePath == "" {
		basePath = DefaultSysfsPath
	}

	s := &Sysfs{
		basePath:        basePath,
		writeFile:       writeSysfsFile,
		privilegedWrite: privilegedWriteCmd,
	}

	cores, err := discoverCores(basePath)
	if err != nil {
		return nil, errFactory.Wrap(ErrBackendUnavailable, err)
	}
	if len(cores) == 0 {
		return nil, errFactory.WithMessage(ErrNoCores, "no cpufreq-capable cores found under "+basePath)
	}
	s.cores = cores

	s.governors = readGovernorList(s.corePath(cores[0], availGovsFile))
	s.hwMinMHz = readFreqMHz(s.corePath(cores[0], hwMinFile))
	s.hwMaxMHz = readFreqMHz(s.corePath(cores[0], hwMaxFile))

	logger.Debug().
		Int("cores", len(cores)).
		Strs("governors", s.governors).
		Int("hw_min_mhz", s.hwMinMHz).
		Int("hw_max_mhz", s.hwMaxMHz).
		Msg("Detected cpufreq control surface")

	return s, nil
}

func discoverCores(basePath string) ([]int, error) {
	matches, err := filepath.Glob(filepath.Join(basePath, "cpu[0-9]*", "cpufreq"))
	if err != nil {
		return nil, err
	}

	cores := make([]int, 0, len(matches))
	for _, match := range matches {
		m := coreDirPattern.FindStringSubmatch(filepath.Dir(match))
		if m == nil {
			continue
		}
		core, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		cores = append(cores, core)
	}
	sort.Ints(cores)

	return cores, nil
}

func (s *Sysfs) corePath(core int, file string) string {
	return filepath.Join(s.basePath, fmt.Sprintf("cpu%d", core), "cpufreq", file)
}

// Apply writes governor, energy preference and frequency range to every
// discovered core in parallel and waits for all of them. It fails only on
// permission or unexpected write errors; absent control files are tolerated.
func (s *Sysfs) Apply(ctx context.Context, cfg profile.Config) error {
	if cfg.Governor == "" {
		return errors.New().WithMessage(ErrInvalidProfile, "profile has no governor")
	}

	maxMHz := cfg.MaxFreqMHz
	if maxMHz <= 0 {
		maxMHz = s.hwMaxMHz
	}
	minMHz := cfg.MinFreqMHz
	if minMHz <= 0 {
		minMHz = s.hwMinMHz
	}

	results := make(chan coreResult, len(s.cores))
	var wg sync.WaitGroup
	for _, core := range s.cores {
		wg.Add(1)
		go func(core int) {
			defer wg.Done()
			results <- s.applyCore(ctx, core, cfg, minMHz, maxMHz)
		}(core)
	}
	wg.Wait()
	close(results)

	var permissionCores, failedCores []int
	var firstErr error
	for result := range results {
		switch result.outcome {
		case outcomePermissionDenied:
			permissionCores = append(permissionCores, result.core)
		case outcomeFailed:
			failedCores = append(failedCores, result.core)
		default:
			continue
		}
		if firstErr == nil {
			firstErr = result.err
		}
	}

	if len(permissionCores) == 0 && len(failedCores) == 0 {
		return nil
	}

	err := s.aggregateError(permissionCores, failedCores, firstErr)
	s.noteError(err)

	return err
}

func (s *Sysfs) applyCore(ctx context.Context, core int, cfg profile.Config, minMHz, maxMHz int) coreResult {
	writes := []struct {
		file     string
		value    string
		optional bool
	}{
		{governorFile, cfg.Governor, false},
		{eppFile, cfg.EnergyPreference, true},
		{minFreqFile, strconv.Itoa(minMHz * kHzPerMHz), false},
		{maxFreqFile, strconv.Itoa(maxMHz * kHzPerMHz), false},
	}

	for _, w := range writes {
		path := s.corePath(core, w.file)
		if w.optional {
			if _, err := os.Stat(path); err != nil {
				continue
			}
		}

		outcome, err := s.writeValue(ctx, path, w.value)
		switch outcome {
		case outcomeOK, outcomeNotFound:
			continue
		default:
			return coreResult{core: core, outcome: outcome, err: err}
		}
	}

	return coreResult{core: core, outcome: outcomeOK}
}

// writeValue attempts a direct write and, on a permission failure, retries
// once through the privileged fallback. The fallback's availability is cached
// after the first probe so later calls fail fast or skip the probe.
func (s *Sysfs) writeValue(ctx context.Context, path, value string) (writeOutcome, error) {
	err := s.writeFile(path, value)
	if err == nil {
		return outcomeOK, nil
	}

	switch {
	case errors.Is(err, os.ErrNotExist):
		return outcomeNotFound, err
	case errors.Is(err, os.ErrPermission):
		return s.writePrivileged(ctx, path, value)
	default:
		return outcomeFailed, err
	}
}

func (s *Sysfs) writePrivileged(ctx context.Context, path, value string) (writeOutcome, error) {
	errFactory := errors.New()

	s.mu.Lock()
	known := s.privilegedOK
	s.mu.Unlock()

	if known != nil && !*known {
		return outcomePermissionDenied, errFactory.WithMessage(ErrPermissionDenied, "privileged write path unavailable")
	}

	err := s.privilegedWrite(ctx, path, value)

	if known == nil {
		ok := err == nil
		s.mu.Lock()
		s.privilegedOK = &ok
		s.mu.Unlock()
	}

	if err != nil {
		return outcomePermissionDenied, errFactory.Wrap(ErrPermissionDenied, err)
	}

	return outcomeOK, nil
}

func (s *Sysfs) aggregateError(permissionCores, failedCores []int, cause error) error {
	errFactory := errors.New()

	if len(permissionCores) > 0 {
		msg := fmt.Sprintf(
			"cannot write cpufreq control files for %d core(s); run as root, or grant write access to %s",
			len(permissionCores), filepath.Join(s.basePath, "cpu*", "cpufreq"),
		)
		return errFactory.WithMessage(ErrPermissionDenied, msg)
	}

	reported := failedCores
	if len(reported) > maxReportedCores {
		reported = reported[:maxReportedCores]
	}
	msg := fmt.Sprintf("profile apply failed on %d core(s), first failing: %v", len(failedCores), reported)
	if cause != nil {
		return errFactory.Wrap(ErrTransientIO, cause).WithMessage(msg)
	}

	return errFactory.WithMessage(ErrTransientIO, msg)
}

func (s *Sysfs) noteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recentErrors = append(s.recentErrors, err.Error())
	if len(s.recentErrors) > maxRecentErrors {
		s.recentErrors = s.recentErrors[len(s.recentErrors)-maxRecentErrors:]
	}
}

func (s *Sysfs) CurrentFrequencyMHz() (float64, bool) {
	khz := readFreqKHz(s.corePath(s.cores[0], curFreqFile))
	if khz <= 0 {
		return 0, false
	}

	return float64(khz) / kHzPerMHz, true
}

func (s *Sysfs) CurrentGovernor() (string, bool) {
	data, err := os.ReadFile(s.corePath(s.cores[0], governorFile))
	if err != nil {
		return "", false
	}

	return strings.TrimSpace(string(data)), true
}

func (s *Sysfs) AvailableGovernors() []string {
	governors := make([]string, len(s.governors))
	copy(governors, s.governors)

	return governors
}

func (s *Sysfs) IsAvailable() bool {
	return len(s.cores) > 0
}

func (s *Sysfs) SystemFreqRange() (int, int) {
	return s.hwMinMHz, s.hwMaxMHz
}

func (*Sysfs) Kind() Kind {
	return KindSysfs
}

func (s *Sysfs) Diagnostics() Diagnostics {
	s.mu.Lock()
	defer s.mu.Unlock()

	diag := Diagnostics{
		FileWritable: make(map[string]bool),
		RecentErrors: append([]string(nil), s.recentErrors...),
	}

	if s.privilegedOK != nil {
		ok := *s.privilegedOK
		diag.PrivilegedAvailable = &ok
	}

	if current, err := user.Current(); err == nil {
		diag.User = current.Username
		if ids, err := current.GroupIds(); err == nil {
			for _, id := range ids {
				if group, err := user.LookupGroupId(id); err == nil {
					diag.Groups = append(diag.Groups, group.Name)
				} else {
					diag.Groups = append(diag.Groups, id)
				}
			}
		}
	}

	if len(s.cores) > 0 {
		for _, file := range []string{governorFile, eppFile, minFreqFile, maxFreqFile} {
			path := s.corePath(s.cores[0], file)
			diag.FileWritable[file] = unix.Access(path, unix.W_OK) == nil
		}
	}

	return diag
}

func writeSysfsFile(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(value)

	return err
}

// privilegedWriteCmd escalates a single write through a non-interactive sudo
// subprocess. The explicit timeout keeps a misconfigured sudo from wedging an
// Apply call.
func privilegedWriteCmd(ctx context.Context, path, value string) error {
	ctx, cancel := context.WithTimeout(ctx, privilegedTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sudo", "-n", "tee", path)
	cmd.Stdin = strings.NewReader(value)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	return cmd.Run()
}

func readGovernorList(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	return strings.Fields(string(data))
}

func readFreqKHz(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}

	khz, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}

	return khz
}

func readFreqMHz(path string) int {
	return readFreqKHz(path) / kHzPerMHz
}
