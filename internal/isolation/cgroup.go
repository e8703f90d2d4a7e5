package isolation

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	cgroup1 "github.com/containerd/cgroups/cgroup1"
	"github.com/containerd/cgroups/cgroup2"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/nexuscore/core/internal/corelog"
	"github.com/nexuscore/core/internal/errtag"
)

// CgroupVersion names which hierarchy a CgroupManager is driving.
type CgroupVersion string

const (
	CgroupV1 CgroupVersion = "v1"
	CgroupV2 CgroupVersion = "v2"

	unifiedRoot = "/sys/fs/cgroup"
)

// ResourceLimits is the subset of cgroup controls spec.md §4.8 names:
// "CPU weight/max/cpuset, memory max/high/swap.max, io.weight, pids.max,
// plus an open extension map of filename -> value pairs". IOWeight is
// carried but not written to any control file; on the v1 hierarchy CPUMax,
// MemoryHigh and MemorySwap are not written either (see toV2Resources and
// toV1Resources). Extra entries are written as given on both hierarchies.
type ResourceLimits struct {
	CPUWeight  *uint64
	CPUMax     string // e.g. "100000 100000" (quota period)
	CpusetCpus string
	CpusetMems string

	MemoryMax  *int64
	MemoryHigh *int64
	MemorySwap *int64

	IOWeight *uint64
	PidsMax  *int64

	Extra map[string]string
}

// CgroupConfig configures a named cgroup.
type CgroupConfig struct {
	Name      string
	Resources ResourceLimits
}

// CgroupStats is the typed readback of a cgroup's control files, parsed per
// spec.md §4.8's "cpu.stat, memory.current, memory.stat, pids.current,
// io.stat into typed maps".
type CgroupStats struct {
	CPU         map[string]uint64
	MemoryUsage uint64
	Memory      map[string]uint64
	PidsCurrent uint64
	IO          map[string]map[string]uint64
}

// CgroupManager creates, configures, reads stats from, and tears down one
// named cgroup, preferring the unified (v2) hierarchy and falling back to v1
// legacy controllers, per spec.md §4.8.
type CgroupManager struct {
	cfg     CgroupConfig
	version CgroupVersion
	path    string

	v2 *cgroup2.Manager
	v1 cgroup1.Cgroup
}

// NewCgroupManager detects the host's cgroup hierarchy and prepares a
// manager for cfg without creating anything yet.
func NewCgroupManager(cfg CgroupConfig) (*CgroupManager, error) {
	version, err := detectCgroupVersion()
	if err != nil {
		return nil, err
	}
	return &CgroupManager{
		cfg:     cfg,
		version: version,
		path:    filepath.Join(unifiedRoot, cfg.Name),
	}, nil
}

func detectCgroupVersion() (CgroupVersion, error) {
	if _, err := os.Stat(filepath.Join(unifiedRoot, "cgroup.controllers")); err == nil {
		return CgroupV2, nil
	}
	if _, err := os.Stat(unifiedRoot); err == nil {
		return CgroupV1, nil
	}
	return "", errtag.New(errtag.UnsupportedFeature, errtag.High, fmt.Errorf("no cgroup filesystem found at %s", unifiedRoot))
}

// Version reports which hierarchy this manager is driving.
func (m *CgroupManager) Version() CgroupVersion { return m.version }

// Setup creates the cgroup, adds pid to it, and applies resource limits
// (spec.md §4.8's "Resource limits are written via well-known control
// files ... Missing control files are skipped with a warning, not an
// error").
func (m *CgroupManager) Setup(pid int) error {
	logger := corelog.WithComponent("isolation.cgroup")

	switch m.version {
	case CgroupV2:
		mgr, err := cgroup2.NewManager(unifiedRoot, "/"+m.cfg.Name, m.toV2Resources())
		if err != nil {
			return errtag.New(errtag.Cgroup, errtag.High, err).WithStep("setup_cgroup")
		}
		if err := mgr.AddProc(uint64(pid)); err != nil {
			return errtag.New(errtag.Cgroup, errtag.High, err).WithStep("setup_cgroup")
		}
		m.v2 = mgr
	case CgroupV1:
		ctrl, err := cgroup1.New(cgroup1.StaticPath("/"+m.cfg.Name), m.toV1Resources())
		if err != nil {
			return errtag.New(errtag.Cgroup, errtag.High, err).WithStep("setup_cgroup")
		}
		if err := ctrl.Add(cgroup1.Process{Pid: pid}); err != nil {
			return errtag.New(errtag.Cgroup, errtag.High, err).WithStep("setup_cgroup")
		}
		m.v1 = ctrl
	}

	if err := m.applyExtraSettings(); err != nil {
		logger.Warn().Err(err).Str("cgroup", m.cfg.Name).Msg("some custom cgroup settings were skipped")
	}
	logger.Info().Str("cgroup", m.cfg.Name).Str("version", string(m.version)).Msg("cgroup configured")
	return nil
}

func (m *CgroupManager) toV2Resources() *cgroup2.Resources {
	r := &cgroup2.Resources{}
	limits := m.cfg.Resources
	if limits.CPUWeight != nil || limits.CPUMax != "" || limits.CpusetCpus != "" || limits.CpusetMems != "" {
		r.CPU = &cgroup2.CPU{
			Weight: limits.CPUWeight,
			Cpus:   limits.CpusetCpus,
			Mems:   limits.CpusetMems,
		}
		if limits.CPUMax != "" {
			r.CPU.Max = cgroup2.CPUMax(limits.CPUMax)
		}
	}
	if limits.MemoryMax != nil || limits.MemoryHigh != nil || limits.MemorySwap != nil {
		r.Memory = &cgroup2.Memory{Max: limits.MemoryMax, High: limits.MemoryHigh, Swap: limits.MemorySwap}
	}
	if limits.PidsMax != nil {
		r.Pids = &cgroup2.Pids{Max: *limits.PidsMax}
	}
	return r
}

func (m *CgroupManager) toV1Resources() *specs.LinuxResources {
	r := &specs.LinuxResources{}
	limits := m.cfg.Resources
	if limits.CPUWeight != nil || limits.CpusetCpus != "" || limits.CpusetMems != "" {
		r.CPU = &specs.LinuxCPU{
			Shares: limits.CPUWeight,
			Cpus:   limits.CpusetCpus,
			Mems:   limits.CpusetMems,
		}
	}
	if limits.MemoryMax != nil {
		r.Memory = &specs.LinuxMemory{Limit: limits.MemoryMax}
	}
	if limits.PidsMax != nil {
		r.Pids = &specs.LinuxPids{Limit: *limits.PidsMax}
	}
	return r
}

// applyExtraSettings writes the open filename -> value extension map
// directly to the cgroup directory, skipping (with a warning, never an
// error) any control file absent on this kernel.
func (m *CgroupManager) applyExtraSettings() error {
	var skipped []string
	for name, value := range m.cfg.Resources.Extra {
		path := filepath.Join(m.path, name)
		if _, err := os.Stat(path); err != nil {
			skipped = append(skipped, name)
			continue
		}
		if err := os.WriteFile(path, []byte(value), 0); err != nil {
			skipped = append(skipped, name)
		}
	}
	if len(skipped) > 0 {
		return fmt.Errorf("skipped unavailable cgroup files: %s", strings.Join(skipped, ", "))
	}
	return nil
}

// Stats reads and parses the cgroup's statistics files.
func (m *CgroupManager) Stats() (CgroupStats, error) {
	stats := CgroupStats{CPU: map[string]uint64{}, Memory: map[string]uint64{}, IO: map[string]map[string]uint64{}}

	if cpuStat, err := m.readFile("cpu.stat"); err == nil {
		stats.CPU = parseFlatKV(cpuStat)
	}
	if cur, err := m.readFile("memory.current"); err == nil {
		stats.MemoryUsage, _ = strconv.ParseUint(strings.TrimSpace(cur), 10, 64)
	}
	if memStat, err := m.readFile("memory.stat"); err == nil {
		stats.Memory = parseFlatKV(memStat)
	}
	if pidsCur, err := m.readFile("pids.current"); err == nil {
		stats.PidsCurrent, _ = strconv.ParseUint(strings.TrimSpace(pidsCur), 10, 64)
	}
	if ioStat, err := m.readFile("io.stat"); err == nil {
		stats.IO = parseIOStat(ioStat)
	}
	return stats, nil
}

func (m *CgroupManager) readFile(name string) (string, error) {
	b, err := os.ReadFile(filepath.Join(m.path, name))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func parseFlatKV(content string) map[string]uint64 {
	out := map[string]uint64{}
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		if v, err := strconv.ParseUint(fields[1], 10, 64); err == nil {
			out[fields[0]] = v
		}
	}
	return out
}

func parseIOStat(content string) map[string]map[string]uint64 {
	out := map[string]map[string]uint64{}
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		device := map[string]uint64{}
		for _, kv := range fields[1:] {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) != 2 {
				continue
			}
			if v, err := strconv.ParseUint(parts[1], 10, 64); err == nil {
				device[parts[0]] = v
			}
		}
		out[fields[0]] = device
	}
	return out
}

// Teardown removes the cgroup directory (spec.md §4.8: "Teardown removes the
// cgroup directory").
func (m *CgroupManager) Teardown() error {
	switch {
	case m.v2 != nil:
		if err := m.v2.Delete(); err != nil {
			return errtag.New(errtag.Cgroup, errtag.Medium, err)
		}
	case m.v1 != nil:
		if err := m.v1.Delete(); err != nil {
			return errtag.New(errtag.Cgroup, errtag.Medium, err)
		}
	}
	return nil
}
