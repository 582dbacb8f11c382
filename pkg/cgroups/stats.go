package cgroups

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// MemoryStats holds a best-effort snapshot of the memory controller's
// accounting files. Optional fields are nil when the backing file was
// missing or unparsable.
type MemoryStats struct {
	Limit     *uint64
	Usage     uint64
	MaxUsage  uint64
	FailCount uint64
}

// CPUStats holds a best-effort snapshot of the CPU controller's
// accounting files. Shares are always reported in v1 units; under v2
// the weight is converted back.
type CPUStats struct {
	Shares     *uint64
	Quota      *int64
	Period     *uint64
	UsageNanos uint64
}

// readUint reads a control file holding a single decimal value.
func readUint(dir, file string) (uint64, bool) {
	content, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(content)), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func readInt(dir, file string) (int64, bool) {
	content, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(content)), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// readKeyed parses a flat "key value" stat file into a map. A missing
// file yields an empty map.
func readKeyed(dir, file string) map[string]uint64 {
	values := make(map[string]uint64)
	content, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		return values
	}
	for _, line := range strings.Split(string(content), "\n") {
		key, value, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		if v, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64); err == nil {
			values[key] = v
		}
	}
	return values
}

// MemoryStats reads the memory accounting files. A missing or
// unparsable field is left at its zero value rather than failing the
// read: partial stats are a valid result, not an error.
func (cg *Cgroup) MemoryStats() MemoryStats {
	if cg.version == V1 {
		return cg.memoryStatsV1()
	}
	return cg.memoryStatsV2()
}

func (cg *Cgroup) memoryStatsV1() MemoryStats {
	memPath := cg.controllerPath(Memory)
	var stats MemoryStats

	if limit, ok := readUint(memPath, "memory.limit_in_bytes"); ok {
		stats.Limit = &limit
	}
	if usage, ok := readUint(memPath, "memory.usage_in_bytes"); ok {
		stats.Usage = usage
	}
	if maxUsage, ok := readUint(memPath, "memory.max_usage_in_bytes"); ok {
		stats.MaxUsage = maxUsage
	}
	if failcnt, ok := readUint(memPath, "memory.failcnt"); ok {
		stats.FailCount = failcnt
	}

	return stats
}

func (cg *Cgroup) memoryStatsV2() MemoryStats {
	var stats MemoryStats

	// memory.max holds the literal "max" when unlimited; the limit is
	// reported as absent in that case.
	if content, err := os.ReadFile(filepath.Join(cg.Path, "memory.max")); err == nil {
		raw := strings.TrimSpace(string(content))
		if raw != "max" {
			if limit, err := strconv.ParseUint(raw, 10, 64); err == nil {
				stats.Limit = &limit
			}
		}
	}

	if usage, ok := readUint(cg.Path, "memory.current"); ok {
		stats.Usage = usage
	}

	// v2 has no max_usage counter; oom_kill from memory.stat stands in
	// for the v1 failure count.
	if oomKills, ok := readKeyed(cg.Path, "memory.stat")["oom_kill"]; ok {
		stats.FailCount = oomKills
	}

	return stats
}

// CPUStats reads the CPU accounting files, best-effort like MemoryStats.
func (cg *Cgroup) CPUStats() CPUStats {
	if cg.version == V1 {
		return cg.cpuStatsV1()
	}
	return cg.cpuStatsV2()
}

func (cg *Cgroup) cpuStatsV1() CPUStats {
	cpuPath := cg.controllerPath(Cpu)
	var stats CPUStats

	if shares, ok := readUint(cpuPath, "cpu.shares"); ok {
		stats.Shares = &shares
	}
	if quota, ok := readInt(cpuPath, "cpu.cfs_quota_us"); ok {
		stats.Quota = &quota
	}
	if period, ok := readUint(cpuPath, "cpu.cfs_period_us"); ok {
		stats.Period = &period
	}
	if usage, ok := readUint(cg.controllerPath(CpuAcct), "cpuacct.usage"); ok {
		stats.UsageNanos = usage
	}

	return stats
}

func (cg *Cgroup) cpuStatsV2() CPUStats {
	var stats CPUStats

	if weight, ok := readUint(cg.Path, "cpu.weight"); ok {
		shares := WeightToShares(weight)
		stats.Shares = &shares
	}

	if content, err := os.ReadFile(filepath.Join(cg.Path, "cpu.max")); err == nil {
		fields := strings.Fields(strings.TrimSpace(string(content)))
		if len(fields) == 2 {
			if fields[0] != "max" {
				if quota, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
					stats.Quota = &quota
				}
			}
			if period, err := strconv.ParseUint(fields[1], 10, 64); err == nil {
				stats.Period = &period
			}
		}
	}

	if usageUs, ok := readKeyed(cg.Path, "cpu.stat")["usage_usec"]; ok {
		stats.UsageNanos = usageUs * 1000
	}

	return stats
}
