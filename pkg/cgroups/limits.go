package cgroups

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ResourceLimits defines resource constraints for a container
type ResourceLimits struct {
	// CPU limits
	CpuShares uint64 // CPU shares (relative weight)
	CpuQuota  int64  // CPU quota in microseconds (-1 for no limit)
	CpuPeriod uint64 // CPU period in microseconds

	// Memory limits
	MemoryLimit uint64 // Memory limit in bytes

	// Process limits
	PidsLimit uint32 // Maximum number of processes
}

// DefaultResourceLimits returns default resource limits
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		CpuShares:   1024,   // Default CPU shares
		CpuQuota:    -1,     // No quota by default
		CpuPeriod:   100000, // 100ms default period
		MemoryLimit: 0,      // No memory limit by default
		PidsLimit:   0,      // No process limit by default
	}
}

// SharesToWeight converts v1 CPU shares (default unit 1024) to v2
// weight (default unit 100). Integer division floors; WeightToShares
// does not invert it exactly and the truncation is kept for
// compatibility with existing hierarchies.
func SharesToWeight(shares uint64) uint64 {
	return shares * 100 / 1024
}

// WeightToShares converts v2 CPU weight back to v1 shares, flooring
// the same direction as SharesToWeight.
func WeightToShares(weight uint64) uint64 {
	return weight * 1024 / 100
}

// writeControl writes a single control file. Control files legitimately
// reject writes (insufficient privilege, controller not delegated), so
// a failure is fatal to the operation and never retried.
func writeControl(dir, file, value string) error {
	path := filepath.Join(dir, file)
	if err := os.WriteFile(path, []byte(value), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// SetMemoryLimit caps the cgroup's memory in bytes.
func (cg *Cgroup) SetMemoryLimit(bytes uint64) error {
	value := strconv.FormatUint(bytes, 10)
	if cg.version == V1 {
		return writeControl(cg.controllerPath(Memory), "memory.limit_in_bytes", value)
	}
	return writeControl(cg.Path, "memory.max", value)
}

// SetPIDLimit caps the number of processes the cgroup may contain.
func (cg *Cgroup) SetPIDLimit(n uint32) error {
	value := strconv.FormatUint(uint64(n), 10)
	if cg.version == V1 {
		return writeControl(cg.controllerPath(Pids), "pids.max", value)
	}
	return writeControl(cg.Path, "pids.max", value)
}

// SetCPUShares sets the cgroup's relative CPU weight, expressed in v1
// share units. Under v2 the value is converted to weight units before
// the write.
func (cg *Cgroup) SetCPUShares(shares uint64) error {
	if cg.version == V1 {
		return writeControl(cg.controllerPath(Cpu), "cpu.shares", strconv.FormatUint(shares, 10))
	}
	return writeControl(cg.Path, "cpu.weight", strconv.FormatUint(SharesToWeight(shares), 10))
}

// SetCPUQuota sets the CFS bandwidth limit: quotaUs microseconds of CPU
// per periodUs microseconds of wall clock. A negative quota means no
// limit: written as-is under v1, written as the literal "max" under v2.
func (cg *Cgroup) SetCPUQuota(quotaUs int64, periodUs uint64) error {
	if cg.version == V1 {
		cpuPath := cg.controllerPath(Cpu)
		if err := writeControl(cpuPath, "cpu.cfs_quota_us", strconv.FormatInt(quotaUs, 10)); err != nil {
			return err
		}
		return writeControl(cpuPath, "cpu.cfs_period_us", strconv.FormatUint(periodUs, 10))
	}

	value := "max"
	if quotaUs >= 0 {
		value = fmt.Sprintf("%d %d", quotaUs, periodUs)
	}
	return writeControl(cg.Path, "cpu.max", value)
}

// SetResourceLimits applies every limit set in limits. Zero values mean
// "not requested" and are skipped, except CpuQuota where any
// non-negative value is a real cap.
func (cg *Cgroup) SetResourceLimits(limits ResourceLimits) error {
	if limits.CpuShares > 0 {
		if err := cg.SetCPUShares(limits.CpuShares); err != nil {
			return err
		}
	}

	if limits.CpuQuota >= 0 && limits.CpuPeriod > 0 {
		if err := cg.SetCPUQuota(limits.CpuQuota, limits.CpuPeriod); err != nil {
			return err
		}
	}

	if limits.MemoryLimit > 0 {
		if err := cg.SetMemoryLimit(limits.MemoryLimit); err != nil {
			return err
		}
	}

	if limits.PidsLimit > 0 {
		if err := cg.SetPIDLimit(limits.PidsLimit); err != nil {
			return err
		}
	}

	return nil
}
