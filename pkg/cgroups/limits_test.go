package cgroups

import (
	"os"
	"path/filepath"
	"testing"
)

func readControl(t *testing.T, dir, file string) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		t.Fatalf("reading %s: %v", file, err)
	}
	return string(content)
}

func TestSharesWeightConversion(t *testing.T) {
	tests := []struct {
		shares uint64
		weight uint64
	}{
		{1024, 100}, // the two protocols' default units
		{512, 50},
		{256, 25},
		{2048, 200},
		{100, 9}, // floors, does not round
		{1, 0},
	}

	for _, tt := range tests {
		if got := SharesToWeight(tt.shares); got != tt.weight {
			t.Errorf("SharesToWeight(%d) = %d, want %d", tt.shares, got, tt.weight)
		}
	}
}

func TestConversionTruncatesFloorBothWays(t *testing.T) {
	// The round trip is lossy by integer truncation and both directions
	// floor. That behavior is load-bearing for hierarchies written by
	// older tools, so the exact values are pinned here.
	if got := WeightToShares(SharesToWeight(1000)); got != 993 {
		t.Errorf("1000 shares round-tripped to %d, want 993", got)
	}
	if got := SharesToWeight(WeightToShares(99)); got != 98 {
		t.Errorf("99 weight round-tripped to %d, want 98", got)
	}
	// Exact at the default units.
	if got := WeightToShares(SharesToWeight(1024)); got != 1024 {
		t.Errorf("1024 shares round-tripped to %d", got)
	}
}

func TestSetMemoryLimit(t *testing.T) {
	t.Run("v1", func(t *testing.T) {
		m := NewManagerWithRoot(v1Root(t))
		cg := mustCreate(t, m, "box", []Controller{Memory})
		if err := cg.SetMemoryLimit(52428800); err != nil {
			t.Fatalf("SetMemoryLimit: %v", err)
		}
		if got := readControl(t, cg.Path, "memory.limit_in_bytes"); got != "52428800" {
			t.Errorf("memory.limit_in_bytes = %q", got)
		}
	})

	t.Run("v2", func(t *testing.T) {
		m := NewManagerWithRoot(v2Root(t))
		cg := mustCreate(t, m, "box", nil)
		if err := cg.SetMemoryLimit(52428800); err != nil {
			t.Fatalf("SetMemoryLimit: %v", err)
		}
		if got := readControl(t, cg.Path, "memory.max"); got != "52428800" {
			t.Errorf("memory.max = %q", got)
		}
	})
}

func TestSetPIDLimit(t *testing.T) {
	m := NewManagerWithRoot(v1Root(t))
	cg := mustCreate(t, m, "box", []Controller{Pids})
	if err := cg.SetPIDLimit(64); err != nil {
		t.Fatalf("SetPIDLimit: %v", err)
	}
	if got := readControl(t, filepath.Join(m.Root(), "pids", "box"), "pids.max"); got != "64" {
		t.Errorf("pids.max = %q", got)
	}
}

func TestSetCPUShares(t *testing.T) {
	t.Run("v1 writes raw shares", func(t *testing.T) {
		m := NewManagerWithRoot(v1Root(t))
		cg := mustCreate(t, m, "box", []Controller{Cpu})
		if err := cg.SetCPUShares(512); err != nil {
			t.Fatalf("SetCPUShares: %v", err)
		}
		if got := readControl(t, cg.Path, "cpu.shares"); got != "512" {
			t.Errorf("cpu.shares = %q", got)
		}
	})

	t.Run("v2 converts to weight", func(t *testing.T) {
		m := NewManagerWithRoot(v2Root(t))
		cg := mustCreate(t, m, "box", nil)
		if err := cg.SetCPUShares(512); err != nil {
			t.Fatalf("SetCPUShares: %v", err)
		}
		if got := readControl(t, cg.Path, "cpu.weight"); got != "50" {
			t.Errorf("cpu.weight = %q, want 50", got)
		}
	})
}

func TestSetCPUQuota(t *testing.T) {
	t.Run("v1 two files", func(t *testing.T) {
		m := NewManagerWithRoot(v1Root(t))
		cg := mustCreate(t, m, "box", []Controller{Cpu})
		if err := cg.SetCPUQuota(50000, 100000); err != nil {
			t.Fatalf("SetCPUQuota: %v", err)
		}
		if got := readControl(t, cg.Path, "cpu.cfs_quota_us"); got != "50000" {
			t.Errorf("cpu.cfs_quota_us = %q", got)
		}
		if got := readControl(t, cg.Path, "cpu.cfs_period_us"); got != "100000" {
			t.Errorf("cpu.cfs_period_us = %q", got)
		}
	})

	t.Run("v1 negative written as-is", func(t *testing.T) {
		m := NewManagerWithRoot(v1Root(t))
		cg := mustCreate(t, m, "box", []Controller{Cpu})
		if err := cg.SetCPUQuota(-1, 100000); err != nil {
			t.Fatalf("SetCPUQuota: %v", err)
		}
		if got := readControl(t, cg.Path, "cpu.cfs_quota_us"); got != "-1" {
			t.Errorf("cpu.cfs_quota_us = %q, want -1", got)
		}
	})

	t.Run("v2 quota and period", func(t *testing.T) {
		m := NewManagerWithRoot(v2Root(t))
		cg := mustCreate(t, m, "box", nil)
		if err := cg.SetCPUQuota(50000, 100000); err != nil {
			t.Fatalf("SetCPUQuota: %v", err)
		}
		if got := readControl(t, cg.Path, "cpu.max"); got != "50000 100000" {
			t.Errorf("cpu.max = %q", got)
		}
	})

	t.Run("v2 negative means max", func(t *testing.T) {
		m := NewManagerWithRoot(v2Root(t))
		cg := mustCreate(t, m, "box", nil)
		if err := cg.SetCPUQuota(-1, 100000); err != nil {
			t.Fatalf("SetCPUQuota: %v", err)
		}
		if got := readControl(t, cg.Path, "cpu.max"); got != "max" {
			t.Errorf("cpu.max = %q, want max", got)
		}
	})
}

func TestSetResourceLimits(t *testing.T) {
	m := NewManagerWithRoot(v2Root(t))
	cg := mustCreate(t, m, "box", nil)

	limits := ResourceLimits{
		CpuShares:   1024,
		CpuQuota:    25000,
		CpuPeriod:   100000,
		MemoryLimit: 50000000,
		PidsLimit:   10,
	}
	if err := cg.SetResourceLimits(limits); err != nil {
		t.Fatalf("SetResourceLimits: %v", err)
	}

	if got := readControl(t, cg.Path, "cpu.weight"); got != "100" {
		t.Errorf("cpu.weight = %q", got)
	}
	if got := readControl(t, cg.Path, "cpu.max"); got != "25000 100000" {
		t.Errorf("cpu.max = %q", got)
	}
	if got := readControl(t, cg.Path, "memory.max"); got != "50000000" {
		t.Errorf("memory.max = %q", got)
	}
	if got := readControl(t, cg.Path, "pids.max"); got != "10" {
		t.Errorf("pids.max = %q", got)
	}
}

func TestSetResourceLimitsSkipsUnset(t *testing.T) {
	m := NewManagerWithRoot(v2Root(t))
	cg := mustCreate(t, m, "box", nil)

	// Zero memory/pids and a negative quota mean "not requested".
	if err := cg.SetResourceLimits(ResourceLimits{CpuQuota: -1}); err != nil {
		t.Fatalf("SetResourceLimits: %v", err)
	}
	for _, file := range []string{"memory.max", "pids.max", "cpu.max", "cpu.weight"} {
		if _, err := os.Stat(filepath.Join(cg.Path, file)); !os.IsNotExist(err) {
			t.Errorf("%s written for unset limit", file)
		}
	}
}
