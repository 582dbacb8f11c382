package daemon

import (
	"log/slog"
	"testing"
	"time"

	"github.com/woody-containers/woody/pkg/api"
	"github.com/woody-containers/woody/pkg/config"
	"github.com/woody-containers/woody/pkg/state"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()

	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	d, err := NewDaemon(cfg, slog.Default())
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}
	t.Cleanup(func() { d.store.Close() })
	return d
}

func TestGenerateContainerID(t *testing.T) {
	d := newTestDaemon(t)

	a := d.generateContainerID()
	b := d.generateContainerID()

	if len(a) != 12 {
		t.Errorf("id length = %d, want 12", len(a))
	}
	if a == b {
		t.Errorf("consecutive ids collided: %s", a)
	}
}

func TestContainerBookkeeping(t *testing.T) {
	d := newTestDaemon(t)

	cs := &state.ContainerState{
		ID:      "abc123def456",
		Status:  "created",
		Command: []string{"/bin/sh"},
		Rootfs:  "/tmp/rootfs",
		Created: time.Now(),
	}

	if err := d.addContainer(cs); err != nil {
		t.Fatalf("addContainer: %v", err)
	}

	got, err := d.getContainer(cs.ID)
	if err != nil {
		t.Fatalf("getContainer: %v", err)
	}
	if got.Status != "created" {
		t.Errorf("status = %q, want created", got.Status)
	}

	cs.Status = "exited"
	cs.ExitCode = 7
	if err := d.updateContainer(cs); err != nil {
		t.Fatalf("updateContainer: %v", err)
	}

	list := d.ListContainers()
	if len(list) != 1 {
		t.Fatalf("ListContainers returned %d entries, want 1", len(list))
	}
	if list[0].Status != "exited" || list[0].ExitCode != 7 {
		t.Errorf("listed container = %+v, want exited with code 7", list[0])
	}

	if err := d.removeContainer(cs.ID); err != nil {
		t.Fatalf("removeContainer: %v", err)
	}
	if _, err := d.getContainer(cs.ID); err == nil {
		t.Error("getContainer succeeded after removal")
	}
}

func TestEffectiveLimits(t *testing.T) {
	d := newTestDaemon(t)

	// Empty request keeps the configured defaults.
	defaults := d.cfg.DefaultLimits.ResourceLimits()
	got := d.effectiveLimits(api.ContainerCreateRequest{})
	if got != defaults {
		t.Errorf("empty request limits = %+v, want defaults %+v", got, defaults)
	}

	// Set fields override per field; quota rides with period.
	got = d.effectiveLimits(api.ContainerCreateRequest{
		Memory:    512 << 20,
		CpuQuota:  50000,
		CpuPeriod: 100000,
		PidsLimit: 64,
	})
	if got.MemoryLimit != 512<<20 {
		t.Errorf("memory = %d, want %d", got.MemoryLimit, 512<<20)
	}
	if got.CpuQuota != 50000 || got.CpuPeriod != 100000 {
		t.Errorf("quota/period = %d/%d, want 50000/100000", got.CpuQuota, got.CpuPeriod)
	}
	if got.PidsLimit != 64 {
		t.Errorf("pids = %d, want 64", got.PidsLimit)
	}
	if got.CpuShares != defaults.CpuShares {
		t.Errorf("shares = %d, want default %d", got.CpuShares, defaults.CpuShares)
	}

	// A quota without a period does not displace the defaults.
	got = d.effectiveLimits(api.ContainerCreateRequest{CpuQuota: 25000})
	if got.CpuQuota != defaults.CpuQuota {
		t.Errorf("quota = %d, want default %d", got.CpuQuota, defaults.CpuQuota)
	}
}

func TestReloadMarksStaleRunningExited(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	d, err := NewDaemon(cfg, slog.Default())
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}

	cs := &state.ContainerState{
		ID:      "deadbeef0001",
		PID:     4242,
		Status:  "running",
		Command: []string{"/bin/sleep", "300"},
		Rootfs:  "/tmp/rootfs",
		Created: time.Now(),
	}
	if err := d.addContainer(cs); err != nil {
		t.Fatalf("addContainer: %v", err)
	}
	if err := d.store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	// A fresh daemon over the same data dir finds the orphaned record.
	d2, err := NewDaemon(cfg, slog.Default())
	if err != nil {
		t.Fatalf("NewDaemon reload: %v", err)
	}
	defer d2.store.Close()

	got, err := d2.getContainer(cs.ID)
	if err != nil {
		t.Fatalf("getContainer after reload: %v", err)
	}
	if got.Status != "exited" {
		t.Errorf("reloaded status = %q, want exited", got.Status)
	}
	if got.PID != 0 {
		t.Errorf("reloaded pid = %d, want 0", got.PID)
	}
}
