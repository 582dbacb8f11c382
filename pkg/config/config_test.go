package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/woody-containers/woody/pkg/namespace"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "woody.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SocketPath != "/var/run/woody.sock" {
		t.Errorf("SocketPath = %q", cfg.SocketPath)
	}
	if cfg.DefaultLimits.CPUShares != 1024 || cfg.DefaultLimits.CPUQuota != -1 {
		t.Errorf("DefaultLimits = %+v", cfg.DefaultLimits)
	}
	if !cfg.HostUserland {
		t.Error("HostUserland should default to true")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
socket_path: /run/test/woody.sock
data_dir: /srv/woody
namespaces: [pid, mount, uts]
default_limits:
  memory: 134217728
  pids: 64
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SocketPath != "/run/test/woody.sock" {
		t.Errorf("SocketPath = %q", cfg.SocketPath)
	}
	if cfg.DataDir != "/srv/woody" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.DefaultLimits.Memory != 134217728 {
		t.Errorf("Memory = %d", cfg.DefaultLimits.Memory)
	}

	set, err := cfg.NamespaceSet()
	if err != nil {
		t.Fatalf("NamespaceSet: %v", err)
	}
	if set != namespace.PID|namespace.Mount|namespace.UTS {
		t.Errorf("NamespaceSet = %v", set)
	}
}

func TestLoadRejectsUnknownNamespace(t *testing.T) {
	path := writeConfig(t, "namespaces: [pid, cgroup]\n")
	if _, err := Load(path); err == nil {
		t.Error("Load accepted unknown namespace name")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "socket_path: [\n")
	if _, err := Load(path); err == nil {
		t.Error("Load accepted malformed YAML")
	}
}

func TestNamespaceSetDefaultsToAll(t *testing.T) {
	set, err := Default().NamespaceSet()
	if err != nil {
		t.Fatalf("NamespaceSet: %v", err)
	}
	if set != namespace.DefaultSet {
		t.Errorf("NamespaceSet = %v, want DefaultSet", set)
	}
}

func TestLimitsConversion(t *testing.T) {
	limits := Limits{Memory: 1024, CPUShares: 512, CPUQuota: -1, CPUPeriod: 100000, Pids: 5}
	rl := limits.ResourceLimits()
	if rl.MemoryLimit != 1024 || rl.CpuShares != 512 || rl.CpuQuota != -1 || rl.CpuPeriod != 100000 || rl.PidsLimit != 5 {
		t.Errorf("ResourceLimits = %+v", rl)
	}
}
