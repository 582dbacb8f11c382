// Package config loads the daemon's configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/woody-containers/woody/pkg/cgroups"
	"github.com/woody-containers/woody/pkg/namespace"
)

// Limits mirrors cgroups.ResourceLimits with YAML field names.
type Limits struct {
	Memory    uint64 `yaml:"memory"`
	CPUShares uint64 `yaml:"cpu_shares"`
	CPUQuota  int64  `yaml:"cpu_quota"`
	CPUPeriod uint64 `yaml:"cpu_period"`
	Pids      uint32 `yaml:"pids"`
}

// ResourceLimits converts to the cgroup layer's representation.
func (l Limits) ResourceLimits() cgroups.ResourceLimits {
	return cgroups.ResourceLimits{
		MemoryLimit: l.Memory,
		CpuShares:   l.CPUShares,
		CpuQuota:    l.CPUQuota,
		CpuPeriod:   l.CPUPeriod,
		PidsLimit:   l.Pids,
	}
}

// Config is the daemon configuration. Flags override file values,
// file values override defaults.
type Config struct {
	SocketPath string `yaml:"socket_path"`
	DataDir    string `yaml:"data_dir"`

	// Namespaces lists which kernel namespaces containers are launched
	// into. Empty means all supported ones.
	Namespaces []string `yaml:"namespaces"`

	// HostUserland binds the host's binaries and libraries into jails
	// whose rootfs has no userland of its own.
	HostUserland bool `yaml:"host_userland"`

	// DefaultLimits apply when a launch request sets none.
	DefaultLimits Limits `yaml:"default_limits"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		SocketPath:   "/var/run/woody.sock",
		DataDir:      "/var/lib/woody",
		HostUserland: true,
		DefaultLimits: Limits{
			CPUShares: 1024,
			CPUQuota:  -1,
			CPUPeriod: 100000,
		},
	}
}

// Load reads the configuration at path over the defaults. A missing
// file is not an error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if _, err := cfg.NamespaceSet(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// NamespaceSet resolves the configured namespace names.
func (c Config) NamespaceSet() (namespace.Set, error) {
	if len(c.Namespaces) == 0 {
		return namespace.DefaultSet, nil
	}
	return namespace.Parse(c.Namespaces)
}
