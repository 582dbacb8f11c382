package container

import (
	"fmt"
	"os"

	"github.com/woody-containers/woody/pkg/cgroups"
	"github.com/woody-containers/woody/pkg/namespace"
)

// Spec is one launch request. It is created by the caller before
// supervision starts, read by the runner and the in-jail init, and
// never mutated.
type Spec struct {
	ID       string
	Command  string
	Args     []string
	Rootfs   string
	Hostname string
	Env      []string

	// Namespaces to unshare at fork time. Zero means DefaultSet.
	Namespaces namespace.Set

	// HostUserland binds the host's /bin and library directories into
	// the jail. Set it when the rootfs ships no userland of its own.
	HostUserland bool

	Limits cgroups.ResourceLimits
}

// NewSpec builds a spec with the runtime defaults filled in.
func NewSpec(id, command string, args []string, rootfs string, limits cgroups.ResourceLimits) Spec {
	return Spec{
		ID:         id,
		Command:    command,
		Args:       args,
		Rootfs:     rootfs,
		Hostname:   "woody-" + id,
		Namespaces: namespace.DefaultSet,
		Limits:     limits,
	}
}

// Validate checks the spec before any kernel state is touched.
func (s *Spec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("container id cannot be empty")
	}
	if s.Command == "" {
		return fmt.Errorf("command cannot be empty")
	}
	if s.Rootfs == "" {
		return fmt.Errorf("rootfs cannot be empty")
	}
	if _, err := os.Stat(s.Rootfs); os.IsNotExist(err) {
		return fmt.Errorf("rootfs directory doesn't exist: %s", s.Rootfs)
	}
	return nil
}

// Argv is the full argument vector for the exec, with argument 0
// implied from the command path.
func (s *Spec) Argv() []string {
	return append([]string{s.Command}, s.Args...)
}

// CgroupName is the spec's cgroup, namespaced under the runtime's
// prefix so unrelated hierarchies are never touched.
func (s *Spec) CgroupName() string {
	return "woody-" + s.ID
}
