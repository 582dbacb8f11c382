package container

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/woody-containers/woody/pkg/cgroups"
	"github.com/woody-containers/woody/pkg/jail"
	"github.com/woody-containers/woody/pkg/namespace"
)

// RunInit is the child half of supervision, invoked by woody-init
// after the clone has already placed it in its namespaces. It builds
// the filesystem jail, names the host, joins the container's cgroup
// and replaces itself with the workload. On success it never returns.
//
// Every failure here is fatal: the caller must exit non-zero rather
// than run anything in a half-constructed environment.
func RunInit(command string, args []string) error {
	rootfs := os.Getenv(envRootfs)
	if rootfs == "" {
		return fmt.Errorf("%s environment variable not set", envRootfs)
	}
	hostname := os.Getenv(envHostname)
	cgroupName := os.Getenv(envCgroup)

	opts := jail.DefaultOptions()
	opts.HostUserland = os.Getenv(envHostUserland) == "1"

	// Probe the cgroup protocol while the host's mount is still
	// visible; after the jail is entered only a freshly mounted
	// hierarchy remains.
	unified := cgroups.NewManager().Version() == cgroups.V2
	opts.MountCgroup2 = unified

	if err := jail.Setup(rootfs, opts); err != nil {
		return fmt.Errorf("failed to set up filesystem jail: %w", err)
	}

	if hostname != "" {
		if err := namespace.SetHostname(hostname); err != nil {
			return err
		}
	}

	// Self-attach before exec so the workload and everything it spawns
	// inherit the limits. The PID written is the renumbered one, which
	// is the value valid for a writer inside the new PID namespace.
	// Under v1 the per-controller hierarchies are not remountable from
	// in here; the parent's attach by parent-namespace PID already
	// covers membership in that case.
	if cgroupName != "" && unified {
		if err := joinCgroup(cgroupName); err != nil {
			return err
		}
	}

	return execWorkload(command, args)
}

func joinCgroup(name string) error {
	manager := cgroups.NewManagerWithRoot(cgroups.DefaultRoot)
	cg, err := manager.Get(name, "")
	if err != nil {
		return fmt.Errorf("failed to locate cgroup from inside jail: %w", err)
	}
	if err := cg.AddSelf(); err != nil {
		return fmt.Errorf("failed to join cgroup: %w", err)
	}
	return nil
}

// execWorkload replaces the process image. The runtime's own control
// variables are scrubbed from the environment first; everything else
// (the spec's declared environment) passes through.
func execWorkload(command string, args []string) error {
	argv := append([]string{command}, args...)

	var env []string
	for _, entry := range os.Environ() {
		if strings.HasPrefix(entry, envPrefix) {
			continue
		}
		env = append(env, entry)
	}

	if err := syscall.Exec(command, argv, env); err != nil {
		return fmt.Errorf("failed to exec %s: %w", command, err)
	}
	return nil
}
