// Package jail constructs the container's mount namespace: it builds an
// ordered mount plan for a root filesystem directory, executes it, and
// moves the calling process's root into the result. The plan itself is
// pure data so the ordering invariants can be tested without a kernel.
package jail

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Step describes one mount operation. Steps execute strictly in plan
// order; target directories are created just-in-time if absent.
type Step struct {
	Source  string
	Target  string
	FSType  string
	Flags   uintptr
	Options string
}

// Plan is an ordered list of mount steps. A plan aborts on the first
// failing step.
type Plan []Step

// Options controls how the jail is assembled.
type Options struct {
	// HostUserland bind-mounts the host's /bin, /usr/bin, /lib, /lib64,
	// /usr/lib and /usr/lib64 into the jail so dynamically linked
	// binaries resolve their loader and shared libraries without the
	// rootfs shipping a userland of its own.
	HostUserland bool

	// MountCgroup2 mounts the unified cgroup hierarchy at
	// /sys/fs/cgroup inside the jail, so a process that entered the
	// jail can still reach its own membership file.
	MountCgroup2 bool

	// DevSize caps the /dev tmpfs.
	DevSize string

	// ShmSize caps the /dev/shm tmpfs.
	ShmSize string
}

// DefaultOptions returns the options used for a bare rootfs directory.
func DefaultOptions() Options {
	return Options{
		HostUserland: true,
		DevSize:      "65536k",
		ShmSize:      "64m",
	}
}

// hostUserlandDirs are bound read-through when HostUserland is set.
var hostUserlandDirs = []string{"/bin", "/usr/bin", "/lib", "/lib64", "/usr/lib", "/usr/lib64"}

// BuildPlan produces the mount plan for rootfs. The order is load
// bearing:
//
//  1. remount / private-and-recursive, so nothing that follows
//     propagates back to the host mount table
//  2. bind rootfs onto itself, making it a mount point so the root
//     change has something to anchor to
//  3. pseudo-filesystems (proc, sysfs, a tmpfs /dev, /tmp)
//  4. optional host userland binds
//  5. devpts and the POSIX shared-memory tmpfs under /dev
func BuildPlan(rootfs string, opts Options) Plan {
	plan := Plan{
		{Source: "none", Target: "/", Flags: unix.MS_REC | unix.MS_PRIVATE},
		{Source: rootfs, Target: rootfs, Flags: unix.MS_BIND | unix.MS_REC},
		{Source: "proc", Target: filepath.Join(rootfs, "proc"), FSType: "proc"},
		{Source: "sysfs", Target: filepath.Join(rootfs, "sys"), FSType: "sysfs"},
		{Source: "tmpfs", Target: filepath.Join(rootfs, "dev"), FSType: "tmpfs", Options: "mode=0755,size=" + opts.DevSize},
		{Source: "tmpfs", Target: filepath.Join(rootfs, "tmp"), FSType: "tmpfs"},
	}

	if opts.MountCgroup2 {
		plan = append(plan, Step{
			Source: "cgroup2",
			Target: filepath.Join(rootfs, "sys", "fs", "cgroup"),
			FSType: "cgroup2",
		})
	}

	if opts.HostUserland {
		for _, dir := range hostUserlandDirs {
			plan = append(plan, Step{
				Source: dir,
				Target: filepath.Join(rootfs, dir),
				Flags:  unix.MS_BIND,
			})
		}
	}

	plan = append(plan,
		Step{
			Source:  "devpts",
			Target:  filepath.Join(rootfs, "dev", "pts"),
			FSType:  "devpts",
			Flags:   unix.MS_NOEXEC | unix.MS_NOSUID | unix.MS_NODEV,
			Options: "newinstance,ptmxmode=0666,gid=5",
		},
		Step{
			Source:  "tmpfs",
			Target:  filepath.Join(rootfs, "dev", "shm"),
			FSType:  "tmpfs",
			Options: "size=" + opts.ShmSize + ",mode=1777",
		},
	)

	return plan
}

// Execute runs every step in order. The first failure aborts the plan
// and is returned; there is no partial-jail fallback.
func (p Plan) Execute() error {
	for _, step := range p {
		if step.Target != "/" {
			if err := os.MkdirAll(step.Target, 0755); err != nil {
				return fmt.Errorf("failed to create mount target %s: %w", step.Target, err)
			}
		}
		if err := unix.Mount(step.Source, step.Target, step.FSType, step.Flags, step.Options); err != nil {
			return fmt.Errorf("failed to mount %s on %s: %w", step.Source, step.Target, err)
		}
	}
	return nil
}

// Setup transforms rootfs into a self-contained jail and chroots the
// calling process into it. It is the only entry point: the root change
// cannot be reached before the mount plan has fully executed.
//
// Must run inside an unshared mount namespace; Setup assumes the caller
// already took care of that.
func Setup(rootfs string, opts Options) error {
	rootfs, err := filepath.Abs(rootfs)
	if err != nil {
		return fmt.Errorf("failed to resolve rootfs path: %w", err)
	}
	if _, err := os.Stat(rootfs); os.IsNotExist(err) {
		return fmt.Errorf("rootfs directory doesn't exist: %s", rootfs)
	}

	if err := BuildPlan(rootfs, opts).Execute(); err != nil {
		return err
	}

	// /dev is a fresh tmpfs at this point, so the one device node
	// everything expects has to be created by hand.
	devNull := filepath.Join(rootfs, "dev", "null")
	if err := unix.Mknod(devNull, unix.S_IFCHR|0666, int(unix.Mkdev(1, 3))); err != nil && !os.IsExist(err) {
		return fmt.Errorf("failed to create /dev/null: %w", err)
	}

	return enterRoot(rootfs)
}

// enterRoot anchors the new root at the current directory rather than
// an absolute path: after the mounts above, rootfs may not be
// resolvable from inside the root about to be entered.
func enterRoot(rootfs string) error {
	if err := os.Chdir(rootfs); err != nil {
		return fmt.Errorf("failed to enter rootfs: %w", err)
	}
	if err := unix.Chroot("."); err != nil {
		return fmt.Errorf("chroot failed: %w", err)
	}
	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("failed to chdir to new root: %w", err)
	}
	return nil
}
