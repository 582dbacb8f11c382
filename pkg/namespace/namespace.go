// Package namespace describes which kernel namespaces a container is
// launched into. The set is configuration, not a constant: callers can
// narrow it, but every namespace in the set is always created in one
// atomic clone together with the fork, so there is no partially
// isolated intermediate state.
package namespace

import (
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// Set is a bitset of kernel namespaces to unshare.
type Set uint8

const (
	PID Set = 1 << iota
	Mount
	UTS
	IPC
	Net
)

// DefaultSet isolates everything the runtime supports.
const DefaultSet = PID | Mount | UTS | IPC | Net

var names = map[Set]string{
	PID:   "pid",
	Mount: "mount",
	UTS:   "uts",
	IPC:   "ipc",
	Net:   "net",
}

var cloneFlags = map[Set]uintptr{
	PID:   unix.CLONE_NEWPID,
	Mount: unix.CLONE_NEWNS,
	UTS:   unix.CLONE_NEWUTS,
	IPC:   unix.CLONE_NEWIPC,
	Net:   unix.CLONE_NEWNET,
}

// Has reports whether every namespace in other is in s.
func (s Set) Has(other Set) bool {
	return s&other == other
}

// CloneFlags translates the set into clone(2) flags.
func (s Set) CloneFlags() uintptr {
	var flags uintptr
	for ns, flag := range cloneFlags {
		if s.Has(ns) {
			flags |= flag
		}
	}
	return flags
}

func (s Set) String() string {
	var parts []string
	for ns, name := range names {
		if s.Has(ns) {
			parts = append(parts, name)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// Parse builds a Set from namespace names ("pid", "mount", "uts",
// "ipc", "net"). An unknown name is an error.
func Parse(specs []string) (Set, error) {
	byName := make(map[string]Set, len(names))
	for ns, name := range names {
		byName[name] = ns
	}

	var set Set
	for _, spec := range specs {
		ns, ok := byName[strings.TrimSpace(spec)]
		if !ok {
			return 0, fmt.Errorf("unknown namespace %q", spec)
		}
		set |= ns
	}
	return set, nil
}

// Prepare configures cmd so that starting it clones the child directly
// into every namespace in the set. Fork and unshare happen in the same
// clone call, which is what makes the isolation atomic.
func Prepare(cmd *exec.Cmd, set Set) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Cloneflags = set.CloneFlags()
}

// SetHostname names the host inside the current UTS namespace.
func SetHostname(name string) error {
	if err := unix.Sethostname([]byte(name)); err != nil {
		return fmt.Errorf("failed to set hostname: %w", err)
	}
	return nil
}
