package cgroups

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultRoot is where the kernel mounts the cgroup filesystem.
const DefaultRoot = "/sys/fs/cgroup"

// Version identifies the on-disk cgroup protocol. It is detected once
// per Manager and never changes afterwards.
type Version int

const (
	// V1 is the legacy hierarchy-per-controller layout.
	V1 Version = iota + 1
	// V2 is the unified hierarchy.
	V2
)

func (v Version) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	}
	return "unknown"
}

// Controller represents a cgroup controller/subsystem
type Controller string

// Available cgroup controllers
const (
	Cpu     Controller = "cpu"
	CpuAcct Controller = "cpuacct"
	Memory  Controller = "memory"
	CpuSet  Controller = "cpuset"
	Pids    Controller = "pids"
	BlkIO   Controller = "blkio"
	Devices Controller = "devices"
	Freezer Controller = "freezer"
	NetCls  Controller = "net_cls"
)

// Sentinel errors returned by Manager and Cgroup operations. Callers
// match them with errors.Is.
var (
	// ErrInvalidConfiguration is returned when a request cannot be
	// expressed under the detected protocol, e.g. creating a v1 cgroup
	// with an empty controller list.
	ErrInvalidConfiguration = errors.New("cgroups: invalid configuration")

	// ErrControllerRequired is returned by operations that need an
	// explicit controller under v1 but were called without one.
	ErrControllerRequired = errors.New("cgroups: controller required under cgroups v1")

	// ErrNotFound is returned when the named cgroup does not exist.
	ErrNotFound = errors.New("cgroups: cgroup not found")

	// ErrResourceBusy is returned by Delete when the cgroup still has
	// member processes. The directory is left intact.
	ErrResourceBusy = errors.New("cgroups: cgroup has active processes")
)

// Manager resolves named cgroups against a cgroup filesystem root. The
// protocol version is probed once at construction; the filesystem
// itself is shared OS state and is always read through, never cached.
type Manager struct {
	root    string
	version Version
}

// NewManager creates a manager rooted at the well-known cgroup mount.
func NewManager() *Manager {
	return NewManagerWithRoot(DefaultRoot)
}

// NewManagerWithRoot creates a manager against an explicit root. Tests
// use this with a scratch directory laid out like a cgroup mount.
func NewManagerWithRoot(root string) *Manager {
	return &Manager{
		root:    root,
		version: detectVersion(root),
	}
}

// detectVersion probes for the unified-hierarchy marker file. V2 iff
// cgroup.controllers exists directly under the mount root.
func detectVersion(root string) Version {
	if _, err := os.Stat(filepath.Join(root, "cgroup.controllers")); err == nil {
		return V2
	}
	return V1
}

// Version reports the detected cgroup protocol.
func (m *Manager) Version() Version {
	return m.version
}

// Root returns the cgroup filesystem root this manager resolves against.
func (m *Manager) Root() string {
	return m.root
}

// Cgroup is a handle to a named, created cgroup. The version and the
// controller list are carried immutably so every operation dispatches
// without re-probing the filesystem.
type Cgroup struct {
	Name        string
	Path        string
	Controllers []Controller

	root    string
	version Version
}

// Create creates the named cgroup.
//
// Under v1 a subdirectory is created per requested controller in that
// controller's own hierarchy; the handle is anchored at the first
// controller's path, and an empty controller list is an error. Under v2
// a single directory is created under the unified root and, when the
// controller list is non-empty, a "+controller" token list is written
// to cgroup.subtree_control to delegate them to descendants; an empty
// list is legal.
func (m *Manager) Create(name string, controllers []Controller) (*Cgroup, error) {
	switch m.version {
	case V2:
		return m.createV2(name, controllers)
	default:
		return m.createV1(name, controllers)
	}
}

func (m *Manager) createV1(name string, controllers []Controller) (*Cgroup, error) {
	if len(controllers) == 0 {
		return nil, fmt.Errorf("%w: at least one controller required for v1", ErrInvalidConfiguration)
	}

	for _, ctrl := range controllers {
		path := filepath.Join(m.root, string(ctrl), name)
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cgroup %s: %w", path, err)
		}
	}

	return &Cgroup{
		Name:        name,
		Path:        filepath.Join(m.root, string(controllers[0]), name),
		Controllers: controllers,
		root:        m.root,
		version:     V1,
	}, nil
}

func (m *Manager) createV2(name string, controllers []Controller) (*Cgroup, error) {
	path := filepath.Join(m.root, name)
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cgroup %s: %w", path, err)
	}

	if len(controllers) > 0 {
		tokens := make([]string, 0, len(controllers))
		for _, ctrl := range controllers {
			tokens = append(tokens, "+"+string(ctrl))
		}
		enablePath := filepath.Join(path, "cgroup.subtree_control")
		if err := os.WriteFile(enablePath, []byte(strings.Join(tokens, " ")), 0644); err != nil {
			return nil, fmt.Errorf("failed to enable controllers for %s: %w", name, err)
		}
	}

	return &Cgroup{
		Name:        name,
		Path:        path,
		Controllers: controllers,
		root:        m.root,
		version:     V2,
	}, nil
}

// Get locates an existing cgroup. The controller argument selects
// which hierarchy to anchor the handle at and is required under v1;
// it is ignored under v2, so pass "" there.
func (m *Manager) Get(name string, controller Controller) (*Cgroup, error) {
	var path string
	var controllers []Controller

	switch m.version {
	case V2:
		path = filepath.Join(m.root, name)
	default:
		if controller == "" {
			return nil, ErrControllerRequired
		}
		path = filepath.Join(m.root, string(controller), name)
		controllers = []Controller{controller}
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return &Cgroup{
		Name:        name,
		Path:        path,
		Controllers: controllers,
		root:        m.root,
		version:     m.version,
	}, nil
}

// List enumerates cgroup names under the relevant hierarchy root,
// recursively, as slash-joined relative names. The result is
// materialized eagerly; it is a snapshot, not a live view. The
// controller argument is required under v1 and ignored under v2.
func (m *Manager) List(controller Controller) ([]string, error) {
	var searchPath string
	switch m.version {
	case V2:
		searchPath = m.root
	default:
		if controller == "" {
			return nil, ErrControllerRequired
		}
		searchPath = filepath.Join(m.root, string(controller))
	}

	var names []string
	if err := collectCgroups(searchPath, "", &names); err != nil {
		return nil, err
	}
	return names, nil
}

func collectCgroups(path, prefix string, names *[]string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if prefix != "" {
			name = prefix + "/" + name
		}
		*names = append(*names, name)
		if err := collectCgroups(filepath.Join(path, entry.Name()), name, names); err != nil {
			return err
		}
	}

	return nil
}

// controllerPath resolves the directory holding a given controller's
// files for this cgroup: per-controller hierarchy under v1, the single
// unified directory under v2.
func (cg *Cgroup) controllerPath(controller Controller) string {
	if cg.version == V1 {
		return filepath.Join(cg.root, string(controller), cg.Name)
	}
	return cg.Path
}

// AddProcess writes the decimal PID into the cgroup's membership file,
// moving that process (and its threads) into the group's accounting
// domain. Under v1 the PID is registered with every controller
// hierarchy the handle was created with. Writing the same PID twice is
// a no-op for the kernel, so the call is idempotent.
func (cg *Cgroup) AddProcess(pid int) error {
	value := []byte(strconv.Itoa(pid))

	if cg.version == V2 {
		procsFile := filepath.Join(cg.Path, "cgroup.procs")
		if err := os.WriteFile(procsFile, value, 0644); err != nil {
			return fmt.Errorf("failed to add pid %d to %s: %w", pid, cg.Name, err)
		}
		return nil
	}

	for _, ctrl := range cg.Controllers {
		procsFile := filepath.Join(cg.controllerPath(ctrl), "cgroup.procs")
		if err := os.WriteFile(procsFile, value, 0644); err != nil {
			return fmt.Errorf("failed to add pid %d to %s/%s: %w", pid, ctrl, cg.Name, err)
		}
	}

	return nil
}

// AddSelf registers the calling process. Inside a fresh PID namespace
// the value written is the renumbered PID, which is what the kernel
// expects from a writer in that namespace.
func (cg *Cgroup) AddSelf() error {
	return cg.AddProcess(os.Getpid())
}

// Processes reads back the membership file. Unparsable lines are
// skipped.
func (cg *Cgroup) Processes() ([]int, error) {
	content, err := os.ReadFile(filepath.Join(cg.Path, "cgroup.procs"))
	if err != nil {
		return nil, fmt.Errorf("failed to read cgroup.procs for %s: %w", cg.Name, err)
	}

	var pids []int
	for _, line := range strings.Split(string(content), "\n") {
		if pid, err := strconv.Atoi(strings.TrimSpace(line)); err == nil {
			pids = append(pids, pid)
		}
	}

	return pids, nil
}

// Freeze suspends every process in the cgroup: v1 writes FROZEN to the
// freezer state file, v2 writes 1 to the unified freeze file.
func (cg *Cgroup) Freeze() error {
	return cg.writeFreezeState("FROZEN", "1")
}

// Thaw resumes a frozen cgroup.
func (cg *Cgroup) Thaw() error {
	return cg.writeFreezeState("THAWED", "0")
}

func (cg *Cgroup) writeFreezeState(v1Token, v2Token string) error {
	var file, token string
	if cg.version == V1 {
		file = filepath.Join(cg.controllerPath(Freezer), "freezer.state")
		token = v1Token
	} else {
		file = filepath.Join(cg.Path, "cgroup.freeze")
		token = v2Token
	}

	if err := os.WriteFile(file, []byte(token), 0644); err != nil {
		return fmt.Errorf("failed to write freeze state for %s: %w", cg.Name, err)
	}
	return nil
}

// Delete removes the cgroup's backing directories. A cgroup with
// member processes cannot be deleted: the call fails with
// ErrResourceBusy and the directories are left intact. Under v1 every
// controller subdirectory that exists is removed; under v2 the single
// unified directory is.
func (cg *Cgroup) Delete() error {
	pids, err := cg.Processes()
	if err != nil {
		return err
	}
	if len(pids) > 0 {
		return fmt.Errorf("%w: %s has %d member(s)", ErrResourceBusy, cg.Name, len(pids))
	}

	if cg.version == V2 {
		if err := os.RemoveAll(cg.Path); err != nil {
			return fmt.Errorf("failed to remove cgroup %s: %w", cg.Name, err)
		}
		return nil
	}

	for _, ctrl := range cg.Controllers {
		path := cg.controllerPath(ctrl)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove cgroup %s/%s: %w", ctrl, cg.Name, err)
		}
	}

	return nil
}
