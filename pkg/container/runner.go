package container

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/woody-containers/woody/pkg/cgroups"
	"github.com/woody-containers/woody/pkg/namespace"
)

// initBinary is the in-jail bootstrap, expected next to the daemon
// binary.
const initBinary = "woody-init"

// Environment variables carrying the spec across the re-exec boundary
// into woody-init. They are stripped again before the workload execs.
const (
	envRootfs       = "WOODY_ROOTFS"
	envHostname     = "WOODY_HOSTNAME"
	envCgroup       = "WOODY_CGROUP"
	envHostUserland = "WOODY_HOST_USERLAND"
	envPrefix       = "WOODY_"
)

// ExitStatus is the supervised child's terminal wait status: either a
// normal exit code or the signal that terminated it.
type ExitStatus struct {
	Code     int
	Signal   syscall.Signal
	Signaled bool
}

func (s ExitStatus) String() string {
	if s.Signaled {
		return fmt.Sprintf("killed by signal %d (%s)", int(s.Signal), s.Signal)
	}
	return fmt.Sprintf("exited with status %d", s.Code)
}

// Runner supervises one container process: it configures the cgroup
// before the child exists, launches the child into its namespaces,
// registers it with the cgroup, waits for it, and tears the cgroup
// down. One runner owns exactly one child.
type Runner struct {
	spec   Spec
	detach bool

	manager *cgroups.Manager
	cgroup  *cgroups.Cgroup

	cmd     *exec.Cmd
	ptyFile *os.File

	logger *slog.Logger
}

// v1Controllers are the hierarchies a v1 cgroup needs for the limit
// and stat surface the runtime uses. Under v2 the unified hierarchy
// covers everything and the runner creates the group with no
// delegation (enabling subtree control on a group that will itself
// hold the process would trip the no-internal-process rule).
var v1Controllers = []cgroups.Controller{
	cgroups.Cpu, cgroups.CpuAcct, cgroups.Memory, cgroups.Pids, cgroups.Freezer,
}

// NewRunner validates the spec, creates the container's cgroup and
// applies every requested limit. The limits are in force before the
// child exists, so they bind from its very first instruction.
func NewRunner(spec Spec, detach bool, logger *slog.Logger) (*Runner, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	manager := cgroups.NewManager()

	var controllers []cgroups.Controller
	if manager.Version() == cgroups.V1 {
		controllers = v1Controllers
	}

	cg, err := manager.Create(spec.CgroupName(), controllers)
	if err != nil {
		return nil, fmt.Errorf("failed to create cgroup: %w", err)
	}

	if err := cg.SetResourceLimits(spec.Limits); err != nil {
		cg.Delete()
		return nil, fmt.Errorf("failed to apply resource limits: %w", err)
	}

	logger.Debug("configured cgroup",
		"container", spec.ID,
		"cgroup", cg.Name,
		"version", manager.Version(),
	)

	return &Runner{
		spec:    spec,
		detach:  detach,
		manager: manager,
		cgroup:  cg,
		logger:  logger,
	}, nil
}

// Cgroup exposes the container's cgroup handle for stats and freezing.
func (r *Runner) Cgroup() *cgroups.Cgroup {
	return r.cgroup
}

// Start launches the child. The clone that forks it also unshares the
// spec's namespaces, and the parent registers the child's PID with the
// cgroup immediately after. The PID written is the one numbered in the
// parent's namespace, the value valid for a write performed out here.
func (r *Runner) Start() error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	initPath := filepath.Join(filepath.Dir(execPath), initBinary)
	if _, err := os.Stat(initPath); os.IsNotExist(err) {
		return fmt.Errorf("%s binary not found at %s", initBinary, initPath)
	}

	args := append([]string{initPath, r.spec.Command}, r.spec.Args...)
	r.cmd = exec.Command(args[0], args[1:]...)

	hostUserland := "0"
	if r.spec.HostUserland {
		hostUserland = "1"
	}
	r.cmd.Env = append([]string{
		envRootfs + "=" + r.spec.Rootfs,
		envHostname + "=" + r.spec.Hostname,
		envCgroup + "=" + r.spec.CgroupName(),
		envHostUserland + "=" + hostUserland,
	}, r.spec.Env...)

	set := r.spec.Namespaces
	if set == 0 {
		set = namespace.DefaultSet
	}
	namespace.Prepare(r.cmd, set)

	if r.detach {
		r.cmd.Stdin = nil
		r.cmd.Stdout = os.Stdout
		r.cmd.Stderr = os.Stderr
		if err := r.cmd.Start(); err != nil {
			return fmt.Errorf("failed to start container process: %w", err)
		}
	} else {
		// Attached containers get a pty so interactive workloads see a
		// real terminal.
		ptmx, err := pty.Start(r.cmd)
		if err != nil {
			return fmt.Errorf("failed to start container on pty: %w", err)
		}
		r.ptyFile = ptmx
	}

	if err := r.cgroup.AddProcess(r.cmd.Process.Pid); err != nil {
		r.cmd.Process.Kill()
		return fmt.Errorf("failed to attach child to cgroup: %w", err)
	}

	r.logger.Info("container started",
		"container", r.spec.ID,
		"pid", r.cmd.Process.Pid,
		"namespaces", set,
	)
	return nil
}

// Wait blocks until the child exits and decodes its wait status. A
// workload that started correctly and exited non-zero is a successful
// supervision outcome: the status carries the code, the error return
// is reserved for supervision failures.
func (r *Runner) Wait() (ExitStatus, error) {
	if r.cmd == nil || r.cmd.Process == nil {
		return ExitStatus{}, fmt.Errorf("container not started")
	}

	err := r.cmd.Wait()
	if err == nil {
		return ExitStatus{Code: 0}, nil
	}

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return ExitStatus{Code: -1}, fmt.Errorf("wait failed: %w", err)
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return ExitStatus{Code: exitErr.ExitCode()}, nil
	}

	return DecodeWaitStatus(status), nil
}

// DecodeWaitStatus translates a raw wait status into an ExitStatus.
func DecodeWaitStatus(status syscall.WaitStatus) ExitStatus {
	if status.Signaled() {
		return ExitStatus{Code: -1, Signal: status.Signal(), Signaled: true}
	}
	return ExitStatus{Code: status.ExitStatus()}
}

// WaitWithTimeout waits for the child with a deadline, the fallback
// path for children that hang after a Stop.
func (r *Runner) WaitWithTimeout(timeout time.Duration) (ExitStatus, error) {
	if r.cmd == nil || r.cmd.Process == nil {
		return ExitStatus{}, fmt.Errorf("container not started")
	}

	type result struct {
		status ExitStatus
		err    error
	}
	done := make(chan result, 1)
	go func() {
		status, err := r.Wait()
		done <- result{status, err}
	}()

	select {
	case res := <-done:
		return res.status, res.err
	case <-time.After(timeout):
		return ExitStatus{}, fmt.Errorf("timeout waiting for container to exit")
	}
}

// Stop sends SIGTERM to the container process
func (r *Runner) Stop() error {
	if r.cmd == nil || r.cmd.Process == nil {
		return fmt.Errorf("container not started")
	}
	return r.cmd.Process.Signal(syscall.SIGTERM)
}

// Kill sends SIGKILL to the container process
func (r *Runner) Kill() error {
	if r.cmd == nil || r.cmd.Process == nil {
		return fmt.Errorf("container not started")
	}
	return r.cmd.Process.Kill()
}

// PID returns the process ID of the container
func (r *Runner) PID() int {
	if r.cmd == nil || r.cmd.Process == nil {
		return 0
	}
	return r.cmd.Process.Pid
}

// PtyFile returns the master side of the container's pty, nil for
// detached containers.
func (r *Runner) PtyFile() *os.File {
	return r.ptyFile
}

// Cleanup deletes the container's cgroup. Called after the child has
// exited, when membership should be empty; a failure is logged, not
// escalated, since a stale cgroup directory is recoverable by hand.
func (r *Runner) Cleanup() error {
	if r.ptyFile != nil {
		r.ptyFile.Close()
		r.ptyFile = nil
	}

	if err := r.cgroup.Delete(); err != nil {
		r.logger.Warn("failed to delete cgroup",
			"container", r.spec.ID,
			"error", err,
		)
		return err
	}
	return nil
}
