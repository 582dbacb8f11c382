package daemon

import (
	"fmt"
	"strings"
	"time"

	"github.com/woody-containers/woody/pkg/api"
	"github.com/woody-containers/woody/pkg/cgroups"
	"github.com/woody-containers/woody/pkg/container"
	"github.com/woody-containers/woody/pkg/state"
)

// stopGracePeriod is how long a stopped container gets between SIGTERM
// and SIGKILL.
const stopGracePeriod = 5 * time.Second

// CreateContainer creates and starts a new container
func (d *Daemon) CreateContainer(req api.ContainerCreateRequest) (string, *container.Runner, error) {
	if len(req.Command) == 0 {
		return "", nil, fmt.Errorf("no command specified")
	}

	id := d.generateContainerID()

	limits := d.effectiveLimits(req)

	containerState := &state.ContainerState{
		ID:      id,
		PID:     0,
		Status:  "created",
		Command: req.Command,
		Rootfs:  req.Rootfs,
		Created: time.Now(),
		Limits:  limits,
	}

	if err := d.addContainer(containerState); err != nil {
		return "", nil, fmt.Errorf("failed to add container: %w", err)
	}

	d.logger.Info("created container", "container", id)

	runner, err := d.startContainer(containerState, req)
	if err != nil {
		containerState.Status = "exited"
		d.updateContainer(containerState)
		return "", nil, fmt.Errorf("failed to start container: %w", err)
	}

	return id, runner, nil
}

// effectiveLimits merges the request's limits over the configured
// defaults. Fields the request leaves unset keep the daemon's values;
// a quota below zero means unlimited and is only taken from the
// request when the request also sets a period.
func (d *Daemon) effectiveLimits(req api.ContainerCreateRequest) cgroups.ResourceLimits {
	limits := d.cfg.DefaultLimits.ResourceLimits()

	if req.Memory != 0 {
		limits.MemoryLimit = req.Memory
	}
	if req.CpuShares != 0 {
		limits.CpuShares = req.CpuShares
	}
	if req.CpuPeriod != 0 {
		limits.CpuPeriod = req.CpuPeriod
		limits.CpuQuota = req.CpuQuota
	}
	if req.PidsLimit != 0 {
		limits.PidsLimit = req.PidsLimit
	}

	return limits
}

// startContainer launches the container process for a created record
// and begins monitoring it.
func (d *Daemon) startContainer(cs *state.ContainerState, req api.ContainerCreateRequest) (*container.Runner, error) {
	if cs.Status == "running" {
		return nil, fmt.Errorf("container is already running")
	}

	spec := container.NewSpec(cs.ID, cs.Command[0], cs.Command[1:], cs.Rootfs, cs.Limits)
	spec.Env = req.Env
	// The config switch can forbid host userland binds daemon-wide.
	spec.HostUserland = req.HostUserland && d.cfg.HostUserland
	if req.Hostname != "" {
		spec.Hostname = req.Hostname
	}
	ns, err := d.cfg.NamespaceSet()
	if err != nil {
		return nil, err
	}
	spec.Namespaces = ns

	runner, err := container.NewRunner(spec, req.Detach, d.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}

	if err := runner.Start(); err != nil {
		runner.Cleanup()
		return nil, fmt.Errorf("failed to start container process: %w", err)
	}

	cs.PID = runner.PID()
	cs.Status = "running"
	if err := d.updateContainer(cs); err != nil {
		runner.Kill()
		runner.Cleanup()
		return nil, fmt.Errorf("failed to update container state: %w", err)
	}

	d.addRunner(cs.ID, runner)

	d.logger.Info("started container", "container", cs.ID, "pid", runner.PID())

	go d.monitorContainer(cs.ID, runner)

	return runner, nil
}

// monitorContainer monitors a running container and updates state when it exits
func (d *Daemon) monitorContainer(id string, runner *container.Runner) {
	status, err := runner.Wait()
	if err != nil {
		d.logger.Error("container wait failed", "container", id, "error", err)
	} else {
		d.logger.Info("container exited", "container", id, "status", status.String())
	}

	cs, err := d.getContainer(id)
	if err != nil {
		d.logger.Error("exited container has no state", "container", id, "error", err)
		return
	}

	cs.Status = "exited"
	cs.PID = 0
	cs.ExitCode = status.Code
	if err := d.updateContainer(cs); err != nil {
		d.logger.Error("failed to record container exit", "container", id, "error", err)
	}

	if err := runner.Cleanup(); err != nil {
		d.logger.Warn("container cleanup failed", "container", id, "error", err)
	}

	d.removeRunner(id)
}

// StopContainer stops a running container
func (d *Daemon) StopContainer(id string) error {
	cs, err := d.getContainer(id)
	if err != nil {
		return err
	}

	if cs.Status != "running" {
		return fmt.Errorf("container is not running (status: %s)", cs.Status)
	}

	runner, err := d.getRunner(id)
	if err != nil {
		return err
	}

	d.logger.Info("stopping container", "container", id, "pid", runner.PID())
	if err := runner.Stop(); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	if _, err := runner.WaitWithTimeout(stopGracePeriod); err != nil {
		d.logger.Warn("container ignored SIGTERM, killing", "container", id)
		if err := runner.Kill(); err != nil {
			return fmt.Errorf("failed to kill container: %w", err)
		}
	}

	// monitorContainer handles state update and cgroup cleanup.
	return nil
}

// ContainerStats reads the cgroup statistics of a running container
func (d *Daemon) ContainerStats(id string) (*api.ContainerStatsResponse, error) {
	cs, err := d.getContainer(id)
	if err != nil {
		return nil, err
	}
	if cs.Status != "running" {
		return nil, fmt.Errorf("container is not running (status: %s)", cs.Status)
	}

	runner, err := d.getRunner(id)
	if err != nil {
		return nil, err
	}

	cg := runner.Cgroup()
	mem := cg.MemoryStats()
	cpu := cg.CPUStats()

	return &api.ContainerStatsResponse{
		MemoryLimit:    mem.Limit,
		MemoryUsage:    mem.Usage,
		MemoryMaxUsage: mem.MaxUsage,
		MemoryFailCnt:  mem.FailCount,
		CpuShares:      cpu.Shares,
		CpuQuota:       cpu.Quota,
		CpuPeriod:      cpu.Period,
		CpuUsageNs:     cpu.UsageNanos,
	}, nil
}

// ListContainers returns information about all containers
func (d *Daemon) ListContainers() []api.ContainerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	containers := make([]api.ContainerInfo, 0, len(d.containers))
	for _, cs := range d.containers {
		info := api.ContainerInfo{
			ID:       cs.ID,
			Command:  strings.Join(cs.Command, " "),
			Rootfs:   cs.Rootfs,
			Status:   cs.Status,
			Created:  cs.Created.Unix(),
			PID:      cs.PID,
			ExitCode: cs.ExitCode,
		}
		containers = append(containers, info)
	}

	return containers
}

// stopAllContainers stops every running container, used during daemon
// shutdown.
func (d *Daemon) stopAllContainers() {
	for _, id := range d.runningContainerIDs() {
		if err := d.StopContainer(id); err != nil {
			d.logger.Warn("failed to stop container during shutdown",
				"container", id, "error", err)
		}
	}
}
