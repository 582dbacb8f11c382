package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/woody-containers/woody/pkg/config"
	"github.com/woody-containers/woody/pkg/container"
	"github.com/woody-containers/woody/pkg/state"
)

// stateFile is the daemon's container database, under the data dir.
const stateFile = "containers.db"

// Daemon represents the container daemon
type Daemon struct {
	cfg    config.Config
	store  *state.Store
	logger *slog.Logger
	server *http.Server

	mu         sync.RWMutex
	containers map[string]*state.ContainerState
	runners    map[string]*container.Runner
}

// NewDaemon creates a new daemon instance
func NewDaemon(cfg config.Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := state.NewStore(filepath.Join(cfg.DataDir, stateFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create state store: %w", err)
	}

	d := &Daemon{
		cfg:        cfg,
		store:      store,
		logger:     logger,
		containers: make(map[string]*state.ContainerState),
		runners:    make(map[string]*container.Runner),
	}

	if err := d.loadContainers(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load containers: %w", err)
	}

	return d, nil
}

// loadContainers loads all existing containers from the state store.
// A container recorded as running belongs to a previous daemon whose
// child is gone, so it is marked exited on the way in.
func (d *Daemon) loadContainers() error {
	containers, err := d.store.ListContainers(context.Background())
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, c := range containers {
		if c.Status == "running" {
			c.Status = "exited"
			c.PID = 0
			if err := d.store.SaveContainer(context.Background(), c); err != nil {
				d.logger.Warn("failed to reconcile stale container",
					"container", c.ID, "error", err)
			}
		}
		d.containers[c.ID] = c
	}

	d.logger.Info("loaded containers from disk", "count", len(containers))
	return nil
}

// generateContainerID generates a unique container ID
func (d *Daemon) generateContainerID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// getContainer retrieves a container by ID (thread-safe)
func (d *Daemon) getContainer(id string) (*state.ContainerState, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, exists := d.containers[id]
	if !exists {
		return nil, fmt.Errorf("container not found: %s", id)
	}
	return c, nil
}

// addContainer adds a container to the daemon's state (thread-safe)
func (d *Daemon) addContainer(cs *state.ContainerState) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.containers[cs.ID] = cs

	if err := d.store.SaveContainer(context.Background(), cs); err != nil {
		delete(d.containers, cs.ID)
		return fmt.Errorf("failed to save container state: %w", err)
	}
	return nil
}

// updateContainer persists a container's current state (thread-safe)
func (d *Daemon) updateContainer(cs *state.ContainerState) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.containers[cs.ID] = cs

	if err := d.store.SaveContainer(context.Background(), cs); err != nil {
		return fmt.Errorf("failed to save container state: %w", err)
	}
	return nil
}

// removeContainer removes a container from the daemon's state (thread-safe)
func (d *Daemon) removeContainer(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.containers, id)

	if err := d.store.DeleteContainer(context.Background(), id); err != nil {
		return fmt.Errorf("failed to delete container state: %w", err)
	}
	return nil
}

// addRunner records the live runner for a started container
func (d *Daemon) addRunner(id string, r *container.Runner) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runners[id] = r
}

// getRunner retrieves the live runner for a container (thread-safe)
func (d *Daemon) getRunner(id string) (*container.Runner, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, exists := d.runners[id]
	if !exists {
		return nil, fmt.Errorf("no running process for container: %s", id)
	}
	return r, nil
}

// removeRunner drops the runner once its container has exited
func (d *Daemon) removeRunner(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.runners, id)
}

// runningContainerIDs snapshots the IDs with a live runner
func (d *Daemon) runningContainerIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.runners))
	for id := range d.runners {
		ids = append(ids, id)
	}
	return ids
}
