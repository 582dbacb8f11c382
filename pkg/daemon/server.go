package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/woody-containers/woody/pkg/api"
)

// Start starts the daemon HTTP server on the configured Unix socket.
// It blocks until Stop is called or the listener fails.
func (d *Daemon) Start() error {
	socketPath := d.cfg.SocketPath

	// Remove old socket if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("failed to remove old socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to create Unix socket: %w", err)
	}

	if err := os.Chmod(socketPath, 0666); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/containers/create", d.handleContainerCreate)
	mux.HandleFunc("/containers/list", d.handleContainerList)
	mux.HandleFunc("/containers/stop", d.handleContainerStop)
	mux.HandleFunc("/containers/stats", d.handleContainerStats)

	d.server = &http.Server{Handler: mux}

	d.logger.Info("daemon listening", "socket", socketPath)

	if err := d.server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the daemon
func (d *Daemon) Stop() error {
	d.logger.Info("shutting down daemon")

	d.stopAllContainers()

	var err error
	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = d.server.Shutdown(ctx)
	}

	if cerr := d.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// handleContainerCreate handles container creation requests
func (d *Daemon) handleContainerCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.ContainerCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	id, runner, err := d.CreateContainer(req)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to create container: %v", err), http.StatusInternalServerError)
		return
	}

	// If detached, just return the container ID
	if req.Detach {
		resp := api.ContainerCreateResponse{ID: id}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
		return
	}

	// For attached mode, hijack the connection and stream pty I/O
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "Hijacking not supported", http.StatusInternalServerError)
		return
	}

	conn, bufrw, err := hijacker.Hijack()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to hijack connection: %v", err), http.StatusInternalServerError)
		return
	}
	defer conn.Close()

	// Send container ID first as a JSON response
	resp := api.ContainerCreateResponse{ID: id}
	respBytes, _ := json.Marshal(resp)
	fmt.Fprintf(bufrw, "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: %d\r\n\r\n%s", len(respBytes), string(respBytes))
	bufrw.Flush()

	ptmx := runner.PtyFile()
	if ptmx == nil {
		d.logger.Error("attached container has no pty", "container", id)
		return
	}

	// Copy data bidirectionally between connection and pty
	done := make(chan struct{}, 2)

	go func() {
		io.Copy(ptmx, conn)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(conn, ptmx)
		done <- struct{}{}
	}()

	// Either direction closing ends the session; monitorContainer owns
	// the exit bookkeeping.
	<-done
}

// handleContainerList handles container listing requests
func (d *Daemon) handleContainerList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := api.ContainerListResponse{Containers: d.ListContainers()}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleContainerStop handles container stop requests
func (d *Daemon) handleContainerStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.ContainerStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	if err := d.StopContainer(req.ID); err != nil {
		http.Error(w, fmt.Sprintf("Failed to stop container: %v", err), http.StatusInternalServerError)
		return
	}

	resp := api.ContainerStopResponse{Success: true}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleContainerStats handles container statistics requests
func (d *Daemon) handleContainerStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.ContainerStatsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	stats, err := d.ContainerStats(req.ID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read stats: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
