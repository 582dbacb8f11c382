// woodyd is the container daemon. It listens on a Unix socket for
// requests from the woody CLI and supervises container processes.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/woody-containers/woody/pkg/config"
	"github.com/woody-containers/woody/pkg/daemon"
)

func main() {
	configPath := pflag.String("config", "/etc/woody/woodyd.yaml", "Path to config file")
	socketPath := pflag.String("socket", "", "Unix socket path (overrides config)")
	dataDir := pflag.String("data-dir", "", "Data directory (overrides config)")
	debug := pflag.Bool("debug", false, "Enable debug logging")
	pflag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if os.Getuid() != 0 {
		fmt.Fprintln(os.Stderr, "Error: woodyd must be run as root")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *socketPath != "" {
		cfg.SocketPath = *socketPath
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	d, err := daemon.NewDaemon(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create daemon: %v\n", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := d.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		logger.Info("received signal", "signal", sig.String())
		if err := d.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error stopping daemon: %v\n", err)
			os.Exit(1)
		}
	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Daemon error: %v\n", err)
		os.Exit(1)
	}

	logger.Info("daemon stopped")
}
