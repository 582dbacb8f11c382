// woody is the CLI for the woody container daemon.
package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/woody-containers/woody/pkg/api"
)

const defaultSocketPath = "/var/run/woody.sock"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runCommand()
	case "ps":
		psCommand()
	case "stop":
		stopCommand()
	case "stats":
		statsCommand()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: woody [command] [args...]")
	fmt.Println("Commands:")
	fmt.Println("  run     Create and run a new container")
	fmt.Println("  ps      List containers")
	fmt.Println("  stop    Stop a running container")
	fmt.Println("  stats   Show resource usage of a running container")
	fmt.Println("\nExamples:")
	fmt.Println("  woody run --rootfs /var/lib/woody/rootfs /bin/sh")
	fmt.Println("  woody run -d --memory 536870912 --rootfs /var/lib/woody/rootfs /bin/sleep 300")
	fmt.Println("  woody ps")
	fmt.Println("  woody stop <container-id>")
	fmt.Println("  woody stats <container-id>")
}

func runCommand() {
	runFlags := pflag.NewFlagSet("run", pflag.ExitOnError)

	socket := runFlags.String("socket", defaultSocketPath, "Path to daemon socket")
	rootfs := runFlags.String("rootfs", "", "Path to the rootfs directory (required)")
	hostname := runFlags.String("hostname", "", "Hostname inside the container")
	env := runFlags.StringArray("env", nil, "Environment variables (KEY=VALUE, repeatable)")
	hostUserland := runFlags.Bool("host-userland", true, "Bind host /bin and library directories into the container")
	memory := runFlags.Uint64("memory", 0, "Memory limit in bytes")
	cpuShares := runFlags.Uint64("cpu-shares", 1024, "CPU shares (relative weight)")
	cpuQuota := runFlags.Int64("cpu-quota", -1, "CPU quota in microseconds (-1 for unlimited)")
	cpuPeriod := runFlags.Uint64("cpu-period", 100000, "CPU period in microseconds")
	pidsLimit := runFlags.Uint32("pids-limit", 0, "Maximum number of processes")
	detach := runFlags.BoolP("detach", "d", false, "Run container in detached mode (background)")

	runFlags.Parse(os.Args[2:])

	remainingArgs := runFlags.Args()
	if len(remainingArgs) < 1 {
		fmt.Println("Error: No command specified")
		fmt.Println("Usage: woody run [flags] <command> [args...]")
		runFlags.PrintDefaults()
		os.Exit(1)
	}

	if *rootfs == "" {
		fmt.Println("Error: --rootfs flag is required")
		os.Exit(1)
	}

	client := api.NewClient(*socket)

	req := api.ContainerCreateRequest{
		Command:      remainingArgs,
		Rootfs:       *rootfs,
		Hostname:     *hostname,
		Env:          *env,
		HostUserland: *hostUserland,
		Memory:       *memory,
		CpuShares:    *cpuShares,
		CpuQuota:     *cpuQuota,
		CpuPeriod:    *cpuPeriod,
		PidsLimit:    *pidsLimit,
		Detach:       *detach,
	}

	if *detach {
		id, err := client.CreateContainer(req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating container: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(id)
		return
	}

	attachContainer(client, req)
}

// attachContainer runs a container attached to the terminal, relaying
// bytes between the local tty and the container's pty until the
// session ends.
func attachContainer(client *api.Client, req api.ContainerCreateRequest) {
	id, conn, err := client.CreateContainerAttached(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating container: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	stdinFd := int(os.Stdin.Fd())
	restore := func() {}
	if term.IsTerminal(stdinFd) {
		oldState, err := term.MakeRaw(stdinFd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error entering raw mode: %v\n", err)
			os.Exit(1)
		}
		restore = func() { term.Restore(stdinFd, oldState) }
	}
	defer restore()

	go io.Copy(conn, os.Stdin)
	io.Copy(os.Stdout, conn)

	restore()
	fmt.Printf("\ncontainer %s session ended\n", id)
}

func psCommand() {
	client := api.NewClient(defaultSocketPath)

	containers, err := client.ListContainers()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing containers: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CONTAINER ID\tROOTFS\tCOMMAND\tSTATUS\tCREATED\tPID")

	for _, c := range containers {
		created := formatTimeSince(time.Unix(c.Created, 0))
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			c.ID, c.Rootfs, c.Command, c.Status, created, c.PID)
	}

	w.Flush()
}

func stopCommand() {
	if len(os.Args) < 3 {
		fmt.Println("Error: Container ID required")
		fmt.Println("Usage: woody stop <container-id>")
		os.Exit(1)
	}

	client := api.NewClient(defaultSocketPath)

	if err := client.StopContainer(os.Args[2]); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping container: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Container %s stopped\n", os.Args[2])
}

func statsCommand() {
	if len(os.Args) < 3 {
		fmt.Println("Error: Container ID required")
		fmt.Println("Usage: woody stats <container-id>")
		os.Exit(1)
	}

	client := api.NewClient(defaultSocketPath)

	stats, err := client.ContainerStats(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading stats: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "MEM USAGE\t%d\n", stats.MemoryUsage)
	fmt.Fprintf(w, "MEM MAX USAGE\t%d\n", stats.MemoryMaxUsage)
	if stats.MemoryLimit != nil {
		fmt.Fprintf(w, "MEM LIMIT\t%d\n", *stats.MemoryLimit)
	} else {
		fmt.Fprintf(w, "MEM LIMIT\tunlimited\n")
	}
	fmt.Fprintf(w, "MEM FAILCNT\t%d\n", stats.MemoryFailCnt)
	fmt.Fprintf(w, "CPU USAGE NS\t%d\n", stats.CpuUsageNs)
	if stats.CpuShares != nil {
		fmt.Fprintf(w, "CPU SHARES\t%d\n", *stats.CpuShares)
	}
	if stats.CpuQuota != nil && stats.CpuPeriod != nil {
		if *stats.CpuQuota < 0 {
			fmt.Fprintf(w, "CPU QUOTA\tunlimited\n")
		} else {
			fmt.Fprintf(w, "CPU QUOTA\t%d/%d us\n", *stats.CpuQuota, *stats.CpuPeriod)
		}
	}
	w.Flush()
}

// formatTimeSince formats the time since a given time in a human-readable format
func formatTimeSince(t time.Time) string {
	duration := time.Since(t)

	seconds := int(duration.Seconds())
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	if days > 0 {
		return fmt.Sprintf("%d days ago", days)
	}
	if hours > 0 {
		return fmt.Sprintf("%d hours ago", hours)
	}
	if minutes > 0 {
		return fmt.Sprintf("%d minutes ago", minutes)
	}
	return fmt.Sprintf("%d seconds ago", seconds)
}
