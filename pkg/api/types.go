package api

// ContainerCreateRequest represents a request to create a new container
type ContainerCreateRequest struct {
	Command      []string `json:"command"`
	Rootfs       string   `json:"rootfs"`
	Hostname     string   `json:"hostname,omitempty"`
	Env          []string `json:"env,omitempty"`
	HostUserland bool     `json:"host_userland"`
	Detach       bool     `json:"detach"`

	Memory    uint64 `json:"memory"`
	CpuShares uint64 `json:"cpu_shares"`
	CpuQuota  int64  `json:"cpu_quota"`
	CpuPeriod uint64 `json:"cpu_period"`
	PidsLimit uint32 `json:"pids_limit"`
}

// ContainerCreateResponse represents the response after creating a container
type ContainerCreateResponse struct {
	ID string `json:"id"`
}

// ContainerInfo represents information about a container
type ContainerInfo struct {
	ID       string `json:"id"`
	Command  string `json:"command"`
	Rootfs   string `json:"rootfs"`
	Status   string `json:"status"`
	Created  int64  `json:"created"`
	PID      int    `json:"pid"`
	ExitCode int    `json:"exit_code"`
}

// ContainerListResponse represents the response for listing containers
type ContainerListResponse struct {
	Containers []ContainerInfo `json:"containers"`
}

// ContainerStopRequest represents a request to stop a container
type ContainerStopRequest struct {
	ID string `json:"id"`
}

// ContainerStopResponse represents the response after stopping a container
type ContainerStopResponse struct {
	Success bool `json:"success"`
}

// ContainerStatsRequest asks for a container's cgroup statistics
type ContainerStatsRequest struct {
	ID string `json:"id"`
}

// ContainerStatsResponse carries a best-effort cgroup snapshot.
// Optional fields are omitted when the kernel did not report them.
type ContainerStatsResponse struct {
	MemoryLimit    *uint64 `json:"memory_limit,omitempty"`
	MemoryUsage    uint64  `json:"memory_usage"`
	MemoryMaxUsage uint64  `json:"memory_max_usage"`
	MemoryFailCnt  uint64  `json:"memory_fail_cnt"`

	CpuShares  *uint64 `json:"cpu_shares,omitempty"`
	CpuQuota   *int64  `json:"cpu_quota,omitempty"`
	CpuPeriod  *uint64 `json:"cpu_period,omitempty"`
	CpuUsageNs uint64  `json:"cpu_usage_ns"`
}
