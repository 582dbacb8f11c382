package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Client represents a client for communicating with the daemon
type Client struct {
	socketPath string
	httpClient *http.Client
}

// NewClient creates a new client that communicates over a Unix socket
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
					return net.Dial("unix", socketPath)
				},
			},
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) postJSON(path string, req, resp any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpResp, err := c.httpClient.Post("http://unix"+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(httpResp.Body)
		return fmt.Errorf("request failed with status %d: %s", httpResp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// CreateContainer creates a new container and returns its ID. The
// request should have Detach set; attached creation goes through
// CreateContainerAttached instead.
func (c *Client) CreateContainer(req ContainerCreateRequest) (string, error) {
	var createResp ContainerCreateResponse
	if err := c.postJSON("/containers/create", req, &createResp); err != nil {
		return "", err
	}
	return createResp.ID, nil
}

// CreateContainerAttached creates a container and keeps the connection
// open for terminal streaming. The returned conn carries the
// container's pty in both directions; the caller owns it and must
// close it.
func (c *Client) CreateContainerAttached(req ContainerCreateRequest) (string, net.Conn, error) {
	req.Detach = false

	body, err := json.Marshal(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return "", nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, "http://unix/containers/create", bytes.NewReader(body))
	if err != nil {
		conn.Close()
		return "", nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if err := httpReq.Write(conn); err != nil {
		conn.Close()
		return "", nil, fmt.Errorf("failed to send request: %w", err)
	}

	reader := bufio.NewReader(conn)
	resp, err := http.ReadResponse(reader, httpReq)
	if err != nil {
		conn.Close()
		return "", nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		conn.Close()
		return "", nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	respBody := make([]byte, resp.ContentLength)
	if _, err := io.ReadFull(resp.Body, respBody); err != nil {
		conn.Close()
		return "", nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var createResp ContainerCreateResponse
	if err := json.Unmarshal(respBody, &createResp); err != nil {
		conn.Close()
		return "", nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// Bytes the reader buffered past the response body belong to the
	// pty stream.
	if n := reader.Buffered(); n > 0 {
		buffered := make([]byte, n)
		reader.Read(buffered)
		return createResp.ID, &bufferedConn{Conn: conn, head: buffered}, nil
	}

	return createResp.ID, conn, nil
}

// bufferedConn replays bytes read ahead of the stream before handing
// reads to the underlying connection.
type bufferedConn struct {
	net.Conn
	head []byte
}

func (b *bufferedConn) Read(p []byte) (int, error) {
	if len(b.head) > 0 {
		n := copy(p, b.head)
		b.head = b.head[n:]
		return n, nil
	}
	return b.Conn.Read(p)
}

// ListContainers returns a list of all containers
func (c *Client) ListContainers() ([]ContainerInfo, error) {
	resp, err := c.httpClient.Get("http://unix/containers/list")
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var listResp ContainerListResponse
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return listResp.Containers, nil
}

// StopContainer stops a container by ID
func (c *Client) StopContainer(id string) error {
	var stopResp ContainerStopResponse
	if err := c.postJSON("/containers/stop", ContainerStopRequest{ID: id}, &stopResp); err != nil {
		return err
	}
	if !stopResp.Success {
		return fmt.Errorf("failed to stop container")
	}
	return nil
}

// ContainerStats returns a running container's cgroup statistics
func (c *Client) ContainerStats(id string) (*ContainerStatsResponse, error) {
	var statsResp ContainerStatsResponse
	if err := c.postJSON("/containers/stats", ContainerStatsRequest{ID: id}, &statsResp); err != nil {
		return nil, err
	}
	return &statsResp, nil
}
