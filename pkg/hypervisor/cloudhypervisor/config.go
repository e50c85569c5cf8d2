package cloudhypervisor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

const apiRequestTimeout = 5 * time.Second

// apiClient talks to cloud-hypervisor's HTTP-over-AF_UNIX control API.
type apiClient struct {
	httpClient *http.Client
}

func newAPIClient(socketPath string) *apiClient {
	return &apiClient{
		httpClient: &http.Client{
			Timeout: apiRequestTimeout,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

// Ping probes the API socket. Crash recovery uses this to decide whether an
// adopted PID is actually serving the expected hypervisor API.
func (c *apiClient) Ping(ctx context.Context) error {
	return c.put(ctx, "vmm.ping")
}

// Shutdown requests a graceful guest shutdown (ACPI power button).
func (c *apiClient) Shutdown(ctx context.Context) error {
	return c.put(ctx, "vm.power-button")
}

func (c *apiClient) put(ctx context.Context, endpoint string) error {
	url := "http://unix/api/v1/" + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", endpoint, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %s", endpoint, resp.Status)
	}

	return nil
}
