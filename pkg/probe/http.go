package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPProber performs HTTP-based readiness probes against a node's
// management service.
type HTTPProber struct {
	// URL is the full HTTP URL to check (e.g., "https://10.0.0.11:8006/")
	URL string

	// Method is the HTTP method to use (default: GET)
	Method string

	// ExpectedStatusMin is the minimum acceptable HTTP status code (default: 200)
	ExpectedStatusMin int

	// ExpectedStatusMax is the maximum acceptable HTTP status code (default: 399)
	ExpectedStatusMax int

	// Client is the HTTP client to use (allows custom configuration)
	Client *http.Client
}

// NewHTTPProber creates a new HTTP prober
func NewHTTPProber(url string) *HTTPProber {
	return &HTTPProber{
		URL:               url,
		Method:            http.MethodGet,
		ExpectedStatusMin: 200,
		ExpectedStatusMax: 399,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Probe performs the HTTP check
func (h *HTTPProber) Probe(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, h.Method, h.URL, nil)
	if err != nil {
		return Result{
			Reachable: false,
			Message:   fmt.Sprintf("failed to create request: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return Result{
			Reachable: false,
			Message:   fmt.Sprintf("request failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	defer resp.Body.Close()

	reachable := resp.StatusCode >= h.ExpectedStatusMin && resp.StatusCode <= h.ExpectedStatusMax

	message := fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if !reachable {
		message = fmt.Sprintf("%s (expected %d-%d)", message, h.ExpectedStatusMin, h.ExpectedStatusMax)
	}

	return Result{
		Reachable: reachable,
		Message:   message,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the probe kind
func (h *HTTPProber) Type() Type {
	return TypeHTTP
}

// WithStatusRange sets the expected status code range
func (h *HTTPProber) WithStatusRange(min, max int) *HTTPProber {
	h.ExpectedStatusMin = min
	h.ExpectedStatusMax = max
	return h
}

// WithTimeout sets the HTTP client timeout
func (h *HTTPProber) WithTimeout(timeout time.Duration) *HTTPProber {
	h.Client.Timeout = timeout
	return h
}
