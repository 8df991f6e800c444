package probe

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPProber performs the cheap liveness check: can the node's management
// address accept a TCP connection at all. A node failing this is treated
// as down or mid-reboot, never probed further.
type TCPProber struct {
	// Address is the TCP address to connect to (e.g., "10.0.0.11:22")
	Address string

	// Timeout is the connection timeout (default: 5 seconds)
	Timeout time.Duration
}

// NewTCPProber creates a new TCP prober
func NewTCPProber(address string) *TCPProber {
	return &TCPProber{
		Address: address,
		Timeout: 5 * time.Second,
	}
}

// Probe attempts the connection
func (t *TCPProber) Probe(ctx context.Context) Result {
	start := time.Now()

	dialer := &net.Dialer{
		Timeout: t.Timeout,
	}

	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return Result{
			Reachable: false,
			Message:   fmt.Sprintf("connection failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	defer conn.Close()

	return Result{
		Reachable: true,
		Message:   fmt.Sprintf("TCP connection to %s successful", t.Address),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the probe kind
func (t *TCPProber) Type() Type {
	return TypeTCP
}

// WithTimeout sets the connection timeout
func (t *TCPProber) WithTimeout(timeout time.Duration) *TCPProber {
	t.Timeout = timeout
	return t
}
