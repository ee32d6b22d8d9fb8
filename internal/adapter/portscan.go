package adapter

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
)

// PortChecker reports whether a TCP port is accepting connections
type PortChecker interface {
	Name() string
	IsListening(ctx context.Context, host string, port int) (bool, error)
}

// NmapPortChecker scans a single port with nmap
type NmapPortChecker struct {
	timeout time.Duration
}

// PortCheckOption is a functional option for configuring port checkers
type PortCheckOption func(*NmapPortChecker)

// WithScanTimeout bounds the nmap run
func WithScanTimeout(d time.Duration) PortCheckOption {
	return func(n *NmapPortChecker) {
		n.timeout = d
	}
}

// NewNmapPortChecker creates an nmap-backed checker
func NewNmapPortChecker(opts ...PortCheckOption) *NmapPortChecker {
	n := &NmapPortChecker{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Name returns the checker identifier
func (n *NmapPortChecker) Name() string {
	return "nmap"
}

// Available checks if the nmap binary exists by running a list scan
func (n *NmapPortChecker) Available(ctx context.Context) bool {
	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets("localhost"),
		nmap.WithListScan(),
	)
	if err != nil {
		return false
	}

	_, _, err = scanner.Run()
	return err == nil
}

// IsListening runs a TCP scan of host:port and reports whether it is open
func (n *NmapPortChecker) IsListening(ctx context.Context, host string, port int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets(host),
		nmap.WithPorts(strconv.Itoa(port)),
		nmap.WithSkipHostDiscovery(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to create scanner: %w", err)
	}

	result, _, err := scanner.Run()
	if err != nil {
		return false, fmt.Errorf("scan failed: %w", err)
	}
	if result == nil {
		return false, fmt.Errorf("nil scan result")
	}

	for _, h := range result.Hosts {
		for _, p := range h.Ports {
			if int(p.ID) == port && p.State.State == "open" {
				return true, nil
			}
		}
	}
	return false, nil
}

// DialPortChecker connects with a plain TCP dial
type DialPortChecker struct {
	timeout time.Duration
}

// NewDialPortChecker creates a dial-based checker
func NewDialPortChecker(timeout time.Duration) *DialPortChecker {
	return &DialPortChecker{timeout: timeout}
}

// Name returns the checker identifier
func (d *DialPortChecker) Name() string {
	return "dial"
}

// IsListening dials host:port
func (d *DialPortChecker) IsListening(ctx context.Context, host string, port int) (bool, error) {
	dialer := net.Dialer{Timeout: d.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false, nil
	}
	conn.Close()
	return true, nil
}

// SelectPortChecker prefers nmap and falls back to dialing
func SelectPortChecker(ctx context.Context, timeout time.Duration) PortChecker {
	n := NewNmapPortChecker(WithScanTimeout(timeout))
	if n.Available(ctx) {
		return n
	}
	return NewDialPortChecker(timeout)
}
