package recon

import (
	"context"
	"errors"
	"net"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/vulnverified/aegis/internal/engine"
	"github.com/vulnverified/aegis/internal/logger"
	"github.com/vulnverified/aegis/internal/metrics"
	"github.com/vulnverified/aegis/internal/target"
)

// Dialer opens TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// PortScanner connect-scans a target and fingerprints the services that
// answer. It implements engine.PortScanner.
type PortScanner struct {
	Dialer   Dialer
	Resolver target.Resolver
	Log      *logger.Logger
	Metrics  *metrics.Recorder
}

// Scan probes every port in ports against the target's resolved address
// with at most concurrency connections in flight. Per-port failures are
// recorded in the outcome; only validation, option and resolution errors
// are returned.
func (s *PortScanner) Scan(ctx context.Context, t *target.Target, ports []int, timeout time.Duration, concurrency int) (*engine.ScanOutcome, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	ports, err := validatePorts(ports)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		return nil, &engine.ConfigError{Option: "timeout", Value: timeout.String(), Reason: "must be positive"}
	}
	if concurrency <= 0 {
		return nil, &engine.ConfigError{Option: "concurrency", Value: strconv.Itoa(concurrency), Reason: "must be positive"}
	}

	log := logger.OrNop(s.Log).WithComponent(engine.ComponentPortScan).WithTarget(t.Host())
	start := time.Now()

	ip, err := t.Resolve(ctx, s.Resolver)
	if err != nil {
		return nil, err
	}
	log.Debugw("Target resolved", "ip", ip, "ports", len(ports), "concurrency", concurrency)

	work := make(chan int, len(ports))
	for _, p := range ports {
		work <- p
	}
	close(work)

	workers := concurrency
	if workers > len(ports) {
		workers = len(ports)
	}

	var (
		mu      sync.Mutex
		results = make([]engine.PortResult, 0, len(ports))
	)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for port := range work {
				r := s.probePort(ctx, t.Host(), ip, port, timeout)
				if r.State == engine.PortOpen {
					t.AddOpenPort(port, engine.Fingerprint{Service: r.Service, Version: r.Version}.String())
				}
				s.Metrics.Probe(engine.ComponentPortScan, string(r.State))
				log.Debugw("Port probed", "port", port, "state", r.State, "service", r.Service)

				mu.Lock()
				results = append(results, r)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	out := buildScanOutcome(ip, results)
	out.DurationSecs = time.Since(start).Seconds()
	log.LogDuration(ctx, "port scan", start, "open", len(out.Open), "closed", len(out.Closed), "errors", len(out.Errors))
	return out, nil
}

func (s *PortScanner) probePort(ctx context.Context, host, ip string, port int, timeout time.Duration) engine.PortResult {
	start := time.Now()
	r := engine.PortResult{Port: port}

	if err := ctx.Err(); err != nil {
		r.State = engine.PortError
		r.Error = err.Error()
		r.DurationMs = time.Since(start).Milliseconds()
		return r
	}

	dialer := s.Dialer
	if dialer == nil {
		dialer = &net.Dialer{Timeout: timeout}
	}

	dctx, cancel := context.WithTimeout(ctx, timeout)
	conn, err := dialer.DialContext(dctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	cancel()
	if err != nil {
		r.State = classifyDialError(ctx, err)
		if r.State == engine.PortError {
			r.Error = err.Error()
		}
		r.DurationMs = time.Since(start).Milliseconds()
		return r
	}
	defer conn.Close()

	r.State = engine.PortOpen
	r.Banner = grabBanner(ctx, conn, host, port, timeout)
	fp := Identify(r.Banner)
	r.Service, r.Version = fp.Service, fp.Version
	r.DurationMs = time.Since(start).Milliseconds()
	return r
}

// classifyDialError maps a failed connect to closed or error. Refusals and
// per-attempt timeouts are closed; caller cancellation and every other
// socket failure are errors.
func classifyDialError(ctx context.Context, err error) engine.PortState {
	if ctx.Err() != nil {
		return engine.PortError
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, context.DeadlineExceeded) {
		return engine.PortClosed
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return engine.PortClosed
	}
	return engine.PortError
}

func buildScanOutcome(ip string, results []engine.PortResult) *engine.ScanOutcome {
	sort.Slice(results, func(i, j int) bool { return results[i].Port < results[j].Port })

	out := &engine.ScanOutcome{
		IP:           ip,
		PortsScanned: len(results),
		Open:         []engine.PortResult{},
	}
	for _, r := range results {
		switch r.State {
		case engine.PortOpen:
			out.Open = append(out.Open, r)
		case engine.PortClosed:
			out.Closed = append(out.Closed, r.Port)
		default:
			out.Errors = append(out.Errors, r)
		}
	}
	return out
}

func validatePorts(ports []int) ([]int, error) {
	if len(ports) == 0 {
		return nil, &engine.ConfigError{Option: "ports", Reason: "port list is empty"}
	}
	seen := make(map[int]bool, len(ports))
	out := make([]int, 0, len(ports))
	for _, p := range ports {
		if p < 1 || p > 65535 {
			return nil, &engine.ConfigError{Option: "port", Value: strconv.Itoa(p), Reason: "must be between 1 and 65535"}
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}
