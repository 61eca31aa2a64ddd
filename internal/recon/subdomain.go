package recon

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vulnverified/aegis/internal/engine"
	"github.com/vulnverified/aegis/internal/logger"
	"github.com/vulnverified/aegis/internal/metrics"
	"github.com/vulnverified/aegis/internal/target"
)

// DefaultUserAgent is sent with every HTTP probe.
const DefaultUserAgent = "aegis/1.0 (+https://github.com/vulnverified/aegis)"

// DefaultProbeTimeout bounds each HTTP attempt in reachability mode.
const DefaultProbeTimeout = 5 * time.Second

// drainLimit is how much of a response body is read before closing, so the
// connection can be reused.
const drainLimit = 64 * 1024

// HTTPDoer sends HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SubdomainProber checks candidate labels under a target host. It implements
// engine.SubdomainProber.
type SubdomainProber struct {
	Client    HTTPDoer
	Resolver  target.Resolver
	Timeout   time.Duration
	UserAgent string
	Log       *logger.Logger
	Metrics   *metrics.Recorder
}

// NewHTTPClient returns the client used for reachability probes: fixed
// timeout, certificate verification off, at most five redirects.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     30 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

// Probe checks every label as label.host using mode, with at most
// concurrency checks in flight. Present names are returned in completion
// order and merged into the target. Per-label failures count as absent.
func (p *SubdomainProber) Probe(ctx context.Context, t *target.Target, labels []string, mode engine.ProbeMode, concurrency int) (*engine.ProbeOutcome, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	m, err := engine.ParseProbeMode(string(mode))
	if err != nil {
		return nil, err
	}
	labels = NormalizeLabels(labels)
	if len(labels) == 0 {
		return nil, &engine.ConfigError{Option: "labels", Reason: "no candidate labels"}
	}
	if concurrency <= 0 {
		return nil, &engine.ConfigError{Option: "concurrency", Value: strconv.Itoa(concurrency), Reason: "must be positive"}
	}

	log := logger.OrNop(p.Log).WithComponent(engine.ComponentSubdomains).WithTarget(t.Host())
	start := time.Now()

	var check func(context.Context, *engine.LabelResult)
	if m == engine.ModeDNS {
		check = p.checkDNS
	} else {
		client := p.Client
		if client == nil {
			client = NewHTTPClient(p.Timeout)
		}
		check = func(ctx context.Context, r *engine.LabelResult) {
			p.checkReachable(ctx, client, r)
		}
	}

	var (
		mu      sync.Mutex
		present = []string{}
		results = make([]engine.LabelResult, len(labels))
	)

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, label := range labels {
		i, label := i, label
		g.Go(func() error {
			r := engine.LabelResult{Label: label, FQDN: label + "." + t.Host()}
			if err := ctx.Err(); err != nil {
				r.Error = err.Error()
			} else {
				check(ctx, &r)
			}
			results[i] = r

			outcome := "absent"
			if r.Present {
				outcome = "present"
				t.AddSubdomain(r.FQDN)
				mu.Lock()
				present = append(present, r.FQDN)
				mu.Unlock()
			}
			p.Metrics.Probe(engine.ComponentSubdomains, outcome)
			log.Debugw("Label checked", "fqdn", r.FQDN, "present", r.Present, "error", r.Error)
			return nil
		})
	}
	_ = g.Wait()

	out := &engine.ProbeOutcome{
		Present:      present,
		Checked:      len(labels),
		Mode:         m,
		Results:      results,
		DurationSecs: time.Since(start).Seconds(),
	}
	log.LogDuration(ctx, "subdomain probe", start, "mode", m, "present", len(present), "checked", len(labels))
	return out, nil
}

// checkReachable tries HTTP, then HTTPS only when HTTP could not connect.
// Any response below 400 is present; a timeout or an error status ends the
// check as absent.
func (p *SubdomainProber) checkReachable(ctx context.Context, client HTTPDoer, r *engine.LabelResult) {
	for _, scheme := range []string{"http", "https"} {
		status, err := p.fetchStatus(ctx, client, scheme+"://"+r.FQDN)
		if err == nil {
			r.Scheme = scheme
			r.StatusCode = status
			r.Present = status < 400
			r.Error = ""
			return
		}
		r.Error = err.Error()
		if !isConnectFailure(err) {
			return
		}
	}
}

func (p *SubdomainProber) fetchStatus(ctx context.Context, client HTTPDoer, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	ua := p.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	return resp.StatusCode, nil
}

func (p *SubdomainProber) checkDNS(ctx context.Context, r *engine.LabelResult) {
	resolver := p.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addrs, err := resolver.LookupHost(lctx, r.FQDN)
	if err != nil {
		r.Error = err.Error()
		return
	}
	if len(addrs) == 0 {
		r.Error = "no addresses"
		return
	}
	r.Present = true
	r.Addresses = addrs
}

// isConnectFailure reports whether err happened before any HTTP exchange:
// a DNS failure, a refused connection or another dial error. Timeouts are
// not connect failures.
func isConnectFailure(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

// NormalizeLabels trims, lower-cases and deduplicates labels, keeping first
// occurrences in order. Empty labels and # comments are dropped.
func NormalizeLabels(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.Trim(strings.ToLower(strings.TrimSpace(l)), ".")
		if l == "" || strings.HasPrefix(l, "#") || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}
