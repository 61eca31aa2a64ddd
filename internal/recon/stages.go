package recon

import (
	"time"

	"github.com/vulnverified/aegis/internal/engine"
	"github.com/vulnverified/aegis/internal/logger"
	"github.com/vulnverified/aegis/internal/metrics"
	"github.com/vulnverified/aegis/internal/target"
)

var (
	_ engine.PortScanner     = (*PortScanner)(nil)
	_ engine.SubdomainProber = (*SubdomainProber)(nil)
)

// Options are shared by the recon components built by NewPortScanner and
// NewSubdomainProber. Zero values select the defaults.
type Options struct {
	UserAgent    string
	ProbeTimeout time.Duration
	Resolver     target.Resolver
	Log          *logger.Logger
	Metrics      *metrics.Recorder
}

// NewPortScanner returns a scanner that dials with the system network stack.
func NewPortScanner(opts Options) *PortScanner {
	return &PortScanner{
		Resolver: opts.Resolver,
		Log:      opts.Log,
		Metrics:  opts.Metrics,
	}
}

// NewSubdomainProber returns a prober with its own HTTP client.
func NewSubdomainProber(opts Options) *SubdomainProber {
	timeout := opts.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	return &SubdomainProber{
		Client:    NewHTTPClient(timeout),
		Resolver:  opts.Resolver,
		Timeout:   timeout,
		UserAgent: ua,
		Log:       opts.Log,
		Metrics:   opts.Metrics,
	}
}
