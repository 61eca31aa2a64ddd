package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vulnverified/aegis/internal/logger"
	"github.com/vulnverified/aegis/internal/metrics"
	"github.com/vulnverified/aegis/internal/target"
)

// Config holds the per-component options of an engine run.
type Config struct {
	Ports            []int
	PortTimeout      time.Duration
	PortConcurrency  int
	Labels           []string
	ProbeMode        ProbeMode
	ProbeConcurrency int
	Credentials      Credentials
}

// Stages holds the injectable component implementations.
type Stages struct {
	Prober   SubdomainProber
	Scanner  PortScanner
	Gatherer IntelGatherer
}

// Selection names the components to run. Unselected components are absent
// from the report.
type Selection struct {
	Subdomains bool
	Ports      bool
	OSINT      bool
}

// All selects every component.
func All() Selection {
	return Selection{Subdomains: true, Ports: true, OSINT: true}
}

func (s Selection) count() int {
	n := 0
	for _, on := range []bool{s.Subdomains, s.Ports, s.OSINT} {
		if on {
			n++
		}
	}
	return n
}

// ProgressReporter is called by the engine to report component progress.
type ProgressReporter interface {
	Stage(num, total int, msg string)
	Detail(msg string)
	Warn(msg string)
}

// ModuleInfo describes one component for listings.
type ModuleInfo struct {
	Name        string
	Description string
}

// Modules lists the components in execution order.
func Modules() []ModuleInfo {
	return []ModuleInfo{
		{Name: ComponentSubdomains, Description: "Probe candidate subdomain labels by reachability or DNS"},
		{Name: ComponentPortScan, Description: "TCP connect scan with banner grabbing and service fingerprinting"},
		{Name: ComponentOSINT, Description: "Registration, DNS, certificate, archive and reputation intelligence"},
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = logger.OrNop(l) }
}

// WithMetrics sets the recorder for component timings and failures.
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithProgress sets the progress reporter.
func WithProgress(p ProgressReporter) Option {
	return func(e *Engine) {
		if p != nil {
			e.progress = p
		}
	}
}

// Engine runs the selected components against one target in a fixed order:
// subdomain enumeration, port scan, OSINT. A failing component never stops
// the ones after it.
type Engine struct {
	cfg      Config
	stages   Stages
	log      *logger.Logger
	metrics  *metrics.Recorder
	progress ProgressReporter
	now      func() time.Time
}

// New returns an Engine.
func New(cfg Config, stages Stages, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		stages:   stages,
		log:      logger.Nop(),
		progress: nopProgress{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the selected components and assembles a Report. The error is
// non-nil only when the run could not start at all.
func (e *Engine) Run(ctx context.Context, t *target.Target, sel Selection) (*Report, error) {
	if t == nil {
		return nil, &target.ValidationError{Reason: "no target"}
	}
	total := sel.count()
	if total == 0 {
		return nil, &ConfigError{Option: "modules", Reason: "no component selected"}
	}

	log := e.log.WithTarget(t.Host())
	report := &Report{
		ID:        uuid.NewString(),
		StartedAt: e.now(),
	}
	log.Infow("Recon started", "id", report.ID, "components", total)

	step := 0
	if sel.Subdomains {
		step++
		e.progress.Stage(step, total, fmt.Sprintf("Probing %d subdomain labels...", len(e.cfg.Labels)))
		report.Subdomains = &ProbeReport{}
		report.Subdomains.ComponentStatus = e.runComponent(ctx, log, ComponentSubdomains, report, func() error {
			if e.stages.Prober == nil {
				return errNoStage
			}
			out, err := e.stages.Prober.Probe(ctx, t, e.cfg.Labels, e.cfg.ProbeMode, e.cfg.ProbeConcurrency)
			if err != nil {
				return err
			}
			report.Subdomains.Outcome = out
			e.progress.Detail(fmt.Sprintf("%d of %d labels present", len(out.Present), out.Checked))
			return nil
		})
	}

	if sel.Ports {
		step++
		e.progress.Stage(step, total, fmt.Sprintf("Scanning %d ports...", len(e.cfg.Ports)))
		report.PortScan = &ScanReport{}
		report.PortScan.ComponentStatus = e.runComponent(ctx, log, ComponentPortScan, report, func() error {
			if e.stages.Scanner == nil {
				return errNoStage
			}
			out, err := e.stages.Scanner.Scan(ctx, t, e.cfg.Ports, e.cfg.PortTimeout, e.cfg.PortConcurrency)
			if err != nil {
				return err
			}
			report.PortScan.Outcome = out
			e.progress.Detail(fmt.Sprintf("Found %d open ports on %s", len(out.Open), out.IP))
			return nil
		})
	}

	if sel.OSINT {
		step++
		e.progress.Stage(step, total, "Gathering open-source intelligence...")
		report.OSINT = &IntelReport{}
		report.OSINT.ComponentStatus = e.runComponent(ctx, log, ComponentOSINT, report, func() error {
			if e.stages.Gatherer == nil {
				return errNoStage
			}
			out, err := e.stages.Gatherer.Gather(ctx, t, e.cfg.Credentials)
			if err != nil {
				return err
			}
			report.OSINT.Outcome = out
			e.progress.Detail(fmt.Sprintf("Threat level %s (score %d)", out.Threat.Level, out.Threat.Score))
			return nil
		})
	}

	report.CompletedAt = e.now()
	report.DurationSecs = report.CompletedAt.Sub(report.StartedAt).Seconds()
	report.Target = t.Snapshot()

	log.Infow("Recon completed",
		"id", report.ID,
		"duration_secs", report.DurationSecs,
		"errors", len(report.Errors),
	)
	return report, nil
}

var errNoStage = errors.New("component not configured")

// runComponent runs fn and converts its error into a ComponentStatus.
func (e *Engine) runComponent(ctx context.Context, log *logger.Logger, name string, report *Report, fn func() error) ComponentStatus {
	log = log.WithComponent(name)
	start := e.now()

	err := fn()

	status := ComponentStatus{
		Success:      err == nil,
		DurationSecs: e.now().Sub(start).Seconds(),
	}
	if err != nil {
		status.Error = err.Error()
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", name, err))
		e.progress.Warn(fmt.Sprintf("%s failed: %s", name, err))
		log.Warnw("Component failed", "error", err)
	} else {
		log.LogDuration(ctx, name, start)
	}
	e.metrics.Component(name, status.DurationSecs, err != nil)
	return status
}

type nopProgress struct{}

func (nopProgress) Stage(int, int, string) {}
func (nopProgress) Detail(string)          {}
func (nopProgress) Warn(string)            {}
