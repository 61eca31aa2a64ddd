package osint

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vulnverified/aegis/internal/engine"
	"github.com/vulnverified/aegis/internal/logger"
	"github.com/vulnverified/aegis/internal/metrics"
	"github.com/vulnverified/aegis/internal/target"
)

// AnalysisKey is the intelligence entry holding derived domain age and
// threat assessment.
const AnalysisKey = "analysis"

const (
	defaultSourceConcurrency = 4
	defaultRateLimit         = 1.0
)

var _ engine.IntelGatherer = (*Aggregator)(nil)

// Options configure the aggregator built by New. Zero values select the
// defaults.
type Options struct {
	UserAgent   string
	Timeout     time.Duration
	RateLimit   float64
	Concurrency int

	// ZoneTransfer and PassiveDNS enable the opt-in unkeyed sources.
	ZoneTransfer bool
	PassiveDNS   bool

	Log     *logger.Logger
	Metrics *metrics.Recorder
}

// Aggregator queries every source concurrently, isolates their failures and
// derives domain age and a threat assessment from the combined findings.
type Aggregator struct {
	Sources     []Source
	Concurrency int
	Now         func() time.Time
	Log         *logger.Logger
	Metrics     *metrics.Recorder
}

// New returns an aggregator over the default sources plus the enabled
// opt-in ones.
func New(opts Options) *Aggregator {
	rps := opts.RateLimit
	if rps == 0 {
		rps = defaultRateLimit
	}
	fetcher := NewFetcher(opts.UserAgent, opts.Timeout, rps)
	lookup := NewStubLookup(opts.Timeout)

	sources := []Source{
		NewWhois(opts.Timeout),
		&DNSRecords{Lookup: lookup},
		&CTLogs{Fetcher: fetcher},
		&Wayback{Fetcher: fetcher},
		&Shodan{Fetcher: fetcher},
		&VirusTotal{Fetcher: fetcher},
	}
	if opts.ZoneTransfer {
		sources = append(sources, &ZoneTransfer{Lookup: lookup})
	}
	if opts.PassiveDNS {
		sources = append(sources, &PassiveDNS{Fetcher: fetcher})
	}

	return &Aggregator{
		Sources:     sources,
		Concurrency: opts.Concurrency,
		Log:         opts.Log,
		Metrics:     opts.Metrics,
	}
}

// Gather runs every source against t. Keyed sources without a credential get
// a no_api_key marker and are not queried. Only an invalid target fails the
// call; source failures become error markers.
func (a *Aggregator) Gather(ctx context.Context, t *target.Target, creds engine.Credentials) (*engine.IntelOutcome, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	log := logger.OrNop(a.Log).WithComponent(engine.ComponentOSINT).WithTarget(t.Host())

	limit := a.Concurrency
	if limit <= 0 {
		limit = defaultSourceConcurrency
	}

	var (
		mu       sync.Mutex
		results  = make(map[string]engine.SourceResult, len(a.Sources))
		findings = make(map[string]Findings, len(a.Sources))
	)
	record := func(name string, res engine.SourceResult, f Findings) {
		mu.Lock()
		results[name] = res
		if f != nil {
			findings[name] = f
		}
		mu.Unlock()
		a.Metrics.Probe(engine.ComponentOSINT, string(res.Status))
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for _, src := range a.Sources {
		src := src
		name := src.Name()
		key := ""
		if src.Keyed() {
			key = creds.Key(name)
			if key == "" {
				record(name, engine.SourceResult{Status: engine.SourceNoAPIKey, Error: "API key not configured"}, nil)
				continue
			}
		}

		g.Go(func() error {
			srcLog := log.WithSource(name)
			began := time.Now()
			f, err := src.Query(ctx, t, key)
			res := engine.SourceResult{DurationMs: time.Since(began).Milliseconds()}
			switch {
			case err != nil:
				res.Status = engine.SourceError
				res.Error = err.Error()
				srcLog.Warnw("Source failed", "error", err)
				f = nil
			case len(f) == 0:
				res.Status = engine.SourceNoData
				srcLog.Debugw("Source returned no data")
			default:
				res.Status = engine.SourceOK
				res.Data = map[string]any(f)
				srcLog.Debugw("Source completed", "fields", len(f), "duration_ms", res.DurationMs)
			}
			record(name, res, f)
			return nil
		})
	}
	_ = g.Wait()

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		res := results[name]
		entry := make(map[string]any, len(findings[name])+2)
		for k, v := range findings[name] {
			entry[k] = v
		}
		// The marker keys always win over findings. An empty error clears
		// one left by an earlier run.
		entry["status"] = string(res.Status)
		entry["error"] = res.Error
		t.MergeIntelligence(name, entry)
	}

	outcome := a.analyze(findings)
	outcome.Sources = results
	outcome.DurationSecs = time.Since(start).Seconds()

	analysis := map[string]any{"threat_assessment": outcome.Threat}
	if outcome.DomainAge != nil {
		analysis["domain_age"] = outcome.DomainAge
	}
	t.MergeIntelligence(AnalysisKey, analysis)

	log.LogDuration(ctx, "osint", start,
		"sources", len(results),
		"threat_level", outcome.Threat.Level,
		"threat_score", outcome.Threat.Score,
	)
	return outcome, nil
}

// analyze derives domain age, threat assessment and summary from the
// successful findings.
func (a *Aggregator) analyze(findings map[string]Findings) *engine.IntelOutcome {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}

	out := &engine.IntelOutcome{}
	if w, ok := findings[SourceWhois]; ok {
		if created, ok := w["creation_date"].(string); ok {
			out.DomainAge = AnalyzeDomainAge(created, now())
		}
	}

	var signals ThreatSignals
	openPorts := 0
	if f, ok := findings[SourceShodan]; ok {
		openPorts, signals.Vulnerabilities = shodanSignals(f)
	}
	if f, ok := findings[SourceVirusTotal]; ok {
		signals.Malicious, signals.Suspicious = reputationSignals(f)
	}
	out.Threat = AssessThreat(signals)

	out.Summary = engine.IntelSummary{
		DomainAge:       out.DomainAge,
		ThreatLevel:     out.Threat.Level,
		OpenPorts:       openPorts,
		SubdomainsFound: ctSubdomainCount(findings[SourceCTLogs]),
		DNSRecords:      recordCount(findings[SourceDNS]),
	}
	return out
}
