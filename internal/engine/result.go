// Package engine orchestrates the aegis reconnaissance components.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vulnverified/aegis/internal/target"
)

// Component names. The set is closed: new capabilities are added here.
const (
	ComponentSubdomains = "subdomain_enum"
	ComponentPortScan   = "port_scan"
	ComponentOSINT      = "osint"
)

// Report is the output of one engine run. Components that were not selected
// are nil and omitted from serialized output.
type Report struct {
	ID           string          `json:"id" yaml:"id"`
	Target       target.Snapshot `json:"target" yaml:"target"`
	StartedAt    time.Time       `json:"started_at" yaml:"started_at"`
	CompletedAt  time.Time       `json:"completed_at" yaml:"completed_at"`
	DurationSecs float64         `json:"duration_secs" yaml:"duration_secs"`
	Subdomains   *ProbeReport    `json:"subdomain_enum,omitempty" yaml:"subdomain_enum,omitempty"`
	PortScan     *ScanReport     `json:"port_scan,omitempty" yaml:"port_scan,omitempty"`
	OSINT        *IntelReport    `json:"osint,omitempty" yaml:"osint,omitempty"`
	Errors       []string        `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// ComponentStatus is the success flag, failure reason and wall time of one
// component run.
type ComponentStatus struct {
	Success      bool    `json:"success" yaml:"success"`
	Error        string  `json:"error,omitempty" yaml:"error,omitempty"`
	DurationSecs float64 `json:"duration_secs" yaml:"duration_secs"`
}

// ProbeReport is the subdomain prober's entry in a Report.
type ProbeReport struct {
	ComponentStatus `yaml:",inline"`
	Outcome         *ProbeOutcome `json:"outcome,omitempty" yaml:"outcome,omitempty"`
}

// ScanReport is the port scanner's entry in a Report.
type ScanReport struct {
	ComponentStatus `yaml:",inline"`
	Outcome         *ScanOutcome `json:"outcome,omitempty" yaml:"outcome,omitempty"`
}

// IntelReport is the OSINT aggregator's entry in a Report.
type IntelReport struct {
	ComponentStatus `yaml:",inline"`
	Outcome         *IntelOutcome `json:"outcome,omitempty" yaml:"outcome,omitempty"`
}

// PortState classifies one scanned port. Every port is exactly one of these.
type PortState string

const (
	PortOpen   PortState = "open"
	PortClosed PortState = "closed"
	PortError  PortState = "error"
)

// Fingerprint is a service guess derived from a banner.
type Fingerprint struct {
	Service string `json:"service" yaml:"service"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// String renders the fingerprint as stored on the Target, e.g. "nginx 1.24.0".
func (f Fingerprint) String() string {
	service := f.Service
	if service == "" {
		service = "unknown"
	}
	if f.Version == "" {
		return service
	}
	return service + " " + f.Version
}

// PortResult is the outcome of probing one port.
type PortResult struct {
	Port       int       `json:"port" yaml:"port"`
	State      PortState `json:"state" yaml:"state"`
	Banner     string    `json:"banner,omitempty" yaml:"banner,omitempty"`
	Service    string    `json:"service,omitempty" yaml:"service,omitempty"`
	Version    string    `json:"version,omitempty" yaml:"version,omitempty"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	DurationMs int64     `json:"duration_ms" yaml:"duration_ms"`
}

// ScanOutcome is the result of a port scan.
type ScanOutcome struct {
	IP           string       `json:"ip" yaml:"ip"`
	PortsScanned int          `json:"ports_scanned" yaml:"ports_scanned"`
	Open         []PortResult `json:"open" yaml:"open"`
	Closed       []int        `json:"closed,omitempty" yaml:"closed,omitempty"`
	Errors       []PortResult `json:"errors,omitempty" yaml:"errors,omitempty"`
	DurationSecs float64      `json:"duration_secs" yaml:"duration_secs"`
}

// OpenPorts returns the open port numbers in ascending order.
func (o *ScanOutcome) OpenPorts() []int {
	ports := make([]int, 0, len(o.Open))
	for _, r := range o.Open {
		ports = append(ports, r.Port)
	}
	sort.Ints(ports)
	return ports
}

// ProbeMode selects how subdomain labels are checked.
type ProbeMode string

const (
	ModeReachability ProbeMode = "reachability"
	ModeDNS          ProbeMode = "dns"
)

// ParseProbeMode validates a mode name. "async" and "http" are accepted as
// aliases of reachability.
func ParseProbeMode(s string) (ProbeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeReachability), "async", "http":
		return ModeReachability, nil
	case string(ModeDNS):
		return ModeDNS, nil
	}
	return "", &ConfigError{Option: "probe mode", Value: s, Reason: fmt.Sprintf("must be %q or %q", ModeReachability, ModeDNS)}
}

// LabelResult is the outcome of checking one candidate label.
type LabelResult struct {
	Label      string   `json:"label" yaml:"label"`
	FQDN       string   `json:"fqdn" yaml:"fqdn"`
	Present    bool     `json:"present" yaml:"present"`
	Scheme     string   `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	StatusCode int      `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Addresses  []string `json:"addresses,omitempty" yaml:"addresses,omitempty"`
	Error      string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// ProbeOutcome is the result of a subdomain probe. Present is in completion
// order, not input order.
type ProbeOutcome struct {
	Present      []string      `json:"present" yaml:"present"`
	Checked      int           `json:"checked" yaml:"checked"`
	Mode         ProbeMode     `json:"mode" yaml:"mode"`
	Results      []LabelResult `json:"results,omitempty" yaml:"results,omitempty"`
	DurationSecs float64       `json:"duration_secs" yaml:"duration_secs"`
}

// SourceStatus marks the outcome of one intelligence source.
type SourceStatus string

const (
	SourceOK       SourceStatus = "ok"
	SourceNoData   SourceStatus = "no_data"
	SourceNoAPIKey SourceStatus = "no_api_key"
	SourceError    SourceStatus = "error"
)

// SourceResult is one intelligence source's findings or its marker.
type SourceResult struct {
	Status     SourceStatus `json:"status" yaml:"status"`
	Data       any          `json:"data,omitempty" yaml:"data,omitempty"`
	Error      string       `json:"error,omitempty" yaml:"error,omitempty"`
	DurationMs int64        `json:"duration_ms" yaml:"duration_ms"`
}

// DomainAge is derived from the registration creation date.
type DomainAge struct {
	Days         int     `json:"days" yaml:"days"`
	Years        float64 `json:"years" yaml:"years"`
	Reputation   string  `json:"reputation" yaml:"reputation"`
	CreationDate string  `json:"creation_date" yaml:"creation_date"`
}

// ThreatLevel is the three-tier severity of a threat score.
type ThreatLevel string

const (
	ThreatLow    ThreatLevel = "LOW"
	ThreatMedium ThreatLevel = "MEDIUM"
	ThreatHigh   ThreatLevel = "HIGH"
)

// ThreatAssessment is the weighted-signal score and what to do about it.
type ThreatAssessment struct {
	Score           int         `json:"threat_score" yaml:"threat_score"`
	Level           ThreatLevel `json:"threat_level" yaml:"threat_level"`
	Warnings        []string    `json:"warnings" yaml:"warnings"`
	Recommendations []string    `json:"recommendations" yaml:"recommendations"`
}

// IntelSummary condenses an IntelOutcome.
type IntelSummary struct {
	DomainAge       *DomainAge  `json:"domain_age,omitempty" yaml:"domain_age,omitempty"`
	ThreatLevel     ThreatLevel `json:"threat_level" yaml:"threat_level"`
	OpenPorts       int         `json:"open_ports" yaml:"open_ports"`
	SubdomainsFound int         `json:"subdomains_found" yaml:"subdomains_found"`
	DNSRecords      int         `json:"dns_records" yaml:"dns_records"`
}

// IntelOutcome is the result of OSINT gathering.
type IntelOutcome struct {
	Sources      map[string]SourceResult `json:"sources" yaml:"sources"`
	DomainAge    *DomainAge              `json:"domain_age,omitempty" yaml:"domain_age,omitempty"`
	Threat       ThreatAssessment        `json:"threat_assessment" yaml:"threat_assessment"`
	Summary      IntelSummary            `json:"summary" yaml:"summary"`
	DurationSecs float64                 `json:"duration_secs" yaml:"duration_secs"`
}

// Credentials maps a source name to its API key. A missing or empty key
// means the source is skipped.
type Credentials map[string]string

// Key returns the trimmed key for source.
func (c Credentials) Key(source string) string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c[source])
}

// PortScanner connect-scans ports on a target.
type PortScanner interface {
	Scan(ctx context.Context, t *target.Target, ports []int, timeout time.Duration, concurrency int) (*ScanOutcome, error)
}

// SubdomainProber checks candidate subdomain labels of a target.
type SubdomainProber interface {
	Probe(ctx context.Context, t *target.Target, labels []string, mode ProbeMode, concurrency int) (*ProbeOutcome, error)
}

// IntelGatherer collects open-source intelligence about a target.
type IntelGatherer interface {
	Gather(ctx context.Context, t *target.Target, creds Credentials) (*IntelOutcome, error)
}
