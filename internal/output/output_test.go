package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/vulnverified/aegis/internal/engine"
	"github.com/vulnverified/aegis/internal/osint"
	"github.com/vulnverified/aegis/internal/target"
)

func sampleReport() *engine.Report {
	started := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return &engine.Report{
		ID: "8c5b1f5e-0000-4000-8000-000000000000",
		Target: target.Snapshot{
			Host:       "example.com",
			ResolvedIP: "93.184.216.34",
			OpenPorts:  []int{22, 443},
			Services:   map[int]string{22: "openssh 8.9p1", 443: "nginx 1.24.0"},
			Subdomains: []string{"www.example.com"},
			Intelligence: map[string]map[string]any{
				osint.SourceDNS: {
					"status":         "ok",
					"dangling_cname": &osint.DanglingCNAME{Host: "blog.example.com", CNAME: "old.herokuapp.com", Status: "NXDOMAIN"},
				},
				osint.SourceZoneTransfer: {
					"status":     "ok",
					"vulnerable": true,
					"attempts": []osint.ZoneTransferAttempt{
						{Nameserver: "ns1.example.com"},
						{Nameserver: "ns2.example.com", Success: true, Records: 14},
					},
				},
			},
		},
		StartedAt:    started,
		CompletedAt:  started.Add(3 * time.Second),
		DurationSecs: 3,
		PortScan: &engine.ScanReport{
			ComponentStatus: engine.ComponentStatus{Success: true, DurationSecs: 1.5},
			Outcome: &engine.ScanOutcome{
				IP:           "93.184.216.34",
				PortsScanned: 3,
				Open: []engine.PortResult{
					{Port: 22, State: engine.PortOpen, Banner: "SSH-2.0-OpenSSH_8.9p1", Service: "openssh", Version: "8.9p1"},
					{Port: 443, State: engine.PortOpen, Banner: "HTTP/1.1 200 OK\nServer: nginx/1.24.0", Service: "nginx", Version: "1.24.0"},
				},
				Closed: []int{80},
			},
		},
		Subdomains: &engine.ProbeReport{
			ComponentStatus: engine.ComponentStatus{Success: true},
			Outcome: &engine.ProbeOutcome{
				Present: []string{"www.example.com"},
				Checked: 2,
				Mode:    engine.ModeReachability,
				Results: []engine.LabelResult{
					{Label: "www", FQDN: "www.example.com", Present: true, Scheme: "http", StatusCode: 200},
					{Label: "nope", FQDN: "nope.example.com"},
				},
			},
		},
		OSINT: &engine.IntelReport{
			ComponentStatus: engine.ComponentStatus{Success: true},
			Outcome: &engine.IntelOutcome{
				Sources: map[string]engine.SourceResult{
					osint.SourceWhois:      {Status: engine.SourceOK, Data: map[string]any{"registrar": "IANA"}},
					osint.SourceShodan:     {Status: engine.SourceNoAPIKey, Error: "API key not configured"},
					osint.SourceVirusTotal: {Status: engine.SourceOK, Data: map[string]any{"reputation_score": -5}},
				},
				DomainAge: &engine.DomainAge{Days: 10000, Years: 27.4, Reputation: "established"},
				Threat: engine.ThreatAssessment{
					Score:           50,
					Level:           engine.ThreatHigh,
					Warnings:        []string{"Malicious detections in VirusTotal"},
					Recommendations: osint.Recommendations(engine.ThreatHigh),
				},
				Summary: engine.IntelSummary{ThreatLevel: engine.ThreatHigh, SubdomainsFound: 4, DNSRecords: 9},
			},
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "JSON": FormatJSON, "yaml": FormatYAML, "yml": FormatYAML, "table": FormatTable} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("xml")
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleReport()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, decoded, "port_scan")
	assert.Contains(t, decoded, "subdomain_enum")
	assert.Contains(t, decoded, "osint")
	assert.NotContains(t, decoded, "errors")

	osintEntry := decoded["osint"].(map[string]any)
	assert.Equal(t, true, osintEntry["success"])
	outcome := osintEntry["outcome"].(map[string]any)
	threat := outcome["threat_assessment"].(map[string]any)
	assert.Equal(t, "HIGH", threat["threat_level"])
	assert.Equal(t, float64(50), threat["threat_score"])
}

func TestWriteJSON_OmitsUnselectedComponents(t *testing.T) {
	report := sampleReport()
	report.Subdomains = nil
	report.OSINT = nil

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, report))
	assert.NotContains(t, buf.String(), "subdomain_enum")
	assert.NotContains(t, buf.String(), `"osint"`)
	assert.Contains(t, buf.String(), "port_scan")
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, sampleReport()))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	scan := decoded["port_scan"].(map[string]any)
	assert.Equal(t, true, scan["success"])
	outcome := scan["outcome"].(map[string]any)
	assert.Equal(t, "93.184.216.34", outcome["ip"])
	assert.Contains(t, buf.String(), "threat_level: HIGH")
}

func TestWriteTable_NoColor(t *testing.T) {
	var buf bytes.Buffer
	WriteTable(&buf, sampleReport(), true)
	out := buf.String()

	assert.NotContains(t, out, "\033[")
	assert.Contains(t, out, "Port | Service | Version | Banner")
	assert.Contains(t, out, "openssh")
	assert.Contains(t, out, "HTTP/1.1 200 OK")
	assert.NotContains(t, out, "Server: nginx")
	assert.Contains(t, out, "www.example.com | http 200")
	assert.NotContains(t, out, "nope.example.com")
	assert.Contains(t, out, "no_api_key")
	assert.Contains(t, out, "Threat level: HIGH (score 50)")
}

func TestWriteTable_Color(t *testing.T) {
	var buf bytes.Buffer
	WriteTable(&buf, sampleReport(), false)
	assert.Contains(t, buf.String(), "openssh")
	assert.Contains(t, buf.String(), "Open ports")
}

func TestWriteTable_NothingSelected(t *testing.T) {
	var buf bytes.Buffer
	WriteTable(&buf, &engine.Report{Target: target.Snapshot{Host: "example.com"}}, true)
	assert.Contains(t, buf.String(), "No findings.")
}

func TestWriteSummary(t *testing.T) {
	report := sampleReport()
	report.Errors = []string{"subdomain_enum: boom"}

	var buf bytes.Buffer
	WriteSummary(&buf, report, true)
	out := buf.String()

	assert.Contains(t, out, "Target: example.com (93.184.216.34)")
	assert.Contains(t, out, "Subdomains: 1 present of 2 checked (reachability)")
	assert.Contains(t, out, "Open ports: 2 open of 3 scanned")
	assert.Contains(t, out, "Domain age: 27.4 years, established")
	assert.Contains(t, out, "! Malicious detections in VirusTotal")
	assert.Contains(t, out, "Zone transfer enabled (1 of 2 nameservers vulnerable)")
	assert.Contains(t, out, "ns2.example.com (14 records)")
	assert.Contains(t, out, "blog.example.com -> old.herokuapp.com (NXDOMAIN)")
	assert.Contains(t, out, "! subdomain_enum: boom")
}

func TestWriteSummary_FailedComponent(t *testing.T) {
	report := &engine.Report{
		Target:   target.Snapshot{Host: "example.com"},
		PortScan: &engine.ScanReport{ComponentStatus: engine.ComponentStatus{Error: "resolve example.com: no such host"}},
	}
	var buf bytes.Buffer
	WriteSummary(&buf, report, true)
	assert.Contains(t, buf.String(), "Open ports: failed: resolve example.com: no such host")
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, false, false, true)
	p.Stage(1, 3, "Probing 54 subdomain labels...")
	p.Detail("hidden")
	p.Warn("port_scan failed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{"[1/3] Probing 54 subdomain labels...", "  ! port_scan failed"}, lines)

	buf.Reset()
	NewProgress(&buf, true, false, true).Detail("shown")
	assert.Equal(t, "  shown\n", buf.String())

	buf.Reset()
	silent := NewProgress(&buf, true, true, true)
	silent.Stage(1, 1, "x")
	silent.Warn("x")
	silent.Complete()
	assert.Empty(t, buf.String())
}
