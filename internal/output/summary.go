package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/vulnverified/aegis/internal/engine"
	"github.com/vulnverified/aegis/internal/osint"
)

// Version is set via ldflags at build time.
var Version = "dev"

func bold(s string, noColor bool) string {
	if noColor {
		return s
	}
	return "\033[1m" + s + "\033[0m"
}

func alert(noColor bool) string {
	if noColor {
		return "!"
	}
	return "\033[33m!\033[0m"
}

// WriteHeader prints the aegis banner.
func WriteHeader(w io.Writer, noColor bool) {
	fmt.Fprintf(w, "%s - reconnaissance engine\n\n", bold("aegis "+Version, noColor))
}

// WriteSummary prints the post-run summary: per-component status, headline
// counts, the threat assessment and any takeover or zone transfer alerts.
func WriteSummary(w io.Writer, report *engine.Report, noColor bool) {
	tgt := report.Target

	fmt.Fprintln(w)
	host := tgt.Host
	if tgt.ResolvedIP != "" && tgt.ResolvedIP != tgt.Host {
		host += " (" + tgt.ResolvedIP + ")"
	}
	fmt.Fprintf(w, "%s %s\n", bold("Target:", noColor), host)

	if r := report.Subdomains; r != nil {
		line := statusLine(r.ComponentStatus)
		if r.Outcome != nil {
			line = fmt.Sprintf("%d present of %d checked (%s)", len(r.Outcome.Present), r.Outcome.Checked, r.Outcome.Mode)
		}
		fmt.Fprintf(w, "%s %s\n", bold("Subdomains:", noColor), line)
	}
	if r := report.PortScan; r != nil {
		line := statusLine(r.ComponentStatus)
		if r.Outcome != nil {
			line = fmt.Sprintf("%d open of %d scanned", len(r.Outcome.Open), r.Outcome.PortsScanned)
		}
		fmt.Fprintf(w, "%s %s\n", bold("Open ports:", noColor), line)
	}
	if r := report.OSINT; r != nil {
		if r.Outcome == nil {
			fmt.Fprintf(w, "%s %s\n", bold("Threat level:", noColor), statusLine(r.ComponentStatus))
		} else {
			writeIntelSummary(w, r.Outcome, noColor)
		}
	}

	writeAlerts(w, tgt.Intelligence, noColor)

	if len(report.Errors) > 0 {
		fmt.Fprintln(w)
		for _, e := range report.Errors {
			fmt.Fprintf(w, "%s %s\n", alert(noColor), e)
		}
	}
	fmt.Fprintf(w, "\nCompleted in %.1fs\n", report.DurationSecs)
}

func statusLine(s engine.ComponentStatus) string {
	if s.Success {
		return "ok"
	}
	return "failed: " + s.Error
}

func writeIntelSummary(w io.Writer, out *engine.IntelOutcome, noColor bool) {
	fmt.Fprintf(w, "%s %s (score %d)\n", bold("Threat level:", noColor), out.Threat.Level, out.Threat.Score)
	if age := out.DomainAge; age != nil {
		fmt.Fprintf(w, "%s %.1f years, %s\n", bold("Domain age:", noColor), age.Years, age.Reputation)
	}
	fmt.Fprintf(w, "%s %d CT subdomains, %d DNS records\n", bold("Intelligence:", noColor),
		out.Summary.SubdomainsFound, out.Summary.DNSRecords)

	for _, warning := range out.Threat.Warnings {
		fmt.Fprintf(w, "%s %s\n", alert(noColor), warning)
	}
	if len(out.Threat.Recommendations) > 0 {
		fmt.Fprintln(w, "Recommendations:")
		for _, rec := range out.Threat.Recommendations {
			fmt.Fprintf(w, "  - %s\n", rec)
		}
	}
}

func writeAlerts(w io.Writer, intel map[string]map[string]any, noColor bool) {
	if zt, ok := intel[osint.SourceZoneTransfer]; ok {
		attempts, _ := zt["attempts"].([]osint.ZoneTransferAttempt)
		var open []string
		for _, a := range attempts {
			if a.Success {
				open = append(open, fmt.Sprintf("%s (%d records)", a.Nameserver, a.Records))
			}
		}
		if len(open) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintf(w, "%s Zone transfer enabled (%d of %d nameservers vulnerable)\n", alert(noColor), len(open), len(attempts))
			fmt.Fprintf(w, "  %s\n", strings.Join(open, "\n  "))
		}
	}

	if records, ok := intel[osint.SourceDNS]; ok {
		if dc, ok := records["dangling_cname"].(*osint.DanglingCNAME); ok && dc != nil {
			fmt.Fprintln(w)
			fmt.Fprintf(w, "%s Potential dangling CNAME (possible subdomain takeover)\n", alert(noColor))
			fmt.Fprintf(w, "  %s -> %s (%s)\n", dc.Host, dc.CNAME, dc.Status)
		}
	}
}
