package osint

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/vulnverified/aegis/internal/target"
)

const (
	axfrDialTimeout = 10 * time.Second
	axfrReadTimeout = 30 * time.Second
)

// AXFRFunc performs one zone transfer of domain against nameserver and
// returns the in-zone hostnames it yielded.
type AXFRFunc func(ctx context.Context, domain, nameserver string) ([]string, error)

// ZoneTransferAttempt is the outcome of AXFR against one nameserver.
type ZoneTransferAttempt struct {
	Nameserver string `json:"nameserver" yaml:"nameserver"`
	Success    bool   `json:"success" yaml:"success"`
	Records    int    `json:"records" yaml:"records"`
}

// ZoneTransfer tests every authoritative nameserver of the target for an
// open AXFR. A refused transfer is the normal case, not an error.
type ZoneTransfer struct {
	Lookup   RecordLookup
	Transfer AXFRFunc
}

func (z *ZoneTransfer) Name() string { return SourceZoneTransfer }
func (z *ZoneTransfer) Keyed() bool  { return false }

func (z *ZoneTransfer) Query(ctx context.Context, t *target.Target, _ string) (Findings, error) {
	if t.IsIP() {
		return Findings{}, nil
	}
	lookup := z.Lookup
	if lookup == nil {
		lookup = NewStubLookup(0)
	}
	transfer := z.Transfer
	if transfer == nil {
		transfer = attemptAXFR
	}

	domain := t.Host()
	resp, err := lookup.Lookup(ctx, domain, dns.TypeNS)
	if err != nil {
		return nil, fmt.Errorf("NS lookup for %s: %w", domain, err)
	}
	var nameservers []string
	for _, rr := range resp.Answer {
		if ns, ok := rr.(*dns.NS); ok {
			nameservers = append(nameservers, strings.TrimSuffix(ns.Ns, "."))
		}
	}
	if len(nameservers) == 0 {
		return Findings{}, nil
	}
	sort.Strings(nameservers)

	attempts := make([]ZoneTransferAttempt, 0, len(nameservers))
	seen := make(map[string]bool)
	hostnames := []string{}
	vulnerable := false

	for _, ns := range nameservers {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		attempt := ZoneTransferAttempt{Nameserver: ns}
		names, err := transfer(ctx, domain, ns)
		if err == nil {
			attempt.Success = true
			attempt.Records = len(names)
			vulnerable = true
			for _, h := range names {
				if !seen[h] {
					seen[h] = true
					hostnames = append(hostnames, h)
				}
			}
		}
		attempts = append(attempts, attempt)
	}
	sort.Strings(hostnames)

	return Findings{
		"nameservers": nameservers,
		"attempts":    attempts,
		"vulnerable":  vulnerable,
		"hostnames":   hostnames,
	}, nil
}

// attemptAXFR performs a DNS zone transfer against a single nameserver.
func attemptAXFR(_ context.Context, domain, nameserver string) ([]string, error) {
	tr := &dns.Transfer{
		DialTimeout: axfrDialTimeout,
		ReadTimeout: axfrReadTimeout,
	}

	msg := new(dns.Msg)
	msg.SetAxfr(dns.Fqdn(domain))

	channel, err := tr.In(msg, net.JoinHostPort(nameserver, "53"))
	if err != nil {
		return nil, fmt.Errorf("AXFR to %s: %w", nameserver, err)
	}

	var rrs []dns.RR
	for envelope := range channel {
		if envelope.Error != nil {
			return nil, fmt.Errorf("AXFR envelope from %s: %w", nameserver, envelope.Error)
		}
		rrs = append(rrs, envelope.RR...)
	}
	return zoneHostnames(domain, rrs), nil
}

// zoneHostnames returns the distinct owner names of rrs inside domain.
func zoneHostnames(domain string, rrs []dns.RR) []string {
	domain = strings.ToLower(domain)
	suffix := "." + domain
	seen := make(map[string]bool)
	var hostnames []string
	for _, rr := range rrs {
		name := strings.ToLower(strings.TrimSuffix(rr.Header().Name, "."))
		if name == "" || (name != domain && !strings.HasSuffix(name, suffix)) {
			continue
		}
		if !seen[name] {
			seen[name] = true
			hostnames = append(hostnames, name)
		}
	}
	return hostnames
}
