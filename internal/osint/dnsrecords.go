package osint

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/vulnverified/aegis/internal/target"
)

const resolvConf = "/etc/resolv.conf"

// RecordLookup sends one DNS question and returns the raw response.
type RecordLookup interface {
	Lookup(ctx context.Context, name string, qtype uint16) (*dns.Msg, error)
}

// recordTypes are queried in this order for every target.
var recordTypes = []uint16{dns.TypeA, dns.TypeAAAA, dns.TypeMX, dns.TypeNS, dns.TypeTXT, dns.TypeCNAME, dns.TypeSOA}

// StubLookup queries the nameservers configured for the host, trying each in
// turn until one answers.
type StubLookup struct {
	Client  *dns.Client
	Servers []string
}

// NewStubLookup reads the system resolver configuration. When it cannot be
// read the public resolvers are used.
func NewStubLookup(timeout time.Duration) *StubLookup {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	servers := []string{"1.1.1.1:53", "8.8.8.8:53"}
	if cfg, err := dns.ClientConfigFromFile(resolvConf); err == nil && len(cfg.Servers) > 0 {
		servers = servers[:0]
		for _, s := range cfg.Servers {
			servers = append(servers, net.JoinHostPort(s, cfg.Port))
		}
	}
	return &StubLookup{
		Client:  &dns.Client{Timeout: timeout},
		Servers: servers,
	}
}

func (l *StubLookup) Lookup(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true

	var lastErr error
	for _, server := range l.Servers {
		resp, _, err := l.Client.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return resp, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no nameservers configured")
	}
	return nil, fmt.Errorf("dns %s %s: %w", dns.TypeToString[qtype], name, lastErr)
}

// DNSRecords enumerates the target's A, AAAA, MX, NS, TXT, CNAME and SOA
// records and flags a dangling CNAME.
type DNSRecords struct {
	Lookup RecordLookup
}

func (d *DNSRecords) Name() string { return SourceDNS }
func (d *DNSRecords) Keyed() bool  { return false }

func (d *DNSRecords) Query(ctx context.Context, t *target.Target, _ string) (Findings, error) {
	lookup := d.Lookup
	if lookup == nil {
		lookup = NewStubLookup(0)
	}

	host := t.Host()
	if t.IsIP() {
		return d.queryPTR(ctx, lookup, host)
	}

	records := make(map[string][]string, len(recordTypes))
	total := 0
	failures := 0
	var addrRcode int
	var lastErr error

	for _, qtype := range recordTypes {
		key := strings.ToLower(dns.TypeToString[qtype])
		records[key] = []string{}

		resp, err := lookup.Lookup(ctx, host, qtype)
		if err != nil {
			failures++
			lastErr = err
			continue
		}
		if qtype == dns.TypeA {
			addrRcode = resp.Rcode
		}
		for _, rr := range resp.Answer {
			if rr.Header().Rrtype != qtype {
				continue
			}
			if v := formatRR(rr); v != "" {
				records[key] = append(records[key], v)
			}
		}
		total += len(records[key])
	}

	if failures == len(recordTypes) {
		return nil, lastErr
	}

	f := Findings{}
	if total > 0 {
		f["records"] = records
		f["record_count"] = total
	}
	if cnames := records["cname"]; len(cnames) > 0 && len(records["a"]) == 0 && len(records["aaaa"]) == 0 {
		if dc := checkDangling(host, cnames[0], addrRcode); dc != nil {
			f["dangling_cname"] = dc
		}
	}
	return f, nil
}

func (d *DNSRecords) queryPTR(ctx context.Context, lookup RecordLookup, ip string) (Findings, error) {
	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return nil, err
	}
	resp, err := lookup.Lookup(ctx, arpa, dns.TypePTR)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, rr := range resp.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			names = append(names, strings.TrimSuffix(ptr.Ptr, "."))
		}
	}
	if len(names) == 0 {
		return Findings{}, nil
	}
	return Findings{
		"records":      map[string][]string{"ptr": names},
		"record_count": len(names),
	}, nil
}

func formatRR(rr dns.RR) string {
	switch v := rr.(type) {
	case *dns.A:
		return v.A.String()
	case *dns.AAAA:
		return v.AAAA.String()
	case *dns.MX:
		return fmt.Sprintf("%d %s", v.Preference, strings.TrimSuffix(v.Mx, "."))
	case *dns.NS:
		return strings.TrimSuffix(v.Ns, ".")
	case *dns.TXT:
		return strings.Join(v.Txt, "")
	case *dns.CNAME:
		return strings.TrimSuffix(v.Target, ".")
	case *dns.SOA:
		return fmt.Sprintf("%s %s %d %d %d %d %d",
			strings.TrimSuffix(v.Ns, "."), strings.TrimSuffix(v.Mbox, "."),
			v.Serial, v.Refresh, v.Retry, v.Expire, v.Minttl)
	}
	return ""
}

// recordCount reads the record total back out of dns findings.
func recordCount(f Findings) int {
	n, _ := f["record_count"].(int)
	return n
}
