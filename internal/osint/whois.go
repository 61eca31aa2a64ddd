package osint

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"golang.org/x/net/publicsuffix"

	"github.com/vulnverified/aegis/internal/target"
)

// WhoisClient performs raw WHOIS queries. *whois.Client satisfies it.
type WhoisClient interface {
	Whois(domain string, servers ...string) (string, error)
}

// Whois looks up the registration record of the target's registrable domain,
// or the network allocation of a literal IP.
type Whois struct {
	Client WhoisClient
}

// NewWhois returns a Whois source with its own client.
func NewWhois(timeout time.Duration) *Whois {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Whois{Client: whois.NewClient().SetTimeout(timeout)}
}

func (w *Whois) Name() string { return SourceWhois }
func (w *Whois) Keyed() bool  { return false }

func (w *Whois) Query(ctx context.Context, t *target.Target, _ string) (Findings, error) {
	if t.IsIP() {
		raw, err := w.lookup(ctx, t.Host())
		if err != nil {
			return nil, err
		}
		return parseIPWhois(raw), nil
	}

	domain := RegistrableDomain(t.Host())
	raw, err := w.lookup(ctx, domain)
	if err != nil {
		return nil, err
	}

	info, err := whoisparser.Parse(raw)
	if err != nil {
		if errors.Is(err, whoisparser.ErrNotFoundDomain) {
			return Findings{}, nil
		}
		return nil, fmt.Errorf("whois parse for %s: %w", domain, err)
	}

	f := Findings{"domain": domain}
	if info.Registrar != nil {
		f["registrar"] = info.Registrar.Name
	}
	if info.Registrant != nil && info.Registrant.Organization != "" {
		f["registrant_org"] = info.Registrant.Organization
	}
	if d := info.Domain; d != nil {
		f["creation_date"] = d.CreatedDate
		f["expiration_date"] = d.ExpirationDate
		f["updated_date"] = d.UpdatedDate
		f["name_servers"] = lowerAll(d.NameServers)
		f["domain_status"] = stringsOrEmpty(d.Status)
	}
	f["emails"] = whoisEmails(info)
	return f, nil
}

func (w *Whois) lookup(ctx context.Context, query string) (string, error) {
	client := w.Client
	if client == nil {
		client = whois.NewClient().SetTimeout(defaultFetchTimeout)
	}

	type result struct {
		raw string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		raw, err := client.Whois(query)
		ch <- result{raw: raw, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("whois lookup for %s: %w", query, r.err)
		}
		return r.raw, nil
	}
}

// RegistrableDomain returns the eTLD+1 of host, or host itself when it has
// none (an IP, a bare suffix or a single label).
func RegistrableDomain(host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

func whoisEmails(info whoisparser.WhoisInfo) []string {
	seen := make(map[string]bool)
	for _, c := range []*whoisparser.Contact{info.Registrant, info.Administrative, info.Technical, info.Registrar} {
		if c == nil || c.Email == "" {
			continue
		}
		seen[strings.ToLower(c.Email)] = true
	}
	emails := make([]string, 0, len(seen))
	for e := range seen {
		emails = append(emails, e)
	}
	sort.Strings(emails)
	return emails
}

// ipWhoisKeys maps the labels used by the regional registries to findings
// keys. The first value seen for a key wins.
var ipWhoisKeys = map[string]string{
	"orgname":      "org",
	"org-name":     "org",
	"organization": "org",
	"owner":        "org",
	"netname":      "net_name",
	"netrange":     "net_range",
	"inetnum":      "net_range",
	"cidr":         "cidr",
	"country":      "country",
	"originas":     "asn",
	"origin":       "asn",
	"regdate":      "creation_date",
	"created":      "creation_date",
}

func parseIPWhois(raw string) Findings {
	f := Findings{}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "%") || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key, found := ipWhoisKeys[strings.ToLower(strings.TrimSpace(k))]
		v = strings.TrimSpace(v)
		if !found || v == "" {
			continue
		}
		if _, exists := f[key]; !exists {
			f[key] = v
		}
	}
	return f
}

func lowerAll(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		out = append(out, strings.ToLower(strings.TrimSuffix(s, ".")))
	}
	return out
}
