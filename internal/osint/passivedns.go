package osint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/vulnverified/aegis/internal/target"
)

const (
	hackertargetBaseURL = "https://api.hackertarget.com"
	otxBaseURL          = "https://otx.alienvault.com/api/v1"
	hackertargetRateMsg = "API count exceeded"
)

// PassiveDNS collects hostnames observed under the target domain from the
// HackerTarget host search and the AlienVault OTX passive DNS feed.
type PassiveDNS struct {
	Fetcher         *Fetcher
	HackerTargetURL string
	OTXURL          string
}

func (p *PassiveDNS) Name() string { return SourcePassiveDNS }
func (p *PassiveDNS) Keyed() bool  { return false }

func (p *PassiveDNS) Query(ctx context.Context, t *target.Target, _ string) (Findings, error) {
	if t.IsIP() {
		return Findings{}, nil
	}
	domain := t.Host()

	feeds := []struct {
		name  string
		fetch func(context.Context, string) ([]string, error)
	}{
		{"hackertarget", p.hackertarget},
		{"otx", p.otx},
	}

	seen := make(map[string]bool)
	hostnames := []string{}
	counts := make(map[string]int)
	feedErrors := make(map[string]string)
	var errs []error

	for _, feed := range feeds {
		hosts, err := feed.fetch(ctx, domain)
		if err != nil {
			feedErrors[feed.name] = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", feed.name, err))
			continue
		}
		counts[feed.name] = len(hosts)
		for _, h := range hosts {
			if !seen[h] {
				seen[h] = true
				hostnames = append(hostnames, h)
			}
		}
	}

	if len(errs) == len(feeds) {
		return nil, errors.Join(errs...)
	}
	if len(hostnames) == 0 && len(feedErrors) == 0 {
		return Findings{}, nil
	}
	sort.Strings(hostnames)

	f := Findings{
		"hostnames": hostnames,
		"feeds":     counts,
	}
	if len(feedErrors) > 0 {
		f["errors"] = feedErrors
	}
	return f, nil
}

func (p *PassiveDNS) hackertarget(ctx context.Context, domain string) ([]string, error) {
	base := p.HackerTargetURL
	if base == "" {
		base = hackertargetBaseURL
	}
	body, err := p.Fetcher.Get(ctx, SourcePassiveDNS+"/hackertarget", fmt.Sprintf("%s/hostsearch/?q=%s", base, url.QueryEscape(domain)), nil)
	if err != nil {
		return nil, err
	}
	// HackerTarget reports quota exhaustion as a 200 with a text body.
	if strings.Contains(string(body), hackertargetRateMsg) {
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, hackertargetRateMsg)
	}
	return parseHackertargetResponse(string(body), domain), nil
}

func (p *PassiveDNS) otx(ctx context.Context, domain string) ([]string, error) {
	base := p.OTXURL
	if base == "" {
		base = otxBaseURL
	}
	body, err := p.Fetcher.Get(ctx, SourcePassiveDNS+"/otx", fmt.Sprintf("%s/indicators/domain/%s/passive_dns", base, url.PathEscape(domain)), nil)
	if err != nil {
		return nil, err
	}
	return parseOTXResponse(body, domain)
}

// parseHackertargetResponse parses the plain-text "host,ip" response format.
func parseHackertargetResponse(body, domain string) []string {
	var hosts []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		host, _, _ := strings.Cut(line, ",")
		hosts = append(hosts, host)
	}
	return inDomain(hosts, domain)
}

type otxResponse struct {
	PassiveDNS []otxEntry `json:"passive_dns"`
}

type otxEntry struct {
	Hostname string `json:"hostname"`
}

// parseOTXResponse extracts hostnames from the OTX passive DNS JSON response.
func parseOTXResponse(body []byte, domain string) ([]string, error) {
	var resp otxResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("otx JSON parse: %w", err)
	}
	hosts := make([]string, 0, len(resp.PassiveDNS))
	for _, entry := range resp.PassiveDNS {
		hosts = append(hosts, entry.Hostname)
	}
	return inDomain(hosts, domain), nil
}

// inDomain lowercases hosts and keeps the distinct ones equal to or under
// domain, in first-seen order.
func inDomain(hosts []string, domain string) []string {
	domain = strings.ToLower(domain)
	seen := make(map[string]bool)
	var out []string
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(h), "."))
		if h == "" || (h != domain && !strings.HasSuffix(h, "."+domain)) {
			continue
		}
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	return out
}
