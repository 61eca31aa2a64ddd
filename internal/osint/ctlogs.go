package osint

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/vulnverified/aegis/internal/target"
)

const (
	crtshBaseURL       = "https://crt.sh/"
	ctRecentWindow     = 20
	ctRecentCertsLimit = 5
)

type crtshEntry struct {
	ID         int64  `json:"id"`
	IssuerName string `json:"issuer_name"`
	NameValue  string `json:"name_value"`
	NotBefore  string `json:"not_before"`
	NotAfter   string `json:"not_after"`
}

// CTCertificate is a certificate summary from the transparency logs.
type CTCertificate struct {
	ID        int64  `json:"id" yaml:"id"`
	Issuer    string `json:"issuer" yaml:"issuer"`
	NotBefore string `json:"not_before" yaml:"not_before"`
	NotAfter  string `json:"not_after" yaml:"not_after"`
}

// CTLogs queries crt.sh for certificates issued under the target host.
type CTLogs struct {
	Fetcher *Fetcher
	BaseURL string
}

func (c *CTLogs) Name() string { return SourceCTLogs }
func (c *CTLogs) Keyed() bool  { return false }

func (c *CTLogs) Query(ctx context.Context, t *target.Target, _ string) (Findings, error) {
	host := t.Host()
	base := c.BaseURL
	if base == "" {
		base = crtshBaseURL
	}
	u := fmt.Sprintf("%s?q=%s&output=json", base, url.QueryEscape("%."+host))

	body, err := c.Fetcher.Get(ctx, SourceCTLogs, u, nil)
	if err != nil {
		return nil, fmt.Errorf("crt.sh fetch for %s: %w", host, err)
	}

	entries, err := parseCrtshResponse(body)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return Findings{}, nil
	}

	var recent []CTCertificate
	for i, e := range entries {
		if i >= ctRecentWindow || len(recent) >= ctRecentCertsLimit {
			break
		}
		recent = append(recent, CTCertificate{
			ID:        e.ID,
			Issuer:    e.IssuerName,
			NotBefore: e.NotBefore,
			NotAfter:  e.NotAfter,
		})
	}

	return Findings{
		"subdomains":          extractCTNames(entries, host),
		"certificates_found":  len(entries),
		"recent_certificates": recent,
	}, nil
}

func parseCrtshResponse(body []byte) ([]crtshEntry, error) {
	var entries []crtshEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("crt.sh JSON parse: %w", err)
	}
	return entries, nil
}

// extractCTNames returns the sorted, deduplicated certificate names that
// contain host. Wildcard prefixes are stripped.
func extractCTNames(entries []crtshEntry, host string) []string {
	seen := make(map[string]bool)
	names := []string{}
	for _, entry := range entries {
		// name_value can contain multiple names separated by newlines.
		for _, name := range strings.Split(entry.NameValue, "\n") {
			name = strings.TrimPrefix(strings.TrimSpace(strings.ToLower(name)), "*.")
			if name == "" || !strings.Contains(name, host) {
				continue
			}
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// ctSubdomainCount reads the subdomain count back out of ct_logs findings.
func ctSubdomainCount(f Findings) int {
	names, _ := f["subdomains"].([]string)
	return len(names)
}
