package osint

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"

	"github.com/vulnverified/aegis/internal/target"
)

const virusTotalBaseURL = "https://www.virustotal.com/api/v3"

type vtResponse struct {
	Data struct {
		Attributes vtAttributes `json:"attributes"`
	} `json:"data"`
}

type vtAttributes struct {
	Reputation          int                       `json:"reputation"`
	LastAnalysisStats   map[string]int            `json:"last_analysis_stats"`
	Categories          map[string]string         `json:"categories"`
	LastAnalysisResults map[string]vtEngineResult `json:"last_analysis_results"`
}

type vtEngineResult struct {
	Category   string `json:"category"`
	Result     string `json:"result"`
	EngineName string `json:"engine_name"`
}

// VirusTotal fetches the reputation and detection statistics of the target
// domain or IP.
type VirusTotal struct {
	Fetcher *Fetcher
	BaseURL string
}

func (v *VirusTotal) Name() string { return SourceVirusTotal }
func (v *VirusTotal) Keyed() bool  { return true }

func (v *VirusTotal) Query(ctx context.Context, t *target.Target, key string) (Findings, error) {
	base := v.BaseURL
	if base == "" {
		base = virusTotalBaseURL
	}
	kind := "domains"
	if t.IsIP() {
		kind = "ip_addresses"
	}
	u := fmt.Sprintf("%s/%s/%s", base, kind, url.PathEscape(t.Host()))

	var resp vtResponse
	if err := v.Fetcher.GetJSON(ctx, SourceVirusTotal, u, map[string]string{"x-apikey": key}, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Findings{}, nil
		}
		return nil, redactKey(err, key)
	}

	attrs := resp.Data.Attributes
	stats := attrs.LastAnalysisStats
	if stats == nil {
		stats = map[string]int{}
	}

	return Findings{
		"reputation_score":    attrs.Reputation,
		"last_analysis_stats": stats,
		"categories":          vtCategories(attrs.Categories),
		"flagged_by":          vtFlaggedBy(attrs.LastAnalysisResults),
	}, nil
}

func vtCategories(byVendor map[string]string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, c := range byVendor {
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// vtFlaggedBy lists engines that rated the target malicious or suspicious.
func vtFlaggedBy(results map[string]vtEngineResult) []string {
	out := []string{}
	for name, r := range results {
		if r.Category != "malicious" && r.Category != "suspicious" {
			continue
		}
		if r.EngineName != "" {
			name = r.EngineName
		}
		out = append(out, fmt.Sprintf("%s: %s", name, r.Result))
	}
	sort.Strings(out)
	return out
}

// reputationSignals reads the malicious and suspicious counts back out of
// virustotal findings.
func reputationSignals(f Findings) (malicious, suspicious int) {
	stats, _ := f["last_analysis_stats"].(map[string]int)
	return stats["malicious"], stats["suspicious"]
}
