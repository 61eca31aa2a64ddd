package osint

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/vulnverified/aegis/internal/target"
)

const (
	waybackBaseURL     = "http://web.archive.org/cdx/search/cdx"
	waybackLimit       = 50
	waybackSampleLimit = 5
)

// Wayback summarizes the Internet Archive's captures under the target host.
type Wayback struct {
	Fetcher *Fetcher
	BaseURL string
}

func (w *Wayback) Name() string { return SourceWayback }
func (w *Wayback) Keyed() bool  { return false }

func (w *Wayback) Query(ctx context.Context, t *target.Target, _ string) (Findings, error) {
	base := w.BaseURL
	if base == "" {
		base = waybackBaseURL
	}
	q := url.Values{}
	q.Set("url", "*."+t.Host()+"/*")
	q.Set("output", "json")
	q.Set("collapse", "urlkey")
	q.Set("limit", fmt.Sprint(waybackLimit))

	body, err := w.Fetcher.Get(ctx, SourceWayback, base+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("wayback fetch for %s: %w", t.Host(), err)
	}
	if len(body) == 0 {
		return Findings{}, nil
	}

	var rows [][]string
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("wayback JSON parse: %w", err)
	}
	return summarizeCDX(rows), nil
}

// summarizeCDX reads CDX rows (urlkey, timestamp, original, ...) after the
// header row. Timestamps are 14-digit strings, so they order lexically.
func summarizeCDX(rows [][]string) Findings {
	if len(rows) < 2 {
		return Findings{}
	}
	rows = rows[1:]

	var first, last string
	samples := []string{}
	snapshots := 0
	for _, row := range rows {
		if len(row) < 3 {
			continue
		}
		snapshots++
		ts := row[1]
		if first == "" || ts < first {
			first = ts
		}
		if ts > last {
			last = ts
		}
		if len(samples) < waybackSampleLimit {
			samples = append(samples, row[2])
		}
	}
	if snapshots == 0 {
		return Findings{}
	}
	return Findings{
		"total_snapshots": snapshots,
		"first_capture":   first,
		"last_capture":    last,
		"sample_urls":     samples,
	}
}
