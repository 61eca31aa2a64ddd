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

const shodanBaseURL = "https://api.shodan.io"

// shodanHost covers both /shodan/host/{ip} responses and the banners
// returned as search matches.
type shodanHost struct {
	IPStr       string         `json:"ip_str"`
	Ports       []int          `json:"ports"`
	Port        int            `json:"port"`
	Product     string         `json:"product"`
	Version     string         `json:"version"`
	Vulns       shodanVulns    `json:"vulns"`
	City        string         `json:"city"`
	CountryName string         `json:"country_name"`
	Location    shodanLocation `json:"location"`
	Org         string         `json:"org"`
	ISP         string         `json:"isp"`
	ASN         string         `json:"asn"`
	Hostnames   []string       `json:"hostnames"`
	Domains     []string       `json:"domains"`
	Tags        []string       `json:"tags"`
	LastUpdate  string         `json:"last_update"`
	Timestamp   string         `json:"timestamp"`
	Data        []shodanBanner `json:"data"`
}

type shodanLocation struct {
	City        string `json:"city"`
	CountryName string `json:"country_name"`
}

type shodanBanner struct {
	Port    int    `json:"port"`
	Product string `json:"product"`
	Version string `json:"version"`
}

type shodanSearch struct {
	Total   int          `json:"total"`
	Matches []shodanHost `json:"matches"`
}

// shodanVulns accepts the CVE list as an array (host lookups) or as an
// object keyed by CVE (search matches).
type shodanVulns []string

func (v *shodanVulns) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*v = list
		return nil
	}
	var byID map[string]json.RawMessage
	if err := json.Unmarshal(b, &byID); err != nil {
		return err
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	*v = ids
	return nil
}

// ShodanService is one exposed service seen by Shodan.
type ShodanService struct {
	Port    int    `json:"port" yaml:"port"`
	Service string `json:"service" yaml:"service"`
	Version string `json:"version" yaml:"version"`
}

// Shodan looks up the host and service exposure Shodan has indexed. A
// literal IP uses the host endpoint; a hostname uses the first search match.
type Shodan struct {
	Fetcher *Fetcher
	BaseURL string
}

func (s *Shodan) Name() string { return SourceShodan }
func (s *Shodan) Keyed() bool  { return true }

func (s *Shodan) Query(ctx context.Context, t *target.Target, key string) (Findings, error) {
	host, err := s.lookup(ctx, t, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Findings{}, nil
		}
		return nil, redactKey(err, key)
	}
	if host == nil {
		return Findings{}, nil
	}
	return shodanFindings(host), nil
}

func (s *Shodan) lookup(ctx context.Context, t *target.Target, key string) (*shodanHost, error) {
	base := s.BaseURL
	if base == "" {
		base = shodanBaseURL
	}

	if t.IsIP() {
		var host shodanHost
		u := fmt.Sprintf("%s/shodan/host/%s?key=%s", base, url.PathEscape(t.Host()), url.QueryEscape(key))
		if err := s.Fetcher.GetJSON(ctx, SourceShodan, u, nil, &host); err != nil {
			return nil, err
		}
		return &host, nil
	}

	var res shodanSearch
	u := fmt.Sprintf("%s/shodan/host/search?key=%s&query=%s", base, url.QueryEscape(key), url.QueryEscape("hostname:"+t.Host()))
	if err := s.Fetcher.GetJSON(ctx, SourceShodan, u, nil, &res); err != nil {
		return nil, err
	}
	if len(res.Matches) == 0 {
		return nil, nil
	}
	return &res.Matches[0], nil
}

func shodanFindings(h *shodanHost) Findings {
	ports := h.Ports
	if len(ports) == 0 && h.Port > 0 {
		ports = []int{h.Port}
	}
	sort.Ints(ports)

	banners := h.Data
	if len(banners) == 0 && h.Port > 0 {
		banners = []shodanBanner{{Port: h.Port, Product: h.Product, Version: h.Version}}
	}
	services := make([]ShodanService, 0, len(ports))
	for _, p := range ports {
		svc := ShodanService{Port: p, Service: "unknown", Version: "unknown"}
		for _, b := range banners {
			if b.Port != p {
				continue
			}
			if b.Product != "" {
				svc.Service = b.Product
			}
			if b.Version != "" {
				svc.Version = b.Version
			}
			break
		}
		services = append(services, svc)
	}

	city, country := h.City, h.CountryName
	if city == "" {
		city = h.Location.City
	}
	if country == "" {
		country = h.Location.CountryName
	}
	lastUpdate := h.LastUpdate
	if lastUpdate == "" {
		lastUpdate = h.Timestamp
	}

	return Findings{
		"ip":              h.IPStr,
		"ports":           ports,
		"services":        services,
		"vulnerabilities": stringsOrEmpty(h.Vulns),
		"geolocation":     map[string]string{"city": city, "country": country},
		"org":             h.Org,
		"isp":             h.ISP,
		"asn":             h.ASN,
		"hostnames":       stringsOrEmpty(h.Hostnames),
		"domains":         stringsOrEmpty(h.Domains),
		"tags":            stringsOrEmpty(h.Tags),
		"last_update":     lastUpdate,
	}
}

// shodanSignals reads the port and vulnerability counts back out of
// shodan findings.
func shodanSignals(f Findings) (ports, vulns int) {
	p, _ := f["ports"].([]int)
	v, _ := f["vulnerabilities"].([]string)
	return len(p), len(v)
}

// redactKey removes an API key from an error message, since transport errors
// quote the request URL.
func redactKey(err error, key string) error {
	if err == nil || key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), key, "REDACTED"))
}
