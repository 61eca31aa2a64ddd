// Package osint gathers open-source intelligence about a target from
// registries, DNS, certificate logs, web archives and keyed reputation APIs.
package osint

import (
	"context"

	"github.com/vulnverified/aegis/internal/target"
)

// Source names as they appear in reports and credentials.
const (
	SourceWhois        = "whois"
	SourceDNS          = "dns"
	SourceCTLogs       = "ct_logs"
	SourceWayback      = "wayback"
	SourceShodan       = "shodan"
	SourceVirusTotal   = "virustotal"
	SourceZoneTransfer = "zone_transfer"
	SourcePassiveDNS   = "passive_dns"
)

// Findings is one source's structured output. An empty Findings means the
// source answered but knew nothing about the target.
type Findings map[string]any

// Source is one intelligence provider. Keyed sources are only queried when
// the caller supplies a credential under the source's name.
type Source interface {
	Name() string
	Keyed() bool
	Query(ctx context.Context, t *target.Target, key string) (Findings, error)
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
