// Package target holds the subject of a reconnaissance session and the
// findings accumulated against it.
package target

import (
	"context"
	"maps"
	"net"
	"net/url"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// forbiddenHosts are names that always point back at the scanning machine.
var forbiddenHosts = map[string]bool{
	"localhost":             true,
	"localhost.localdomain": true,
	"ip6-localhost":         true,
	"ip6-loopback":          true,
}

// Target is shared by reference across every component of one session.
// Each component appends only to its own fields: the port scanner to
// open ports and services, the subdomain prober to subdomains and the
// OSINT aggregator to intelligence.
type Target struct {
	host string

	resolveMu  sync.Mutex
	resolvedIP string

	mu           sync.RWMutex
	openPorts    map[int]bool
	services     map[int]string
	subdomains   []string
	subdomainSet map[string]bool
	intelligence map[string]map[string]any
}

// New normalizes host and returns a Target for it. The returned error is a
// *ValidationError when host is empty or forbidden.
func New(host string) (*Target, error) {
	t := &Target{
		host:         Normalize(host),
		openPorts:    make(map[int]bool),
		services:     make(map[int]string),
		subdomainSet: make(map[string]bool),
		intelligence: make(map[string]map[string]any),
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Normalize lower-cases host and strips a pasted URL scheme, path, port and
// trailing dot.
func Normalize(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	if strings.Contains(h, "://") {
		if u, err := url.Parse(h); err == nil {
			h = u.Host
		}
	}
	if i := strings.IndexAny(h, "/?#"); i >= 0 {
		h = h[:i]
	}
	if hostPart, _, err := net.SplitHostPort(h); err == nil {
		h = hostPart
	}
	h = strings.TrimSuffix(strings.TrimPrefix(h, "["), "]")
	return strings.TrimSuffix(h, ".")
}

// Host returns the normalized host. It never changes after creation.
func (t *Target) Host() string {
	if t == nil {
		return ""
	}
	return t.host
}

// IsIP reports whether the host is a literal IP address.
func (t *Target) IsIP() bool {
	return net.ParseIP(t.Host()) != nil
}

// Validate is the gate every component runs before touching the network.
func (t *Target) Validate() error {
	if t == nil || t.host == "" {
		return &ValidationError{Reason: "host is empty"}
	}
	if forbiddenHosts[t.host] {
		return &ValidationError{Host: t.host, Reason: "host refers to the local machine"}
	}
	if ip := net.ParseIP(t.host); ip != nil && forbiddenIP(ip) {
		return &ValidationError{Host: t.host, Reason: "loopback or unspecified address"}
	}
	return nil
}

func forbiddenIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsUnspecified()
}

// ResolvedIP returns the memoized address, or "" if the host has not been
// resolved yet.
func (t *Target) ResolvedIP() string {
	t.resolveMu.Lock()
	defer t.resolveMu.Unlock()
	return t.resolvedIP
}

// Resolve returns the host's address, looking it up at most once per Target.
// A literal IP resolves to itself without a lookup. Failed lookups are not
// cached, so a later call may try again.
func (t *Target) Resolve(ctx context.Context, r Resolver) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	t.resolveMu.Lock()
	defer t.resolveMu.Unlock()

	if t.resolvedIP != "" {
		return t.resolvedIP, nil
	}

	if ip := net.ParseIP(t.host); ip != nil {
		t.resolvedIP = ip.String()
		return t.resolvedIP, nil
	}

	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupHost(ctx, t.host)
	if err != nil {
		return "", &ResolutionError{Host: t.host, Err: err}
	}

	ip, forbidden := pickAddress(addrs)
	if ip == "" {
		if forbidden {
			return "", &ValidationError{Host: t.host, Reason: "resolves to a loopback or unspecified address"}
		}
		return "", &ResolutionError{Host: t.host}
	}

	t.resolvedIP = ip
	return ip, nil
}

// pickAddress prefers the first usable IPv4 address, then IPv6. forbidden is
// true when addresses existed but all of them were loopback or unspecified.
func pickAddress(addrs []string) (ip string, forbidden bool) {
	var v6 string
	for _, a := range addrs {
		parsed := net.ParseIP(strings.TrimSpace(a))
		if parsed == nil {
			continue
		}
		if forbiddenIP(parsed) {
			forbidden = true
			continue
		}
		if parsed.To4() != nil {
			return parsed.String(), false
		}
		if v6 == "" {
			v6 = parsed.String()
		}
	}
	if v6 != "" {
		return v6, false
	}
	return "", forbidden
}

// AddOpenPort records an open port and its fingerprint. A port already
// present keeps its place; a non-empty fingerprint refines the stored one.
func (t *Target) AddOpenPort(port int, fingerprint string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openPorts[port] = true
	if fingerprint != "" || t.services[port] == "" {
		t.services[port] = fingerprint
	}
}

// AddSubdomain records a fully-qualified subdomain. It reports whether the
// name was new.
func (t *Target) AddSubdomain(fqdn string) bool {
	fqdn = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(fqdn)), ".")
	if fqdn == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subdomainSet[fqdn] {
		return false
	}
	t.subdomainSet[fqdn] = true
	t.subdomains = append(t.subdomains, fqdn)
	return true
}

// MergeIntelligence merges fields into the findings stored under source.
// Existing fields with other names are kept.
func (t *Target) MergeIntelligence(source string, fields map[string]any) {
	if source == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	dst, ok := t.intelligence[source]
	if !ok {
		dst = make(map[string]any, len(fields))
		t.intelligence[source] = dst
	}
	for k, v := range fields {
		dst[k] = cloneValue(v)
	}
}

// OpenPorts returns the open ports in ascending order.
func (t *Target) OpenPorts() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ports := make([]int, 0, len(t.openPorts))
	for p := range t.openPorts {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports
}

// Service returns the fingerprint stored for port.
func (t *Target) Service(port int) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.services[port]
	return s, ok
}

// Subdomains returns the recorded subdomains in discovery order.
func (t *Target) Subdomains() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.subdomains...)
}

// Intelligence returns a copy of the findings stored under source.
func (t *Target) Intelligence(source string) (map[string]any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	src, ok := t.intelligence[source]
	if !ok {
		return nil, false
	}
	return cloneFields(src), true
}

// Snapshot is an immutable copy of a Target for reports.
type Snapshot struct {
	Host         string                    `json:"host" yaml:"host"`
	ResolvedIP   string                    `json:"resolved_ip,omitempty" yaml:"resolved_ip,omitempty"`
	OpenPorts    []int                     `json:"open_ports" yaml:"open_ports"`
	Services     map[int]string            `json:"services,omitempty" yaml:"services,omitempty"`
	Subdomains   []string                  `json:"subdomains" yaml:"subdomains"`
	Intelligence map[string]map[string]any `json:"intelligence,omitempty" yaml:"intelligence,omitempty"`
}

// Snapshot copies the current state of t.
func (t *Target) Snapshot() Snapshot {
	s := Snapshot{
		Host:       t.Host(),
		ResolvedIP: t.ResolvedIP(),
		OpenPorts:  t.OpenPorts(),
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	s.Subdomains = append([]string{}, t.subdomains...)
	sort.Strings(s.Subdomains)

	if len(t.services) > 0 {
		s.Services = make(map[int]string, len(t.services))
		for p, fp := range t.services {
			s.Services[p] = fp
		}
	}
	if len(t.intelligence) > 0 {
		s.Intelligence = make(map[string]map[string]any, len(t.intelligence))
		for src, fields := range t.intelligence {
			s.Intelligence[src] = cloneFields(fields)
		}
	}
	return s
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue deep-copies the maps and slices findings are built from.
// Other values, including structs, are copied as is.
func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if x == nil {
			return x
		}
		return cloneFields(x)
	case []any:
		if x == nil {
			return x
		}
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(x)
	case []int:
		return slices.Clone(x)
	case map[string]string:
		return maps.Clone(x)
	case map[string]int:
		return maps.Clone(x)
	case map[string][]string:
		if x == nil {
			return x
		}
		out := make(map[string][]string, len(x))
		for k, e := range x {
			out[k] = slices.Clone(e)
		}
		return out
	}
	return v
}
