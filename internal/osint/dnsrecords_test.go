package osint

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	mu      sync.Mutex
	answers map[uint16]*dns.Msg
	err     error
	names   []string
}

func (f *fakeLookup) Lookup(_ context.Context, name string, qtype uint16) (*dns.Msg, error) {
	f.mu.Lock()
	f.names = append(f.names, name)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if m, ok := f.answers[qtype]; ok {
		return m, nil
	}
	return new(dns.Msg), nil
}

func answer(rrs ...dns.RR) *dns.Msg {
	m := new(dns.Msg)
	m.Answer = rrs
	return m
}

func hdr(name string, rrtype uint16) dns.RR_Header {
	return dns.RR_Header{Name: dns.Fqdn(name), Rrtype: rrtype, Class: dns.ClassINET, Ttl: 300}
}

func TestDNSRecords_Query(t *testing.T) {
	lookup := &fakeLookup{answers: map[uint16]*dns.Msg{
		dns.TypeA:  answer(&dns.A{Hdr: hdr("example.com", dns.TypeA), A: net.ParseIP("93.184.216.34")}),
		dns.TypeMX: answer(&dns.MX{Hdr: hdr("example.com", dns.TypeMX), Preference: 10, Mx: "mail.example.com."}),
		dns.TypeNS: answer(
			&dns.NS{Hdr: hdr("example.com", dns.TypeNS), Ns: "a.iana-servers.net."},
			&dns.NS{Hdr: hdr("example.com", dns.TypeNS), Ns: "b.iana-servers.net."},
		),
		dns.TypeTXT: answer(&dns.TXT{Hdr: hdr("example.com", dns.TypeTXT), Txt: []string{"v=spf1 ", "-all"}}),
		dns.TypeSOA: answer(&dns.SOA{
			Hdr: hdr("example.com", dns.TypeSOA), Ns: "ns.icann.org.", Mbox: "noc.dns.icann.org.",
			Serial: 2024010101, Refresh: 7200, Retry: 3600, Expire: 1209600, Minttl: 3600,
		}),
	}}

	src := &DNSRecords{Lookup: lookup}
	f, err := src.Query(context.Background(), mustTarget(t, "example.com"), "")
	require.NoError(t, err)

	records := f["records"].(map[string][]string)
	assert.Equal(t, []string{"93.184.216.34"}, records["a"])
	assert.Equal(t, []string{}, records["aaaa"])
	assert.Equal(t, []string{"10 mail.example.com"}, records["mx"])
	assert.Equal(t, []string{"a.iana-servers.net", "b.iana-servers.net"}, records["ns"])
	assert.Equal(t, []string{"v=spf1 -all"}, records["txt"])
	assert.Equal(t, []string{"ns.icann.org noc.dns.icann.org 2024010101 7200 3600 1209600 3600"}, records["soa"])
	assert.Len(t, records, 7)
	assert.Equal(t, 6, recordCount(f))
	assert.NotContains(t, f, "dangling_cname")
	assert.Len(t, lookup.names, len(recordTypes))
}

func TestDNSRecords_IgnoresOtherAnswerTypes(t *testing.T) {
	// A resolver answering an A question for an alias includes the CNAME.
	lookup := &fakeLookup{answers: map[uint16]*dns.Msg{
		dns.TypeA: answer(
			&dns.CNAME{Hdr: hdr("www.example.com", dns.TypeCNAME), Target: "example.com."},
			&dns.A{Hdr: hdr("example.com", dns.TypeA), A: net.ParseIP("93.184.216.34")},
		),
	}}

	f, err := (&DNSRecords{Lookup: lookup}).Query(context.Background(), mustTarget(t, "www.example.com"), "")
	require.NoError(t, err)
	records := f["records"].(map[string][]string)
	assert.Equal(t, []string{"93.184.216.34"}, records["a"])
	assert.Equal(t, 1, recordCount(f))
}

func TestDNSRecords_DanglingCNAME(t *testing.T) {
	nx := new(dns.Msg)
	nx.Rcode = dns.RcodeNameError
	lookup := &fakeLookup{answers: map[uint16]*dns.Msg{
		dns.TypeA:     nx,
		dns.TypeCNAME: answer(&dns.CNAME{Hdr: hdr("blog.example.com", dns.TypeCNAME), Target: "old-blog.herokuapp.com."}),
	}}

	f, err := (&DNSRecords{Lookup: lookup}).Query(context.Background(), mustTarget(t, "blog.example.com"), "")
	require.NoError(t, err)
	assert.Equal(t, &DanglingCNAME{Host: "blog.example.com", CNAME: "old-blog.herokuapp.com", Status: "NXDOMAIN"}, f["dangling_cname"])
}

func TestDNSRecords_NoRecords(t *testing.T) {
	f, err := (&DNSRecords{Lookup: &fakeLookup{}}).Query(context.Background(), mustTarget(t, "example.com"), "")
	require.NoError(t, err)
	assert.Empty(t, f)
	assert.Zero(t, recordCount(f))
}

func TestDNSRecords_AllLookupsFail(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("i/o timeout")}
	_, err := (&DNSRecords{Lookup: lookup}).Query(context.Background(), mustTarget(t, "example.com"), "")
	assert.ErrorContains(t, err, "i/o timeout")
}

func TestDNSRecords_ReverseLookupForIP(t *testing.T) {
	lookup := &fakeLookup{answers: map[uint16]*dns.Msg{
		dns.TypePTR: answer(&dns.PTR{Hdr: hdr("34.216.184.93.in-addr.arpa", dns.TypePTR), Ptr: "host.example.net."}),
	}}

	f, err := (&DNSRecords{Lookup: lookup}).Query(context.Background(), mustTarget(t, "93.184.216.34"), "")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"ptr": {"host.example.net"}}, f["records"])
	assert.Equal(t, []string{"34.216.184.93.in-addr.arpa."}, lookup.names)
}
