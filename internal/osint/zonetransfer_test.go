package osint

import (
	"context"
	"errors"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZoneTransfer_OpenNameserver(t *testing.T) {
	lookup := &fakeLookup{answers: map[uint16]*dns.Msg{
		dns.TypeNS: answer(
			&dns.NS{Hdr: hdr("example.com", dns.TypeNS), Ns: "ns2.example.com."},
			&dns.NS{Hdr: hdr("example.com", dns.TypeNS), Ns: "ns1.example.com."},
		),
	}}
	var tried []string
	transfer := func(_ context.Context, domain, ns string) ([]string, error) {
		tried = append(tried, ns)
		if ns == "ns1.example.com" {
			return nil, errors.New("transfer refused")
		}
		return []string{"www.example.com", "vpn.example.com", "www.example.com"}, nil
	}

	src := &ZoneTransfer{Lookup: lookup, Transfer: transfer}
	f, err := src.Query(context.Background(), mustTarget(t, "example.com"), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"ns1.example.com", "ns2.example.com"}, tried)
	assert.Equal(t, true, f["vulnerable"])
	assert.Equal(t, []string{"vpn.example.com", "www.example.com"}, f["hostnames"])
	assert.Equal(t, []ZoneTransferAttempt{
		{Nameserver: "ns1.example.com"},
		{Nameserver: "ns2.example.com", Success: true, Records: 3},
	}, f["attempts"])
}

func TestZoneTransfer_AllRefused(t *testing.T) {
	lookup := &fakeLookup{answers: map[uint16]*dns.Msg{
		dns.TypeNS: answer(&dns.NS{Hdr: hdr("example.com", dns.TypeNS), Ns: "ns1.example.com."}),
	}}
	transfer := func(context.Context, string, string) ([]string, error) {
		return nil, errors.New("transfer refused")
	}

	f, err := (&ZoneTransfer{Lookup: lookup, Transfer: transfer}).Query(context.Background(), mustTarget(t, "example.com"), "")
	require.NoError(t, err)
	assert.Equal(t, false, f["vulnerable"])
	assert.Equal(t, []string{}, f["hostnames"])
}

func TestZoneTransfer_NoNameservers(t *testing.T) {
	called := false
	transfer := func(context.Context, string, string) ([]string, error) {
		called = true
		return nil, nil
	}
	f, err := (&ZoneTransfer{Lookup: &fakeLookup{}, Transfer: transfer}).Query(context.Background(), mustTarget(t, "example.com"), "")
	require.NoError(t, err)
	assert.Empty(t, f)
	assert.False(t, called)
}

func TestZoneTransfer_NSLookupFails(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("SERVFAIL")}
	_, err := (&ZoneTransfer{Lookup: lookup}).Query(context.Background(), mustTarget(t, "example.com"), "")
	assert.ErrorContains(t, err, "NS lookup for example.com")
}

func TestZoneHostnames(t *testing.T) {
	rrs := []dns.RR{
		&dns.SOA{Hdr: hdr("example.com", dns.TypeSOA)},
		&dns.A{Hdr: hdr("WWW.example.com", dns.TypeA)},
		&dns.A{Hdr: hdr("www.example.com", dns.TypeA)},
		&dns.CNAME{Hdr: hdr("mail.example.com", dns.TypeCNAME)},
		&dns.A{Hdr: hdr("glue.example.net", dns.TypeA)},
	}
	assert.Equal(t, []string{"example.com", "www.example.com", "mail.example.com"}, zoneHostnames("example.com", rrs))
}
