package target

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingResolver struct {
	addrs []string
	err   error
	calls atomic.Int32
}

func (r *countingResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	r.calls.Add(1)
	return r.addrs, r.err
}

func TestNew_RejectsForbiddenHosts(t *testing.T) {
	tests := []struct {
		name string
		host string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"localhost", "localhost"},
		{"ipv4 loopback", "127.0.0.1"},
		{"ipv6 loopback", "::1"},
		{"bracketed ipv6 loopback", "[::1]"},
		{"unspecified", "0.0.0.0"},
		{"loopback url", "http://127.0.0.1:8080/admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg, err := New(tt.host)
			require.Error(t, err)
			assert.Nil(t, tg)
			assert.True(t, errors.Is(err, ErrInvalidTarget))

			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"Example.COM":                   "example.com",
		"example.com.":                  "example.com",
		"https://www.example.com/login": "www.example.com",
		"example.com:8443":              "example.com",
		"  10.0.0.1 ":                   "10.0.0.1",
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestResolve_MemoizesAddress(t *testing.T) {
	tg, err := New("test.local")
	require.NoError(t, err)

	r := &countingResolver{addrs: []string{"10.0.0.5"}}

	first, err := tg.Resolve(context.Background(), r)
	require.NoError(t, err)
	second, err := tg.Resolve(context.Background(), r)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, "10.0.0.5", tg.ResolvedIP())
}

func TestResolve_ConcurrentCallersShareOneLookup(t *testing.T) {
	tg, err := New("test.local")
	require.NoError(t, err)
	r := &countingResolver{addrs: []string{"10.0.0.5"}}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = tg.Resolve(context.Background(), r)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), r.calls.Load())
}

func TestResolve_LiteralIPSkipsLookup(t *testing.T) {
	tg, err := New("192.0.2.10")
	require.NoError(t, err)
	r := &countingResolver{}

	ip, err := tg.Resolve(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.10", ip)
	assert.Zero(t, r.calls.Load())
}

func TestResolve_PrefersIPv4(t *testing.T) {
	tg, err := New("dual.test.local")
	require.NoError(t, err)
	r := &countingResolver{addrs: []string{"2001:db8::1", "198.51.100.7"}}

	ip, err := tg.Resolve(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.7", ip)
}

func TestResolve_FailureIsNotCached(t *testing.T) {
	tg, err := New("missing.test.local")
	require.NoError(t, err)
	r := &countingResolver{err: errors.New("no such host")}

	_, err = tg.Resolve(context.Background(), r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolvable))

	r.err = nil
	r.addrs = []string{"203.0.113.9"}
	ip, err := tg.Resolve(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", ip)
	assert.Equal(t, int32(2), r.calls.Load())
}

func TestResolve_LoopbackAnswerIsValidationError(t *testing.T) {
	tg, err := New("rebind.test.local")
	require.NoError(t, err)
	r := &countingResolver{addrs: []string{"127.0.0.1", "::1"}}

	_, err = tg.Resolve(context.Background(), r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTarget))
	assert.Empty(t, tg.ResolvedIP())
}

func TestResolve_EmptyAnswerIsResolutionError(t *testing.T) {
	tg, err := New("empty.test.local")
	require.NoError(t, err)

	_, err = tg.Resolve(context.Background(), &countingResolver{})
	var rerr *ResolutionError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "empty.test.local", rerr.Host)
}

func TestFindingsOnlyGrow(t *testing.T) {
	tg, err := New("test.local")
	require.NoError(t, err)

	tg.AddOpenPort(80, "http 1.1")
	tg.AddOpenPort(22, "openssh 9.6")
	tg.AddOpenPort(80, "")
	assert.Equal(t, []int{22, 80}, tg.OpenPorts())
	fp, ok := tg.Service(80)
	assert.True(t, ok)
	assert.Equal(t, "http 1.1", fp)

	assert.True(t, tg.AddSubdomain("www.test.local"))
	assert.False(t, tg.AddSubdomain("WWW.test.local."))
	assert.True(t, tg.AddSubdomain("api.test.local"))
	assert.Equal(t, []string{"www.test.local", "api.test.local"}, tg.Subdomains())

	tg.MergeIntelligence("whois", map[string]any{"status": "ok"})
	tg.MergeIntelligence("whois", map[string]any{"data": "registrar"})
	got, ok := tg.Intelligence("whois")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"status": "ok", "data": "registrar"}, got)
}

func TestConcurrentAppends(t *testing.T) {
	tg, err := New("test.local")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			tg.AddOpenPort(port%10+1, "unknown")
			tg.AddSubdomain("host.test.local")
		}(i)
	}
	wg.Wait()

	assert.Len(t, tg.OpenPorts(), 10)
	assert.Len(t, tg.Subdomains(), 1)
}

func TestSnapshotIsDetached(t *testing.T) {
	tg, err := New("test.local")
	require.NoError(t, err)
	tg.AddSubdomain("b.test.local")
	tg.AddSubdomain("a.test.local")
	tg.MergeIntelligence("dns", map[string]any{"status": "ok"})

	snap := tg.Snapshot()
	tg.AddSubdomain("c.test.local")
	tg.MergeIntelligence("dns", map[string]any{"error": "late"})

	assert.Equal(t, []string{"a.test.local", "b.test.local"}, snap.Subdomains)
	assert.NotContains(t, snap.Intelligence["dns"], "error")
	assert.Equal(t, "test.local", snap.Host)
}

func TestIntelligenceValuesAreCopied(t *testing.T) {
	tg, err := New("test.local")
	require.NoError(t, err)

	hosts := []string{"a.test.local"}
	records := map[string][]string{"a": {"192.0.2.1"}}
	nested := map[string]any{"stats": map[string]int{"malicious": 0}}
	tg.MergeIntelligence("dns", map[string]any{"hostnames": hosts, "records": records, "nested": nested})

	hosts[0] = "mutated"
	records["a"][0] = "mutated"

	snap := tg.Snapshot()
	assert.Equal(t, []string{"a.test.local"}, snap.Intelligence["dns"]["hostnames"])
	assert.Equal(t, map[string][]string{"a": {"192.0.2.1"}}, snap.Intelligence["dns"]["records"])

	snap.Intelligence["dns"]["hostnames"].([]string)[0] = "from-report"
	snap.Intelligence["dns"]["nested"].(map[string]any)["stats"].(map[string]int)["malicious"] = 9

	live, ok := tg.Intelligence("dns")
	require.True(t, ok)
	assert.Equal(t, []string{"a.test.local"}, live["hostnames"])
	assert.Equal(t, map[string]int{"malicious": 0}, live["nested"].(map[string]any)["stats"])
	assert.Equal(t, 0, tg.Snapshot().Intelligence["dns"]["nested"].(map[string]any)["stats"].(map[string]int)["malicious"])
}
