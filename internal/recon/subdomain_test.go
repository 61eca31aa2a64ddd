package recon

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnverified/aegis/internal/engine"
	"github.com/vulnverified/aegis/internal/target"
)

// fakeTransport answers by scheme://host. Unknown hosts fail like an
// unresolvable name.
type fakeTransport struct {
	status map[string]int
	errs   map[string]error
	delay  time.Duration

	mu       sync.Mutex
	requests []string

	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if cur <= p || f.peak.CompareAndSwap(p, cur) {
			break
		}
	}

	key := req.URL.Scheme + "://" + req.URL.Host
	f.mu.Lock()
	f.requests = append(f.requests, key)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}

	if code, ok := f.status[key]; ok {
		return &http.Response{
			StatusCode: code,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader("")),
			Request:    req,
		}, nil
	}
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	return nil, &net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: req.URL.Hostname(), IsNotFound: true}}
}

func (f *fakeTransport) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func newTestProber(ft *fakeTransport, r target.Resolver) *SubdomainProber {
	return &SubdomainProber{
		Client:   &http.Client{Transport: ft},
		Resolver: r,
		Timeout:  time.Second,
	}
}

func TestProbe_ReachabilityPresentOnly(t *testing.T) {
	ft := &fakeTransport{status: map[string]int{"http://www.test.local": 200}}
	p := newTestProber(ft, nil)
	tgt := newTestTarget(t, "test.local")

	out, err := p.Probe(context.Background(), tgt, []string{"www", "nope"}, engine.ModeReachability, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"www.test.local"}, out.Present)
	assert.Equal(t, 2, out.Checked)
	assert.Equal(t, engine.ModeReachability, out.Mode)
	assert.Equal(t, []string{"www.test.local"}, tgt.Subdomains())

	reqs := ft.requested()
	assert.Contains(t, reqs, "https://nope.test.local")
	assert.NotContains(t, reqs, "https://www.test.local")

	require.Len(t, out.Results, 2)
	assert.Equal(t, "http", out.Results[0].Scheme)
	assert.Equal(t, 200, out.Results[0].StatusCode)
	assert.False(t, out.Results[1].Present)
	assert.NotEmpty(t, out.Results[1].Error)
}

func TestProbe_ReachabilitySchemeRules(t *testing.T) {
	ft := &fakeTransport{
		status: map[string]int{
			"https://secure.test.local": 301,
			"http://missing.test.local": 404,
			"http://broken.test.local":  500,
		},
		errs: map[string]error{
			"http://secure.test.local": &net.OpError{Op: "dial", Net: "tcp", Err: refused()},
			"http://slow.test.local":   timeoutError{},
		},
	}
	p := newTestProber(ft, nil)
	tgt := newTestTarget(t, "test.local")

	out, err := p.Probe(context.Background(), tgt, []string{"secure", "missing", "broken", "slow"}, engine.ModeReachability, 4)
	require.NoError(t, err)

	assert.Equal(t, []string{"secure.test.local"}, out.Present)
	assert.Equal(t, "https", out.Results[0].Scheme)

	reqs := ft.requested()
	assert.NotContains(t, reqs, "https://missing.test.local")
	assert.NotContains(t, reqs, "https://broken.test.local")
	assert.NotContains(t, reqs, "https://slow.test.local")
}

func TestProbe_DNSMode(t *testing.T) {
	ft := &fakeTransport{}
	resolver := &fakeResolver{addrs: map[string][]string{"api.test.local": {"10.1.1.1"}}}
	p := newTestProber(ft, resolver)
	tgt := newTestTarget(t, "test.local")

	out, err := p.Probe(context.Background(), tgt, []string{"api", "nope"}, engine.ModeDNS, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"api.test.local"}, out.Present)
	assert.Equal(t, engine.ModeDNS, out.Mode)
	assert.Equal(t, []string{"10.1.1.1"}, out.Results[0].Addresses)
	assert.Empty(t, ft.requested())
	assert.Equal(t, int32(2), resolver.calls.Load())
}

func TestProbe_InvalidModeBeforeAnyLabel(t *testing.T) {
	ft := &fakeTransport{}
	resolver := &fakeResolver{}
	p := newTestProber(ft, resolver)

	_, err := p.Probe(context.Background(), newTestTarget(t, "test.local"), []string{"www"}, engine.ProbeMode("bogus"), 2)
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
	assert.Empty(t, ft.requested())
	assert.Zero(t, resolver.calls.Load())
}

func TestProbe_InvalidTargetMakesNoCalls(t *testing.T) {
	ft := &fakeTransport{}
	resolver := &fakeResolver{}
	p := newTestProber(ft, resolver)

	for _, mode := range []engine.ProbeMode{engine.ModeReachability, engine.ModeDNS} {
		_, err := p.Probe(context.Background(), &target.Target{}, []string{"www"}, mode, 2)
		assert.ErrorIs(t, err, target.ErrInvalidTarget)
	}
	assert.Empty(t, ft.requested())
	assert.Zero(t, resolver.calls.Load())
}

func TestProbe_LabelsAreDeduplicated(t *testing.T) {
	ft := &fakeTransport{status: map[string]int{"http://www.test.local": 200}}
	p := newTestProber(ft, nil)

	out, err := p.Probe(context.Background(), newTestTarget(t, "test.local"), []string{"www", "WWW", " www ", ""}, engine.ModeReachability, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Checked)
	assert.Equal(t, []string{"http://www.test.local"}, ft.requested())
}

func TestProbe_InvalidOptions(t *testing.T) {
	p := newTestProber(&fakeTransport{}, nil)
	tgt := newTestTarget(t, "test.local")

	_, err := p.Probe(context.Background(), tgt, []string{" ", "#comment"}, engine.ModeDNS, 2)
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)

	_, err = p.Probe(context.Background(), tgt, []string{"www"}, engine.ModeDNS, 0)
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
}

func TestProbe_BoundedConcurrency(t *testing.T) {
	ft := &fakeTransport{delay: 5 * time.Millisecond, status: map[string]int{}}
	labels := make([]string, 30)
	for i := range labels {
		labels[i] = "host" + string(rune('a'+i%26)) + strings.Repeat("x", i/26)
		ft.status["http://"+labels[i]+".test.local"] = 200
	}
	p := newTestProber(ft, nil)

	out, err := p.Probe(context.Background(), newTestTarget(t, "test.local"), labels, engine.ModeReachability, 3)
	require.NoError(t, err)
	assert.Len(t, out.Present, 30)
	assert.LessOrEqual(t, ft.peak.Load(), int32(3))
}

func TestProbe_CancelledContextIsAbsent(t *testing.T) {
	ft := &fakeTransport{status: map[string]int{"http://www.test.local": 200}}
	p := newTestProber(ft, nil)
	tgt := newTestTarget(t, "test.local")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := p.Probe(ctx, tgt, []string{"www"}, engine.ModeReachability, 1)
	require.NoError(t, err)
	assert.Empty(t, out.Present)
	assert.Equal(t, 1, out.Checked)
	assert.Empty(t, tgt.Subdomains())
}

func TestNormalizeLabels(t *testing.T) {
	assert.Equal(t, []string{"www", "api", "dev"}, NormalizeLabels([]string{"WWW", "api.", " www", "", "# skip", "dev"}))
}
