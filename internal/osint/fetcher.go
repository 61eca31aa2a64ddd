package osint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultFetchTimeout = 15 * time.Second
	defaultMaxBody      = 10 * 1024 * 1024 // 10MB
	defaultRetryDelay   = 2 * time.Second
)

// ErrNotFound is matched by a StatusError for a 404 response.
var ErrNotFound = errors.New("not found")

// ErrRateLimited is matched by a StatusError for a 429 response.
var ErrRateLimited = errors.New("rate limited")

// StatusError is a non-200 response from a source API.
type StatusError struct {
	Source string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Source, e.Code)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	case ErrRateLimited:
		return e.Code == http.StatusTooManyRequests
	}
	return false
}

// HTTPDoer sends HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher is the HTTP client shared by every REST source. Requests are
// throttled per source, bodies are capped, and a failed request is retried
// once unless the source answered 4xx.
type Fetcher struct {
	Client     HTTPDoer
	UserAgent  string
	Timeout    time.Duration
	MaxBody    int64
	RetryDelay time.Duration

	// Rate and Burst configure each source's limiter. A zero Rate disables
	// throttling.
	Rate  rate.Limit
	Burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewFetcher returns a Fetcher with a dedicated http.Client.
func NewFetcher(userAgent string, timeout time.Duration, rps float64) *Fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Fetcher{
		Client:     &http.Client{Timeout: timeout},
		UserAgent:  userAgent,
		Timeout:    timeout,
		MaxBody:    defaultMaxBody,
		RetryDelay: defaultRetryDelay,
		Rate:       rate.Limit(rps),
		Burst:      1,
	}
}

func (f *Fetcher) limiter(source string) *rate.Limiter {
	if f.Rate <= 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.limiters == nil {
		f.limiters = make(map[string]*rate.Limiter)
	}
	l, ok := f.limiters[source]
	if !ok {
		burst := f.Burst
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(f.Rate, burst)
		f.limiters[source] = l
	}
	return l
}

// Get fetches url on behalf of source and returns the capped body.
func (f *Fetcher) Get(ctx context.Context, source, url string, headers map[string]string) ([]byte, error) {
	body, err := f.do(ctx, source, url, headers)
	if err == nil {
		return body, nil
	}

	// Client errors, rate limiting and cancellation are not retried.
	var se *StatusError
	if errors.As(err, &se) && se.Code < 500 {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(f.RetryDelay):
	}

	return f.do(ctx, source, url, headers)
}

// GetJSON fetches url and decodes the body into v.
func (f *Fetcher) GetJSON(ctx context.Context, source, url string, headers map[string]string, v any) error {
	body, err := f.Get(ctx, source, url, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%s JSON parse: %w", source, err)
	}
	return nil
}

func (f *Fetcher) do(ctx context.Context, source, url string, headers map[string]string) ([]byte, error) {
	if l := f.limiter(source); l != nil {
		if err := l.Wait(ctx); err != nil {
			return nil, err
		}
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Source: source, Code: resp.StatusCode}
	}

	maxBody := f.MaxBody
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%s read body: %w", source, err)
	}
	return body, nil
}
