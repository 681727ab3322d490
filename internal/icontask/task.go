// Package icontask implements the single action of the load test: fetch the
// icon of a randomly chosen hostname from the service under test.
package icontask

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"iconload/internal/domainlist"
	"iconload/pkg/serrors"
)

const (
	// DefaultIconPath is requested under every hostname.
	DefaultIconPath = "icon.png"
	// DefaultQuery defeats intermediate caches so every request reaches the backend.
	DefaultQuery = "cache=false"

	userAgent = "iconload/1.0"
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Task.
type Options struct {
	// BaseURL is the target host, e.g. "http://localhost:50024".
	BaseURL string
	// IconPath is appended to every hostname; defaults to DefaultIconPath.
	IconPath string
	// Query is the raw query of every request; defaults to DefaultQuery.
	// Use "-" to send no query at all.
	Query string
	// Domains is the shared list hostnames are picked from.
	Domains *domainlist.DomainList
	// Client sends the requests; defaults to http.DefaultClient.
	Client Doer
}

// Result describes the outcome of one icon request.
type Result struct {
	// Name groups results of the same kind in statistics.
	Name string
	// Host is the hostname that was picked.
	Host string
	// URL is the full request URL.
	URL string
	// StatusCode is zero when no response was received.
	StatusCode int
	// Latency spans from sending the request to reading the whole body.
	Latency time.Duration
	// Bytes is the size of the response body.
	Bytes int64
	// Err is set when the request could not be completed.
	Err error
	// Start is when the request was sent.
	Start time.Time
}

// Task issues icon requests for hostnames picked from a shared list.
// It holds no mutable state and is safe for concurrent use.
type Task struct {
	base     *url.URL
	iconPath string
	query    string
	domains  *domainlist.DomainList
	client   Doer
}

// New validates opts and builds a Task.
func New(opts Options) (*Task, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrInvalidConfig, err, "invalid target host")
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, serrors.With(serrors.ErrInvalidConfig, "target host %q is not an absolute http(s) URL", opts.BaseURL)
	}
	if opts.Domains == nil || opts.Domains.Len() == 0 {
		return nil, serrors.With(serrors.ErrInvalidConfig, "domain list is empty")
	}

	t := &Task{
		base:     base,
		iconPath: opts.IconPath,
		query:    opts.Query,
		domains:  opts.Domains,
		client:   opts.Client,
	}
	if t.iconPath == "" {
		t.iconPath = DefaultIconPath
	}
	switch t.query {
	case "":
		t.query = DefaultQuery
	case "-":
		t.query = ""
	}
	if t.client == nil {
		t.client = http.DefaultClient
	}

	return t, nil
}

// NewHTTPClient returns a client tuned for load generation: a keep-alive
// pool sized for many concurrent users and an overall request timeout.
func NewHTTPClient(timeout time.Duration, maxIdleConnsPerHost int) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint: forcetypeassert
	if maxIdleConnsPerHost > 0 {
		transport.MaxIdleConns = maxIdleConnsPerHost
		transport.MaxIdleConnsPerHost = maxIdleConnsPerHost
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Name is the statistics name shared by every request of this task.
func (t *Task) Name() string {
	return "/[host]/" + t.iconPath
}

// Path returns the request path, with query, for host.
func (t *Task) Path(host string) string {
	p := "/" + host + "/" + t.iconPath
	if t.query != "" {
		p += "?" + t.query
	}

	return p
}

// URL returns the absolute request URL for host.
func (t *Task) URL(host string) string {
	u := t.base.JoinPath(host, t.iconPath)
	u.RawQuery = t.query

	return u.String()
}

// Do picks a hostname with rng and fetches its icon. Failures are reported
// in the result, never returned, so a caller can keep going.
func (t *Task) Do(ctx context.Context, rng *rand.Rand) Result {
	host := t.domains.Pick(rng)
	res := Result{
		Name: t.Name(),
		Host: host,
		URL:  t.URL(host),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.URL, nil)
	if err != nil {
		res.Err = fmt.Errorf("could not create request: %w", err)

		return res
	}
	req.Header.Set("User-Agent", userAgent)

	res.Start = time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		res.Latency = time.Since(res.Start)
		res.Err = fmt.Errorf("could not send request: %w", err)

		return res
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	res.StatusCode = resp.StatusCode
	res.Bytes, err = io.Copy(io.Discard, resp.Body)
	res.Latency = time.Since(res.Start)
	if err != nil {
		res.Err = fmt.Errorf("could not read response body: %w", err)
	}

	return res
}
