// Package census fetches ACS 5-year population by age from the Census Data API.
package census

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/commuter-cli/internal/resilience"
)

// DefaultBaseURL is the Census Data API root.
const DefaultBaseURL = "https://api.census.gov/data"

// Geography is an ACS summary level fetched within a state.
type Geography string

// Supported geographies.
const (
	GeoCounty      Geography = "county"
	GeoSubdivision Geography = "county subdivision"
	GeoTract       Geography = "tract"
)

// ParseGeography accepts the build granularity names as well as the API
// names.
func ParseGeography(s string) (Geography, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "county":
		return GeoCounty, nil
	case "town", "subdivision", "cousub", "county subdivision":
		return GeoSubdivision, nil
	case "tract":
		return GeoTract, nil
	default:
		return "", eris.Errorf("census: no population geography %q (valid: county, town, tract)", s)
	}
}

// Short returns the build granularity name of g.
func (g Geography) Short() string {
	if g == GeoSubdivision {
		return "town"
	}
	return string(g)
}

// codeColumns lists the response columns concatenated into the FIPS code.
func (g Geography) codeColumns() []string {
	if g == GeoCounty {
		return []string{"state", "county"}
	}
	return []string{"state", "county", string(g)}
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithKey sets the API key. Keyless requests are allowed at low volume.
func WithKey(key string) Option {
	return func(c *Client) { c.key = key }
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithConcurrency bounds the states fetched at once.
func WithConcurrency(n int) Option {
	return func(c *Client) { c.concurrency = max(n, 1) }
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(p resilience.Policy) Option {
	return func(c *Client) { c.retry = p }
}

// Client queries the ACS 5-year detailed tables.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	key         string
	year        int
	limiter     *rate.Limiter
	concurrency int
	retry       resilience.Policy
}

// NewClient creates a Client for an ACS vintage.
func NewClient(year int, opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		baseURL:     DefaultBaseURL,
		year:        year,
		limiter:     rate.NewLimiter(5, 5),
		concurrency: 4,
		retry:       resilience.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("census", "acs5")
	}
	return c
}

// Fetch returns the rows of every state in order. States are fetched
// concurrently; a failed state aborts the fetch with an error naming it.
func (c *Client) Fetch(ctx context.Context, geo Geography, states []string) ([]Row, error) {
	results := make([][]Row, len(states))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, st := range states {
		g.Go(func() error {
			rows, err := c.FetchState(gctx, geo, st)
			if err != nil {
				return eris.Wrapf(err, "census: state %s", st)
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Row
	for _, rows := range results {
		out = append(out, rows...)
	}
	return out, nil
}

// FetchState returns the rows of one state, identified by its FIPS code.
// Records with suppressed or malformed estimates are skipped with a warning.
func (c *Client) FetchState(ctx context.Context, geo Geography, stateFIPS string) ([]Row, error) {
	table, err := resilience.Do(ctx, c.retry, func(ctx context.Context) ([][]*string, error) {
		return c.get(ctx, c.requestURL(geo, stateFIPS))
	})
	if err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return nil, nil
	}

	idx := make(map[string]int, len(table[0]))
	for i, h := range table[0] {
		if h != nil {
			idx[*h] = i
		}
	}

	rows := make([]Row, 0, len(table)-1)
	for _, record := range table[1:] {
		row, err := reduce(idx, record, geo)
		if err != nil {
			zap.L().Warn("census: skipping record",
				zap.String("state", stateFIPS),
				zap.String("geography", string(geo)),
				zap.Error(err),
			)
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *Client) requestURL(geo Geography, stateFIPS string) string {
	params := url.Values{
		"get": {"NAME," + strings.Join(Variables(), ",")},
		"for": {string(geo) + ":*"},
		"in":  {"state:" + stateFIPS},
	}
	if c.key != "" {
		params.Set("key", c.key)
	}
	return fmt.Sprintf("%s/%d/acs/acs5?%s", c.baseURL, c.year, params.Encode())
}

func (c *Client) get(ctx context.Context, reqURL string) ([][]*string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "census: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "census: build request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "census: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "census: read body")
	}

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		err := eris.Errorf("census: status %d: %s", resp.StatusCode, snippet(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var table [][]*string
	if err := json.Unmarshal(body, &table); err != nil {
		return nil, eris.Wrapf(err, "census: parse response: %s", snippet(body))
	}
	return table, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
