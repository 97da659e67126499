// Package wikipedia is a job handler that enriches an entity with the
// introduction of the Wikipedia article named after it, fetched through the
// MediaWiki extracts API.
//
// Usage:
//
//	c := wikipedia.New(entities,
//	    wikipedia.WithEndpoint("https://en.wikipedia.org/w/api.php"),
//	    wikipedia.WithRateLimit(5),
//	)
//	pool := worker.NewPool(tickets, entities, c.Handler())
package wikipedia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/enrich/entity"
	"github.com/xraph/enrich/id"
	"github.com/xraph/enrich/job"
)

// DefaultEndpoint is the English Wikipedia API.
const DefaultEndpoint = "https://en.wikipedia.org/w/api.php"

var (
	// ErrEntityNotFound is returned when the entity id does not resolve.
	ErrEntityNotFound = errors.New("wikipedia: entity not found")
	// ErrPageNotFound is returned when no article matches the entity name.
	ErrPageNotFound = errors.New("wikipedia: page not found")
)

// Summary is the enrichment result.
type Summary struct {
	Title     string    `json:"title"`
	Extract   string    `json:"extract"`
	FetchedAt time.Time `json:"fetched_at"`
}

// EntityFinder resolves entity ids. *entity.Repository satisfies it.
type EntityFinder interface {
	FindByID(ctx context.Context, entityID id.EntityID) (*entity.Entity, error)
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint sets the MediaWiki API URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithHTTPClient sets the HTTP client used for lookups.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit caps outbound requests per second across all workers.
// Zero or negative disables the cap.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client looks up entity names on Wikipedia. It is safe for concurrent use.
type Client struct {
	entities EntityFinder
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Client that resolves names through entities.
func New(entities EntityFinder, opts ...Option) *Client {
	c := &Client{
		entities: entities,
		endpoint: DefaultEndpoint,
		http:     &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Inf, 0),
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handler returns the client as a job handler.
func (c *Client) Handler() job.HandlerFunc {
	return job.Typed(c.Lookup)
}

// Lookup fetches the summary for the entity's name.
func (c *Client) Lookup(ctx context.Context, entityID id.EntityID) (*Summary, error) {
	e, err := c.entities.FindByID(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("wikipedia: resolve entity %s: %w", entityID, err)
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
	}
	return c.Fetch(ctx, e.Name)
}

// Fetch fetches the summary for the article titled name, following
// redirects.
func (c *Client) Fetch(ctx context.Context, name string) (*Summary, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wikipedia: rate limit: %w", err)
	}

	params := url.Values{
		"action":        {"query"},
		"prop":          {"extracts"},
		"exintro":       {"1"},
		"explaintext":   {"1"},
		"redirects":     {"1"},
		"titles":        {name},
		"format":        {"json"},
		"formatversion": {"2"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("wikipedia: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wikipedia: request %q: %w", name, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("wikipedia lookup",
		slog.String("name", name),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("wikipedia: API error: %s", resp.Status)
	}

	var body queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("wikipedia: decode response: %w", err)
	}
	if len(body.Query.Pages) == 0 || body.Query.Pages[0].Missing {
		return nil, fmt.Errorf("%w: %q", ErrPageNotFound, name)
	}

	page := body.Query.Pages[0]
	return &Summary{
		Title:     page.Title,
		Extract:   page.Extract,
		FetchedAt: c.now(),
	}, nil
}

type queryResponse struct {
	Query struct {
		Pages []struct {
			Title   string `json:"title"`
			Extract string `json:"extract"`
			Missing bool   `json:"missing"`
		} `json:"pages"`
	} `json:"query"`
}
