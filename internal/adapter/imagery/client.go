// Package imagery fetches static map tiles from a Bing-style imagery REST
// API, retrying failed requests under a bounded backoff budget.
package imagery

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/couchcryptid/stencil-tile-etl/internal/config"
	"github.com/couchcryptid/stencil-tile-etl/internal/domain"
	"github.com/couchcryptid/stencil-tile-etl/internal/observability"
	"github.com/couchcryptid/stencil-tile-etl/internal/raster"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// Client requests tiles for resolved viewports.
type Client struct {
	apiKey     string
	baseURL    string
	style      string
	mapSize    image.Point
	httpClient *http.Client
	policy     RetryPolicy
	limiter    *rate.Limiter
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an imagery client from the provider and fetch settings.
func NewClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey:  cfg.ImageryAPIKey,
		baseURL: cfg.ImageryBaseURL,
		style:   cfg.MapStyle,
		mapSize: image.Pt(cfg.MapWidth, cfg.MapHeight),
		httpClient: &http.Client{
			Timeout: cfg.ImageryTimeout,
		},
		policy: RetryPolicy{
			MaxAttempts: cfg.FetchMaxAttempts,
			Multiplier:  cfg.FetchBackoffMultiplier,
			Min:         cfg.FetchBackoffMin,
			Max:         cfg.FetchBackoffMax,
		},
		limiter: newLimiter(cfg.FetchRateLimit),
		clock:   clockwork.NewRealClock(),
		metrics: metrics,
		logger:  logger,
	}
}

// newLimiter allows perSecond requests with a burst of one; 0 is unlimited.
func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// FetchTile downloads and decodes the tile for vp.
func (c *Client) FetchTile(ctx context.Context, vp domain.Viewport) (image.Image, error) {
	u, err := c.URLFor(vp)
	if err != nil {
		return nil, err
	}
	body, err := c.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	return raster.Decode(body)
}

// URLFor builds the request URL for either viewport mode.
func (c *Client) URLFor(vp domain.Viewport) (string, error) {
	switch vp.Mode {
	case domain.ModeArea:
		return c.AreaURL(vp.Box, vp.Angle), nil
	case domain.ModePoint, domain.ModeSweep:
		return c.PointURL(vp.Point, vp.Angle), nil
	default:
		return "", fmt.Errorf("no imagery request for mode %q", vp.Mode)
	}
}

// AreaURL fits the map to a bounding box:
// {base}/{style}?mapArea=minLat,minLon,maxLat,maxLon&mapSize=W,H&format=png&dir=A&key=K
func (c *Client) AreaURL(box domain.BoundingBox, angle int) string {
	area := formatCoord(box.MinLat) + "," + formatCoord(box.MinLon) + "," +
		formatCoord(box.MaxLat) + "," + formatCoord(box.MaxLon)
	return fmt.Sprintf("%s/%s?mapArea=%s&%s", c.baseURL, url.PathEscape(c.style), area, c.commonQuery(angle))
}

// PointURL centers the map on one coordinate:
// {base}/{style}/{lat},{lon}/{zoom}?mapSize=W,H&format=png&dir=A&key=K
func (c *Client) PointURL(p domain.PointView, angle int) string {
	return fmt.Sprintf("%s/%s/%s,%s/%d?%s", c.baseURL, url.PathEscape(c.style),
		formatCoord(p.CenterLat), formatCoord(p.CenterLon), p.Zoom, c.commonQuery(angle))
}

// commonQuery keeps the provider's parameter order and literal commas, which
// url.Values.Encode would sort and escape.
func (c *Client) commonQuery(angle int) string {
	return fmt.Sprintf("mapSize=%d,%d&format=png&dir=%d&key=%s",
		c.mapSize.X, c.mapSize.Y, angle, url.QueryEscape(c.apiKey))
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Fetch GETs rawURL until it answers 200 or the retry budget is spent.
// Exhaustion returns *domain.FetchError wrapping the last failure.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	maxAttempts := max(c.policy.MaxAttempts, 1)
	var b backoff.BackOff = &clampedExponential{policy: c.policy}
	b = backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts-1)), ctx)

	var (
		body     []byte
		attempts int
	)
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		var err error
		body, err = c.doRequest(ctx, rawURL)
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("imagery request failed, retrying",
			"attempt", attempts,
			"max_attempts", maxAttempts,
			"wait", wait,
			"error", err,
		)
	}

	if err := backoff.RetryNotifyWithTimer(op, b, notify, &clockTimer{clock: c.clock}); err != nil {
		return nil, &domain.FetchError{URL: redactKey(rawURL), Attempts: attempts, Err: err}
	}
	return body, nil
}

func (c *Client) doRequest(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.FetchAttempts.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("imagery request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.FetchAttempts.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &domain.StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.FetchAttempts.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("read imagery response: %w", err)
	}
	c.metrics.FetchAttempts.WithLabelValues("success").Inc()
	return body, nil
}

// redactKey drops the API key from URLs that end up in errors and logs.
func redactKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if !q.Has("key") {
		return rawURL
	}
	q.Set("key", "REDACTED")
	u.RawQuery = q.Encode()
	return u.String()
}
