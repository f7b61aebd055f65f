package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"flightbroker/internal/flight"
	logx "flightbroker/pkg/logx"
)

// ErrNotFound means the source has no data for the key.
var ErrNotFound = errors.New("flight data not found")

const (
	defaultBaseURL   = "https://www.flightaware.com"
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:140.0) Gecko/20100101 Firefox/140.0"
	maxBodyBytes     = 4 << 20
)

type Config struct {
	BaseURL   string
	UserAgent string

	// RatePerSec and Burst bound outbound requests across all workers.
	RatePerSec float64
	Burst      int

	// IdentTTL is how long a designator -> ident mapping is reused.
	IdentTTL time.Duration
	Timeout  time.Duration
}

// Client is safe for concurrent use.
type Client struct {
	cfg     Config
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger

	identMu sync.Mutex
	idents  map[string]identEntry
	now     func() time.Time
}

type identEntry struct {
	ident   string
	expires time.Time
}

func New(cfg Config, httpClient *http.Client, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = max(1, int(cfg.RatePerSec))
	}
	if cfg.IdentTTL <= 0 {
		cfg.IdentTTL = 7 * 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("lookup: base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:     cfg,
		base:    base,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		log:     log,
		idents:  map[string]identEntry{},
		now:     time.Now,
	}, nil
}

// Lookup returns the current flight summary for key, ErrNotFound when the
// source knows nothing about it, or a transport/parse error.
func (c *Client) Lookup(ctx context.Context, key string) (*flight.Info, error) {
	ident, err := c.ident(ctx, key)
	if err != nil {
		return nil, err
	}
	pageURL := c.url("/live/flight/"+url.PathEscape(ident), nil)
	page, err := c.get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("flight page %s: %w", ident, err)
	}
	token, err := trackpollToken(page)
	if err != nil {
		return nil, fmt.Errorf("flight page %s: %w", ident, err)
	}
	body, err := c.get(ctx, c.url("/ajax/trackpoll.rvt", url.Values{
		"token":   {token},
		"locale":  {"en_US"},
		"summary": {"1"},
	}))
	if err != nil {
		return nil, fmt.Errorf("trackpoll %s: %w", ident, err)
	}
	info, err := parseTrackpoll(body, ident, pageURL)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.log.Info("no flight data", logx.String("key", key), logx.String("ident", ident))
		}
		return nil, err
	}
	return info, nil
}

func (c *Client) ident(ctx context.Context, key string) (string, error) {
	now := c.now()
	c.identMu.Lock()
	if e, ok := c.idents[key]; ok && now.Before(e.expires) {
		c.identMu.Unlock()
		return e.ident, nil
	}
	c.identMu.Unlock()

	body, err := c.get(ctx, c.url("/ajax/ignoreall/omnisearch/flight.rvt", url.Values{
		"v":          {"50"},
		"locale":     {"en_US"},
		"searchterm": {key},
		"q":          {key},
	}))
	if err != nil {
		return "", fmt.Errorf("omnisearch %s: %w", key, err)
	}
	var res struct {
		Data []struct {
			Ident string `json:"ident"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("omnisearch %s: decode: %w", key, err)
	}
	if len(res.Data) == 0 || strings.TrimSpace(res.Data[0].Ident) == "" {
		c.log.Info("no ident found", logx.String("key", key))
		return "", ErrNotFound
	}
	ident := res.Data[0].Ident

	c.identMu.Lock()
	c.idents[key] = identEntry{ident: ident, expires: now.Add(c.cfg.IdentTTL)}
	c.identMu.Unlock()
	return ident, nil
}

func (c *Client) url(path string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	c.log.Debug("lookup request", logx.String("url", req.URL.Path), logx.Int("status", resp.StatusCode), logx.Duration("took", time.Since(start)))
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}
	return body, nil
}

// StatusError is a non-200 upstream response.
type StatusError struct{ Code int }

func (e *StatusError) Error() string { return fmt.Sprintf("unexpected status %d", e.Code) }
