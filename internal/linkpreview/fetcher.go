// Package linkpreview fetches and caches Open Graph style previews of shared URLs.
package linkpreview

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/underpines/pines/internal/apperr"
	"github.com/underpines/pines/internal/cache"
	"github.com/underpines/pines/internal/models"
	"github.com/underpines/pines/pkg/config"
	"github.com/underpines/pines/pkg/logging"
)

// Fetch outcome statuses beyond the upstream HTTP status
const (
	StatusOK           = http.StatusOK
	StatusTimeout      = http.StatusRequestTimeout
	StatusTooLarge     = http.StatusRequestEntityTooLarge
	StatusNetworkError = 0
)

// Store persists fetch outcomes. *db.PreviewRepository implements it.
type Store interface {
	Get(ctx context.Context, url string) (*models.LinkPreview, error)
	Upsert(ctx context.Context, p *models.LinkPreview) error
}

// Cache mirrors stored outcomes. *cache.Cache implements it, including when nil.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Fetcher resolves previews from cache, store or the origin, in that order
type Fetcher struct {
	store  Store
	cache  Cache
	client *http.Client
	cfg    config.PreviewConfig
	group  singleflight.Group
	now    func() time.Time
	logger *zap.Logger
}

// NewFetcher creates a preview fetcher. c may be nil.
func NewFetcher(store Store, c Cache, cfg config.PreviewConfig) *Fetcher {
	if c == nil {
		c = (*cache.Cache)(nil)
	}
	return &Fetcher{
		store: store,
		cache: c,
		client: &http.Client{
			Transport: otelhttp.NewTransport(newTransport(cfg.AllowPrivateHosts)),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
		cfg:    cfg,
		now:    models.Timestamp,
		logger: logging.WithComponent("linkpreview"),
	}
}

// Normalize validates rawURL and returns its canonical form. Only http and https are accepted.
func Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", apperr.Validation("invalid_url", "url must be an absolute http or https url")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", apperr.Validation("invalid_url", "url must be an absolute http or https url")
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String(), nil
}

// Fetch returns the preview of rawURL. Failed fetches are cached too, for a shorter time,
// so a broken link is not retried on every view.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*models.LinkPreview, error) {
	target, err := Normalize(rawURL)
	if err != nil {
		return nil, err
	}

	key := cache.PreviewKey(target)
	var cached models.LinkPreview
	if err := f.cache.GetJSON(ctx, key, &cached); err == nil && f.fresh(&cached) {
		return &cached, nil
	}

	stored, err := f.store.Get(ctx, target)
	if err != nil {
		return nil, apperr.Dependency("read link preview", err)
	}
	if stored != nil && f.fresh(stored) {
		f.mirror(ctx, key, stored)
		return stored, nil
	}

	v, err, _ := f.group.Do(target, func() (interface{}, error) {
		// the fetch outlives a caller that disconnects; its result serves everyone waiting
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.cfg.Timeout)
		defer cancel()

		p := f.fetch(fetchCtx, target)
		saveCtx := context.WithoutCancel(ctx)
		if err := f.store.Upsert(saveCtx, p); err != nil {
			f.logger.Warn("Failed to store link preview", zap.String("url", target), zap.Error(err))
		}
		f.mirror(saveCtx, key, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	p := *v.(*models.LinkPreview)
	return &p, nil
}

func (f *Fetcher) fresh(p *models.LinkPreview) bool {
	return p.ExpiresAt.After(f.now())
}

func (f *Fetcher) mirror(ctx context.Context, key string, p *models.LinkPreview) {
	ttl := p.ExpiresAt.Sub(f.now())
	if ttl <= 0 {
		return
	}
	if err := f.cache.SetJSON(ctx, key, p, ttl); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		f.logger.Debug("Failed to cache link preview", zap.Error(err))
	}
}

// fetch performs one bounded GET and always returns an outcome row
func (f *Fetcher) fetch(ctx context.Context, target string) *models.LinkPreview {
	now := f.now()
	p := &models.LinkPreview{URL: target, FetchedAt: now}

	p.Status = f.get(ctx, target, p)

	ttl := f.cfg.FailureTTL
	if p.OK() {
		ttl = f.cfg.SuccessTTL
	}
	p.ExpiresAt = now.Add(ttl)

	f.logger.Debug("Fetched link preview", zap.String("url", target), zap.Int("status", p.Status))
	return p
}

func (f *Fetcher) get(ctx context.Context, target string, p *models.LinkPreview) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return StatusNetworkError
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode
	}
	if resp.ContentLength > f.cfg.MaxBytes {
		return StatusTooLarge
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return classify(err)
	}
	if int64(len(body)) > f.cfg.MaxBytes {
		return StatusTooLarge
	}

	if isHTML(resp.Header.Get("Content-Type")) {
		meta := parseHTML(bytes.NewReader(body), resp.Request.URL)
		p.Title = meta.Title
		p.Description = meta.Description
		p.ImageURL = meta.ImageURL
		p.SiteName = meta.SiteName
	}
	if p.SiteName == "" {
		p.SiteName = resp.Request.URL.Hostname()
	}
	return StatusOK
}

func classify(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusTimeout
	}
	return StatusNetworkError
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "" || strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}
