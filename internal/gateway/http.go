package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"house_screens/internal/logger"
	"house_screens/internal/models"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Tuning defaults, overridable through Options.
const (
	defaultTimeout  = 10 * time.Second
	defaultCacheTTL = 5 * time.Second
	defaultRate     = 5
	defaultBurst    = 5
	maxErrorBody    = 1 << 10 // 1 KB of response body kept in errors
)

// HTTPGateway talks JSON over HTTP to the provisioning backend.
type HTTPGateway struct {
	baseURL string
	session models.Session
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
	now     func() time.Time

	flight   singleflight.Group
	cacheTTL time.Duration

	mu        sync.Mutex
	cached    []models.House
	fetchedAt time.Time
}

// Option configures an HTTPGateway.
type Option func(*HTTPGateway)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *HTTPGateway) { g.client = c }
}

// WithCacheTTL sets how long a fetched graph serves non-forced reads.
// Zero disables caching.
func WithCacheTTL(d time.Duration) Option {
	return func(g *HTTPGateway) { g.cacheTTL = d }
}

// WithRateLimit caps outgoing calls per second. A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(g *HTTPGateway) {
		if perSecond <= 0 {
			g.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithSession sets the bearer token used for reads and structural calls.
// Activation and content copy use the session passed per call.
func WithSession(s models.Session) Option {
	return func(g *HTTPGateway) { g.session = s }
}

// WithLogger attaches a logger.
func WithLogger(l *logger.Logger) Option {
	return func(g *HTTPGateway) { g.log = l }
}

// NewHTTPGateway returns a gateway rooted at baseURL.
func NewHTTPGateway(baseURL string, opts ...Option) (*HTTPGateway, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", baseURL)
	}
	g := &HTTPGateway{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: defaultTimeout},
		limiter:  rate.NewLimiter(rate.Limit(defaultRate), defaultBurst),
		cacheTTL: defaultCacheTTL,
		log:      logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

var _ BackendGateway = (*HTTPGateway)(nil)

type graphResponse struct {
	Houses []models.House `json:"houses"`
}

type activateRequest struct {
	On     bool `json:"on"`
	Width  int  `json:"width"`
	Height int  `json:"height"`
}

type createEnvironmentResponse struct {
	EnvironmentID string `json:"environment_id"`
}

type copyContentRequest struct {
	Domain string `json:"domain"`
}

// FetchGraph returns every house with its environments and screens.
// Concurrent callers share one request; forced calls skip the cache.
func (g *HTTPGateway) FetchGraph(ctx context.Context, forceRefresh bool) ([]models.House, error) {
	if !forceRefresh {
		if houses, ok := g.fromCache(); ok {
			return houses, nil
		}
	}

	key := "graph"
	path := "/houses"
	if forceRefresh {
		key = "graph-fresh"
		path += "?fresh=1"
	}

	// The shared request must not inherit one caller's cancellation; each
	// caller stops waiting on its own ctx instead.
	ch := g.flight.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.fetchTimeout())
		defer cancel()
		var resp graphResponse
		if err := g.do(fetchCtx, OpFetchGraph, http.MethodGet, path, g.session, nil, &resp); err != nil {
			return nil, err
		}
		g.store(resp.Houses)
		return resp.Houses, nil
	})
	select {
	case <-ctx.Done():
		return nil, wrap(OpFetchGraph, 0, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneHouses(res.Val.([]models.House)), nil
	}
}

func (g *HTTPGateway) fetchTimeout() time.Duration {
	if g.client.Timeout > 0 {
		return g.client.Timeout
	}
	return defaultTimeout
}

// ActivateScreen powers a screen on or off and requests dimensions.
func (g *HTTPGateway) ActivateScreen(ctx context.Context, screenID string, on bool, dims models.Dimensions, session models.Session) error {
	body := activateRequest{On: on, Width: dims.Width, Height: dims.Height}
	path := "/screens/" + url.PathEscape(screenID) + "/activate"
	defer g.invalidate()
	return g.do(ctx, OpActivateScreen, http.MethodPost, path, session, body, nil)
}

// CreateEnvironment creates an environment in houseID and returns its id.
func (g *HTTPGateway) CreateEnvironment(ctx context.Context, houseID string) (string, error) {
	var resp createEnvironmentResponse
	path := "/houses/" + url.PathEscape(houseID) + "/environments"
	defer g.invalidate()
	if err := g.do(ctx, OpCreateEnvironment, http.MethodPost, path, g.session, struct{}{}, &resp); err != nil {
		return "", err
	}
	if resp.EnvironmentID == "" {
		return "", &NetworkError{Op: OpCreateEnvironment, Err: fmt.Errorf("response carries no environment id")}
	}
	return resp.EnvironmentID, nil
}

// CreateScreen adds a screen to environmentID.
func (g *HTTPGateway) CreateScreen(ctx context.Context, environmentID string) error {
	path := "/environments/" + url.PathEscape(environmentID) + "/screens"
	defer g.invalidate()
	return g.do(ctx, OpCreateScreen, http.MethodPost, path, g.session, struct{}{}, nil)
}

// RemoveEnvironment deletes environmentID. A 404 counts as success.
func (g *HTTPGateway) RemoveEnvironment(ctx context.Context, environmentID string) error {
	path := "/environments/" + url.PathEscape(environmentID)
	defer g.invalidate()
	err := g.do(ctx, OpRemoveEnvironment, http.MethodDelete, path, g.session, nil, nil)
	if ne, ok := AsNetworkError(err); ok && ne.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// CopyDefaultContent seeds houseID with the default playlists and media.
func (g *HTTPGateway) CopyDefaultContent(ctx context.Context, domain string, session models.Session, houseID string) (models.CopyResult, error) {
	var resp models.CopyResult
	path := "/houses/" + url.PathEscape(houseID) + "/default-content"
	defer g.invalidate()
	if err := g.do(ctx, OpCopyDefaultContent, http.MethodPost, path, session, copyContentRequest{Domain: domain}, &resp); err != nil {
		return models.CopyResult{}, err
	}
	if resp.HouseID == "" {
		resp.HouseID = houseID
	}
	return resp, nil
}

func (g *HTTPGateway) do(ctx context.Context, op, method, path string, session models.Session, in, out any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return wrap(op, 0, err)
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return wrap(op, 0, fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return wrap(op, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+session.Token)
	}

	start := g.now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Debugw("gateway_call_failed", "op", op, "err", err)
		return wrap(op, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()
	g.log.Debugw("gateway_call", "op", op, "status", resp.StatusCode, "elapsed", g.now().Sub(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(snippet)))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return wrap(op, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (g *HTTPGateway) fromCache() ([]models.House, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cacheTTL <= 0 || g.cached == nil || g.now().Sub(g.fetchedAt) > g.cacheTTL {
		return nil, false
	}
	return cloneHouses(g.cached), true
}

func (g *HTTPGateway) store(houses []models.House) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cached = cloneHouses(houses)
	g.fetchedAt = g.now()
}

// invalidate drops the cached graph after any mutation.
func (g *HTTPGateway) invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cached = nil
}

func cloneHouses(in []models.House) []models.House {
	if in == nil {
		return nil
	}
	out := make([]models.House, len(in))
	for i, h := range in {
		out[i] = h
		if h.Environments != nil {
			out[i].Environments = make([]models.Environment, len(h.Environments))
			for j, e := range h.Environments {
				out[i].Environments[j] = e
				out[i].Environments[j].Screens = append([]models.Screen(nil), e.Screens...)
			}
		}
	}
	return out
}
