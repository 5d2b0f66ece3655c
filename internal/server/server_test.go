package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketforge/mmaker/internal/domain"
	"github.com/marketforge/mmaker/internal/engine"
	"github.com/marketforge/mmaker/internal/server/handler"
	"github.com/marketforge/mmaker/internal/service"
)

// Minimal in-memory doubles for the API tests; the service-level tests
// exercise these dependencies in depth.

type memMarkets struct {
	mu sync.Mutex
	m  map[string]domain.Market
}

func (s *memMarkets) Create(ctx context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[m.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.m[m.ID] = m
	return nil
}

func (s *memMarkets) Update(ctx context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[m.ID] = m
	return nil
}

func (s *memMarkets) GetByID(ctx context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.m[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memMarkets) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return nil, nil
}

func (s *memMarkets) Count(ctx context.Context) (int64, error) { return 0, nil }

type memLedgers struct {
	mu sync.Mutex
	m  map[string][]domain.Order
}

func (s *memLedgers) Append(ctx context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[o.MarketID] = append(s.m[o.MarketID], o)
	return nil
}

func (s *memLedgers) ListFrom(ctx context.Context, marketID string, from domain.OrderID, limit int) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.m[marketID] {
		if o.ID > from {
			out = append(out, o)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memLedgers) LastID(ctx context.Context, marketID string) (domain.OrderID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.m[marketID]
	if len(entries) == 0 {
		return 0, nil
	}
	return entries[len(entries)-1].ID, nil
}

type memCache struct {
	mu sync.Mutex
	m  map[string]map[domain.OutcomeID]int64
	ts map[string]time.Time
}

func (c *memCache) SetPrices(ctx context.Context, id string, p map[domain.OutcomeID]int64, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[id], c.ts[id] = p, ts
	return nil
}

func (c *memCache) GetPrices(ctx context.Context, id string) (map[domain.OutcomeID]int64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.m[id]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	return p, c.ts[id], nil
}

func (c *memCache) Invalidate(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, id)
	return nil
}

type nopBus struct{}

func (nopBus) Publish(ctx context.Context, channel string, payload []byte) error { return nil }
func (nopBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := engine.NewRegistry()
	cache := &memCache{m: make(map[string]map[domain.OutcomeID]int64), ts: make(map[string]time.Time)}

	marketSvc := service.NewMarketService(
		&memMarkets{m: make(map[string]domain.Market)},
		&memLedgers{m: make(map[string][]domain.Order)},
		registry, nil, cache, nopBus{}, engine.DefaultConfig(), logger,
	)
	tradeSvc := service.NewTradeService(registry, cache, nopBus{}, logger)
	historySvc := service.NewHistoryService(registry, logger)

	srv := NewServer(cfg, Handlers{
		Health:  handler.NewHealthHandler(logger),
		Markets: handler.NewMarketHandler(marketSvc, tradeSvc, logger),
		Orders:  handler.NewOrderHandler(tradeSvc, logger),
		History: handler.NewHistoryHandler(historySvc, logger),
	}, nil, nil, logger)

	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out))
	}
	return resp, out
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, Config{Port: 0})
	resp, body := doJSON(t, ts.Client(), http.MethodGet, ts.URL+"/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "mmaker", body["service"])
	assert.NotEmpty(t, body["uptime"])
}

func TestMarketAPIFlow(t *testing.T) {
	ts := newTestServer(t, Config{Port: 0})
	c := ts.Client()

	resp, created := doJSON(t, c, http.MethodPost, ts.URL+"/api/markets", map[string]any{
		"title":       "Who wins",
		"liquidity_b": 100,
		"outcomes":    []string{"yes", "no"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	marketID, _ := created["id"].(string)
	require.NotEmpty(t, marketID)
	assert.Equal(t, "upcoming", created["status"])

	base := ts.URL + "/api/markets/" + marketID

	resp, _ = doJSON(t, c, http.MethodPost, base+"/open", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, c, http.MethodPost, base+"/seed", map[string]any{"account_id": "alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, order := doJSON(t, c, http.MethodPost, base+"/orders", map[string]any{
		"account_id": "alice",
		"outcome":    1,
		"delta_qty":  10,
		"max_cost":   6000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(-5125), order["coin_delta"])

	resp, prices := doJSON(t, c, http.MethodGet, base+"/prices", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, marketID, prices["market_id"])

	resp, holdings := doJSON(t, c, http.MethodGet, base+"/accounts/alice/holdings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(10000-5125), holdings["coins"])

	resp, series := doJSON(t, c, http.MethodGet, base+"/series", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), series["count"])

	resp, _ = doJSON(t, c, http.MethodPost, base+"/close", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, resolved := doJSON(t, c, http.MethodPost, base+"/resolve", map[string]any{"winning_outcome": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "resolved", resolved["status"])
}

func TestDomainErrorMapping(t *testing.T) {
	ts := newTestServer(t, Config{Port: 0})
	c := ts.Client()

	// Unknown market.
	resp, _ := doJSON(t, c, http.MethodGet, ts.URL+"/api/markets/mkt_missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, created := doJSON(t, c, http.MethodPost, ts.URL+"/api/markets", map[string]any{
		"title":       "Who wins",
		"liquidity_b": 100,
		"outcomes":    []string{"yes", "no"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	base := fmt.Sprintf("%s/api/markets/%s", ts.URL, created["id"])

	// Trading while Upcoming.
	resp, _ = doJSON(t, c, http.MethodPost, base+"/orders", map[string]any{
		"account_id": "alice", "outcome": 1, "delta_qty": 10, "max_cost": 6000,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doJSON(t, c, http.MethodPost, base+"/open", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, c, http.MethodPost, base+"/seed", map[string]any{"account_id": "alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Double seed.
	resp, _ = doJSON(t, c, http.MethodPost, base+"/seed", map[string]any{"account_id": "alice"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Cost bound below the actual price.
	resp, _ = doJSON(t, c, http.MethodPost, base+"/orders", map[string]any{
		"account_id": "alice", "outcome": 1, "delta_qty": 10, "max_cost": 1,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// More than the seed can pay for.
	resp, _ = doJSON(t, c, http.MethodPost, base+"/orders", map[string]any{
		"account_id": "alice", "outcome": 1, "delta_qty": 2000, "max_cost": 10000000,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Outcome that does not exist.
	resp, _ = doJSON(t, c, http.MethodPost, base+"/orders", map[string]any{
		"account_id": "alice", "outcome": 9, "delta_qty": 10, "max_cost": 6000,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Zero quantity.
	resp, _ = doJSON(t, c, http.MethodPost, base+"/orders", map[string]any{
		"account_id": "alice", "outcome": 1, "delta_qty": 0, "max_cost": 6000,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Resolving before close.
	resp, _ = doJSON(t, c, http.MethodPost, base+"/resolve", map[string]any{"winning_outcome": 1})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAuthRequiredWhenConfigured(t *testing.T) {
	ts := newTestServer(t, Config{Port: 0, APIKey: "secret"})
	c := ts.Client()

	resp, err := c.Get(ts.URL + "/api/markets/mkt_x")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/markets/mkt_x", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
