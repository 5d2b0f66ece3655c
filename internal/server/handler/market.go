package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/marketforge/mmaker/internal/domain"
	"github.com/marketforge/mmaker/internal/service"
)

// MarketHandler serves market lifecycle and metadata endpoints.
type MarketHandler struct {
	markets *service.MarketService
	trades  *service.TradeService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the provided services.
func NewMarketHandler(markets *service.MarketService, trades *service.TradeService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, trades: trades, logger: logger}
}

// createMarketRequest is the request body for POST /api/markets.
type createMarketRequest struct {
	Title       string     `json:"title"`
	Organizer   string     `json:"organizer"`
	ShortDesc   string     `json:"short_desc"`
	Description string     `json:"description"`
	LiquidityB  float64    `json:"liquidity_b"`
	Outcomes    []string   `json:"outcomes"`
	OpenTime    *time.Time `json:"open_time,omitempty"`
	CloseTime   *time.Time `json:"close_time,omitempty"`
}

// CreateMarket registers a new market in Upcoming status.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	m, err := h.markets.CreateMarket(r.Context(), service.CreateMarketParams{
		Title:       req.Title,
		Organizer:   req.Organizer,
		ShortDesc:   req.ShortDesc,
		Description: req.Description,
		LiquidityB:  req.LiquidityB,
		Outcomes:    req.Outcomes,
		OpenTime:    req.OpenTime,
		CloseTime:   req.CloseTime,
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// ListMarkets returns markets ordered by creation time, newest first.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := h.markets.ListMarkets(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"markets": markets,
		"count":   len(markets),
	})
}

// GetMarket returns one market's metadata.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.GetMarket(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// OpenMarket transitions a market Upcoming -> Open.
// POST /api/markets/{id}/open
func (h *MarketHandler) OpenMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.OpenMarket(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// CloseMarket transitions a market Open -> Closed.
// POST /api/markets/{id}/close
func (h *MarketHandler) CloseMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.CloseMarket(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// resolveMarketRequest is the request body for POST /api/markets/{id}/resolve.
type resolveMarketRequest struct {
	WinningOutcome domain.OutcomeID `json:"winning_outcome"`
}

// ResolveMarket settles a closed market to the winning outcome.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	var req resolveMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	m, err := h.markets.ResolveMarket(r.Context(), pathParam(r, "id"), req.WinningOutcome)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetPrices returns the market's current coin-unit price vector.
// GET /api/markets/{id}/prices
func (h *MarketHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	prices, ts, err := h.trades.Prices(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"prices":    prices,
		"timestamp": ts.UTC().Format(time.RFC3339Nano),
	})
}
