package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/marketforge/mmaker/internal/domain"
	"github.com/marketforge/mmaker/internal/service"
)

// OrderHandler serves trade execution and account seeding endpoints.
type OrderHandler struct {
	trades *service.TradeService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the provided trade service.
func NewOrderHandler(trades *service.TradeService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{trades: trades, logger: logger}
}

// seedRequest is the request body for POST /api/markets/{id}/seed.
type seedRequest struct {
	AccountID string `json:"account_id"`
}

// Seed grants an account its starting coin balance in a market.
// POST /api/markets/{id}/seed
func (h *OrderHandler) Seed(w http.ResponseWriter, r *http.Request) {
	var req seedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.AccountID) == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	o, err := h.trades.Seed(r.Context(), pathParam(r, "id"), req.AccountID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// tradeRequest is the request body for POST /api/markets/{id}/orders.
// MaxCost is signed: buys cap the coins paid, sells pass a negative value
// stating the minimum acceptable proceeds.
type tradeRequest struct {
	AccountID string           `json:"account_id"`
	Outcome   domain.OutcomeID `json:"outcome"`
	DeltaQty  int64            `json:"delta_qty"`
	MaxCost   int64            `json:"max_cost"`
}

// PlaceOrder executes one trade against the market's pricing engine.
// POST /api/markets/{id}/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.AccountID) == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	o, err := h.trades.Execute(r.Context(), pathParam(r, "id"), req.AccountID, req.Outcome, req.DeltaQty, req.MaxCost)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}
