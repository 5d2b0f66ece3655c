package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/marketforge/mmaker/internal/domain"
	"github.com/marketforge/mmaker/internal/ledger"
	"github.com/marketforge/mmaker/internal/service"
)

// HistoryHandler serves ledger-derived read endpoints: order history,
// account holdings, and price series.
type HistoryHandler struct {
	history *service.HistoryService
	logger  *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler with the provided service.
func NewHistoryHandler(history *service.HistoryService, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{history: history, logger: logger}
}

// ListOrders returns a market's ledger entries in sequence order.
// GET /api/markets/{id}/orders?from=0&limit=50&account_id=
func (h *HistoryHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var from domain.OrderID
	if v := q.Get("from"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from parameter")
			return
		}
		from = domain.OrderID(n)
	}

	opts := parseListOpts(r)
	orders, err := h.history.Orders(r.Context(), pathParam(r, "id"), from, opts.Limit, q.Get("account_id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orders": orders,
		"count":  len(orders),
	})
}

// GetHoldings returns one account's derived balance in a market.
// GET /api/markets/{id}/accounts/{account_id}/holdings
func (h *HistoryHandler) GetHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.history.Holdings(r.Context(), pathParam(r, "id"), pathParam(r, "account_id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, holdings)
}

// GetPriceSeries returns the per-trade price history of a market.
// GET /api/markets/{id}/series
func (h *HistoryHandler) GetPriceSeries(w http.ResponseWriter, r *http.Request) {
	series, err := h.history.PriceSeries(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if series == nil {
		series = []ledger.PricePoint{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"series": series,
		"count":  len(series),
	})
}
