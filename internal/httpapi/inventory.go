package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"cafepos/internal/inventory"

	"github.com/shopspring/decimal"
)

func (s *Server) stockReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.inventory.StockReport(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

type quantityRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
	Reason   string          `json:"reason"`
}

type levelRequest struct {
	Level  decimal.Decimal `json:"level"`
	Reason string          `json:"reason"`
}

func (s *Server) restock(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondTransaction(w, r)(s.inventory.Restock(r.Context(), r.PathValue("id"), req.Quantity, req.Reason))
}

func (s *Server) adjust(w http.ResponseWriter, r *http.Request) {
	var req levelRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondTransaction(w, r)(s.inventory.Adjust(r.Context(), r.PathValue("id"), req.Level, req.Reason))
}

func (s *Server) waste(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondTransaction(w, r)(s.inventory.RecordWaste(r.Context(), r.PathValue("id"), req.Quantity, req.Reason))
}

func (s *Server) respondTransaction(w http.ResponseWriter, r *http.Request) func(inventory.Transaction, error) {
	return func(tx inventory.Transaction, err error) {
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, tx)
	}
}

func (s *Server) transactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := inventory.TransactionFilter{
		IngredientID: q.Get("ingredient_id"),
		OrderItemID:  q.Get("order_item_id"),
	}

	var err error
	if filter.From, err = parseTime(q.Get("from")); err != nil {
		s.writeError(w, r, err)
		return
	}
	if filter.To, err = parseTime(q.Get("to")); err != nil {
		s.writeError(w, r, err)
		return
	}
	if raw := q.Get("limit"); raw != "" {
		if filter.Limit, err = strconv.Atoi(raw); err != nil || filter.Limit < 0 {
			s.writeError(w, r, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest))
			return
		}
	}

	txs, err := s.inventory.Transactions(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []inventory.Transaction{}
	}
	s.writeJSON(w, http.StatusOK, txs)
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not an RFC 3339 time", errBadRequest, raw)
	}
	return t, nil
}
