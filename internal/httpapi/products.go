package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
)

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	listing, err := s.availability.Listing(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, listing)
}

func (s *Server) productAvailability(w http.ResponseWriter, r *http.Request) {
	quantity := 1
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, r, fmt.Errorf("%w: quantity must be a positive integer", errBadRequest))
			return
		}
		quantity = n
	}

	a, err := s.availability.Check(r.Context(), r.PathValue("id"), quantity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}
