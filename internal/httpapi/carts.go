package httpapi

import (
	"net/http"

	"cafepos/internal/cart"
	"cafepos/internal/order"
)

type cartResponse struct {
	Cart      *cart.Cart  `json:"cart"`
	Totals    cart.Totals `json:"totals"`
	Requested int         `json:"requested,omitempty"`
	Applied   int         `json:"applied,omitempty"`
	Capped    bool        `json:"capped,omitempty"`
}

func (s *Server) cartView(c *cart.Cart) cartResponse {
	return cartResponse{Cart: c, Totals: c.Totals(s.carts.TaxRate())}
}

func (s *Server) resultView(res cart.Result) cartResponse {
	view := s.cartView(res.Cart)
	view.Requested, view.Applied, view.Capped = res.Requested, res.Applied, res.Capped
	return view
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := s.carts.Get(r.Context(), r.PathValue("session"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.cartView(c))
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := s.carts.Clear(r.Context(), r.PathValue("session")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addItemRequest struct {
	ProductID      string            `json:"product_id"`
	Quantity       int               `json:"quantity"`
	Customizations map[string]string `json:"customizations"`
}

func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.carts.Add(r.Context(), r.PathValue("session"), req.ProductID, req.Quantity, req.Customizations)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.resultView(res))
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (s *Server) setCartItem(w http.ResponseWriter, r *http.Request) {
	var req setQuantityRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.carts.SetQuantity(r.Context(), r.PathValue("session"), r.PathValue("key"), req.Quantity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.resultView(res))
}

func (s *Server) incrementCartItem(w http.ResponseWriter, r *http.Request) {
	res, err := s.carts.Increment(r.Context(), r.PathValue("session"), r.PathValue("key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.resultView(res))
}

func (s *Server) decrementCartItem(w http.ResponseWriter, r *http.Request) {
	res, err := s.carts.Decrement(r.Context(), r.PathValue("session"), r.PathValue("key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.resultView(res))
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := s.carts.Remove(r.Context(), r.PathValue("session"), r.PathValue("key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.cartView(c))
}

type checkoutRequest struct {
	CustomerName string `json:"customer_name"`
}

func (s *Server) checkoutCart(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	res, err := s.orders.PlaceFromCart(r.Context(), r.PathValue("session"), req.CustomerName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, placedStatus(res.Order), res)
}

// placedStatus is 409 for orders the fulfillment policy rejected.
func placedStatus(o *order.Order) int {
	if o.Status == order.StatusRejected {
		return http.StatusConflict
	}
	return http.StatusCreated
}
