package httpapi

import (
	"context"
	"net/http"

	"cafepos/internal/availability"
	"cafepos/internal/cart"
	"cafepos/internal/checkout"
	"cafepos/internal/config"
	"cafepos/internal/inventory"
	"cafepos/internal/order"
	"cafepos/internal/platform/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

// Availability serves the POS product listing.
type Availability interface {
	Listing(ctx context.Context) ([]availability.ProductAvailability, error)
	Check(ctx context.Context, productID string, quantity int) (availability.ProductAvailability, error)
}

// Carts edits POS carts.
type Carts interface {
	Get(ctx context.Context, session string) (*cart.Cart, error)
	Add(ctx context.Context, session, productID string, quantity int, customizations map[string]string) (cart.Result, error)
	SetQuantity(ctx context.Context, session, key string, quantity int) (cart.Result, error)
	Increment(ctx context.Context, session, key string) (cart.Result, error)
	Decrement(ctx context.Context, session, key string) (cart.Result, error)
	Remove(ctx context.Context, session, key string) (*cart.Cart, error)
	Clear(ctx context.Context, session string) error
	TaxRate() decimal.Decimal
}

// Orders places and reads orders.
type Orders interface {
	Place(ctx context.Context, req checkout.Request) (*checkout.Result, error)
	PlaceFromCart(ctx context.Context, session, customerName string) (*checkout.Result, error)
	Get(ctx context.Context, id string) (*order.Order, error)
}

// Inventory is the admin side of the ingredient ledger.
type Inventory interface {
	StockReport(ctx context.Context) ([]inventory.StockItem, error)
	Restock(ctx context.Context, ingredientID string, quantity decimal.Decimal, reason string) (inventory.Transaction, error)
	Adjust(ctx context.Context, ingredientID string, level decimal.Decimal, reason string) (inventory.Transaction, error)
	RecordWaste(ctx context.Context, ingredientID string, quantity decimal.Decimal, reason string) (inventory.Transaction, error)
	Transactions(ctx context.Context, filter inventory.TransactionFilter) ([]inventory.Transaction, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server holds the HTTP handlers of the service.
type Server struct {
	availability Availability
	carts        Carts
	orders       Orders
	inventory    Inventory
	db           Pinger
	logger       observability.Logger
}

func NewServer(a Availability, c Carts, o Orders, inv Inventory, db Pinger, logger observability.Logger) *Server {
	return &Server{availability: a, carts: c, orders: o, inventory: inv, db: db, logger: logger}
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	handleFunc := func(pattern string, handlerFunc func(http.ResponseWriter, *http.Request)) {
		handler := otelhttp.WithRouteTag(pattern, http.HandlerFunc(handlerFunc))
		mux.Handle(pattern, handler)
	}
	s.registerHandlers(handleFunc)

	return otelhttp.NewHandler(mux, config.ServiceName,
		otelhttp.WithMeterProvider(otel.GetMeterProvider()),
		otelhttp.WithTracerProvider(otel.GetTracerProvider()),
	)
}

func (s *Server) registerHandlers(handleFunc func(pattern string, handlerFunc func(http.ResponseWriter, *http.Request))) {
	handleFunc("GET /healthz", s.health)

	handleFunc("GET /api/products", s.listProducts)
	handleFunc("GET /api/products/{id}/availability", s.productAvailability)

	handleFunc("GET /api/carts/{session}", s.getCart)
	handleFunc("DELETE /api/carts/{session}", s.clearCart)
	handleFunc("POST /api/carts/{session}/items", s.addCartItem)
	handleFunc("PUT /api/carts/{session}/items/{key}", s.setCartItem)
	handleFunc("DELETE /api/carts/{session}/items/{key}", s.removeCartItem)
	handleFunc("POST /api/carts/{session}/items/{key}/increment", s.incrementCartItem)
	handleFunc("POST /api/carts/{session}/items/{key}/decrement", s.decrementCartItem)
	handleFunc("POST /api/carts/{session}/checkout", s.checkoutCart)

	handleFunc("POST /api/orders", s.placeOrder)
	handleFunc("GET /api/orders/{id}", s.getOrder)

	handleFunc("GET /api/inventory", s.stockReport)
	handleFunc("GET /api/inventory/transactions", s.transactions)
	handleFunc("POST /api/inventory/{id}/restock", s.restock)
	handleFunc("POST /api/inventory/{id}/adjust", s.adjust)
	handleFunc("POST /api/inventory/{id}/waste", s.waste)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
