package cart

import (
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrLineNotFound    = errors.New("cart line not found")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrProductInactive = errors.New("product is not for sale")
	ErrEmptyCart       = errors.New("cart is empty")
)

// lineNamespace scopes the name-based UUIDs used as line keys.
var lineNamespace = uuid.MustParse("5b0e7c1e-8f0a-4c59-9d55-3c2f4b6f8a11")

// Fingerprint renders customizations in a stable order so equal choices compare equal.
// Keys and values are query-escaped, so separators inside a value cannot collide
// with another set of choices.
func Fingerprint(customizations map[string]string) string {
	if len(customizations) == 0 {
		return ""
	}
	keys := make([]string, 0, len(customizations))
	for k := range customizations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = url.QueryEscape(k) + "=" + url.QueryEscape(customizations[k])
	}
	return strings.Join(parts, ";")
}

// LineKey identifies a cart line by product and customization fingerprint.
func LineKey(productID string, customizations map[string]string) string {
	return uuid.NewSHA1(lineNamespace, []byte(url.QueryEscape(productID)+"|"+Fingerprint(customizations))).String()
}

// Line is one product and customization combination in a cart.
type Line struct {
	Key            string            `json:"key"`
	ProductID      string            `json:"product_id"`
	ProductName    string            `json:"product_name"`
	UnitPrice      decimal.Decimal   `json:"unit_price"`
	Quantity       int               `json:"quantity"`
	Customizations map[string]string `json:"customizations,omitempty"`
}

// Subtotal is the unit price times the quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is the open order of one POS session. It never touches stock.
type Cart struct {
	Session   string    `json:"session"`
	Lines     []Line    `json:"lines"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns an empty cart for session.
func New(session string) *Cart {
	return &Cart{Session: session, Lines: []Line{}}
}

func (c *Cart) find(key string) int {
	for i, l := range c.Lines {
		if l.Key == key {
			return i
		}
	}
	return -1
}

// Line returns the line with key.
func (c *Cart) Line(key string) (Line, bool) {
	if i := c.find(key); i >= 0 {
		return c.Lines[i], true
	}
	return Line{}, false
}

// QuantityOf sums the quantity of a product across all its customizations.
func (c *Cart) QuantityOf(productID string) int {
	n := 0
	for _, l := range c.Lines {
		if l.ProductID == productID {
			n += l.Quantity
		}
	}
	return n
}

func (c *Cart) remove(key string) {
	if i := c.find(key); i >= 0 {
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	}
}

func (c *Cart) clone() *Cart {
	out := *c
	out.Lines = make([]Line, len(c.Lines))
	copy(out.Lines, c.Lines)
	return &out
}

// Totals is the money summary of a cart.
type Totals struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

// Totals sums the lines and applies taxRate, rounding money to cents half-up.
func (c *Cart) Totals(taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	count := 0
	for _, l := range c.Lines {
		subtotal = subtotal.Add(l.Subtotal())
		count += l.Quantity
	}
	subtotal = subtotal.Round(2)
	tax := subtotal.Mul(taxRate).Round(2)
	return Totals{
		Subtotal:  subtotal,
		Tax:       tax,
		Total:     subtotal.Add(tax),
		ItemCount: count,
	}
}
