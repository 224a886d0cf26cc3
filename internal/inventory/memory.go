package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store. A single mutex serializes every read and
// mutation, which makes Apply's check-and-write atomic.
type MemoryStore struct {
	mu           sync.Mutex
	products     map[string]Product
	ingredients  map[string]Ingredient
	stock        map[string]StockLevel
	recipes      map[string][]RecipeEntry
	transactions []Transaction
	now          func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:    make(map[string]Product),
		ingredients: make(map[string]Ingredient),
		stock:       make(map[string]StockLevel),
		recipes:     make(map[string][]RecipeEntry),
		now:         time.Now,
	}
}

// PutProduct inserts or replaces a product.
func (s *MemoryStore) PutProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// PutIngredient inserts or replaces an ingredient.
func (s *MemoryStore) PutIngredient(i Ingredient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingredients[i.ID] = i
}

// PutStock inserts or replaces the stock record of an existing ingredient.
func (s *MemoryStore) PutStock(level StockLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ingredients[level.IngredientID]; !ok {
		return fmt.Errorf("stock for %s: %w", level.IngredientID, ErrIngredientNotFound)
	}
	if level.Current.IsNegative() || !FitsScale(level.Current) {
		return fmt.Errorf("stock for %s: %w", level.IngredientID, ErrInvalidQuantity)
	}
	s.stock[level.IngredientID] = level
	return nil
}

// SetRecipe replaces the recipe of an existing product.
func (s *MemoryStore) SetRecipe(productID string, entries ...RecipeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[productID]; !ok {
		return fmt.Errorf("recipe for %s: %w", productID, ErrProductNotFound)
	}
	for _, e := range entries {
		if _, ok := s.ingredients[e.IngredientID]; !ok {
			return fmt.Errorf("recipe for %s: %s: %w", productID, e.IngredientID, ErrIngredientNotFound)
		}
		if !e.Quantity.IsPositive() || !FitsScale(e.Quantity) {
			return fmt.Errorf("recipe for %s: %s: %w", productID, e.IngredientID, ErrInvalidQuantity)
		}
	}
	recipe := make([]RecipeEntry, len(entries))
	for i, e := range entries {
		e.ProductID = productID
		recipe[i] = e
	}
	s.recipes[productID] = recipe
	return nil
}

func (s *MemoryStore) Product(_ context.Context, id string) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, fmt.Errorf("product %s: %w", id, ErrProductNotFound)
	}
	return p, nil
}

func (s *MemoryStore) Products(_ context.Context) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Ingredient(_ context.Context, id string) (Ingredient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.ingredients[id]
	if !ok {
		return Ingredient{}, fmt.Errorf("ingredient %s: %w", id, ErrIngredientNotFound)
	}
	return i, nil
}

func (s *MemoryStore) Recipe(_ context.Context, productID string) ([]RecipeLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[productID]; !ok {
		return nil, fmt.Errorf("product %s: %w", productID, ErrProductNotFound)
	}
	entries := s.recipes[productID]
	lines := make([]RecipeLine, 0, len(entries))
	for _, e := range entries {
		line := RecipeLine{Ingredient: s.ingredients[e.IngredientID], Quantity: e.Quantity}
		if level, ok := s.stock[e.IngredientID]; ok {
			line.Stock = &level
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (s *MemoryStore) StockReport(_ context.Context) ([]StockItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StockItem, 0, len(s.ingredients))
	for _, ing := range s.ingredients {
		item := StockItem{Ingredient: ing}
		if level, ok := s.stock[ing.ID]; ok {
			item.Stock = &level
			item.LowStock = level.IsLow()
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ingredient.Name < out[j].Ingredient.Name })
	return out, nil
}

func (s *MemoryStore) Apply(_ context.Context, mutations []Mutation) ([]Applied, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Work on copies so a failing mutation leaves the store untouched.
	staged := make(map[string]StockLevel)
	now := s.now().UTC()
	applied := make([]Applied, 0, len(mutations))

	for _, m := range mutations {
		if err := m.validate(); err != nil {
			return nil, err
		}
		if _, ok := s.ingredients[m.IngredientID]; !ok {
			return nil, fmt.Errorf("ingredient %s: %w", m.IngredientID, ErrIngredientNotFound)
		}
		level, ok := staged[m.IngredientID]
		if !ok {
			level, ok = s.stock[m.IngredientID]
		}
		if !ok {
			if !m.CreateIfMissing {
				return nil, fmt.Errorf("ingredient %s: %w", m.IngredientID, ErrNoStockRecord)
			}
			level = StockLevel{IngredientID: m.IngredientID}
		}

		delta := m.Delta
		if m.SetTo != nil {
			delta = m.SetTo.Sub(level.Current)
		}
		next := level.Current.Add(delta)
		if next.IsNegative() {
			return nil, &ShortfallError{
				IngredientID: m.IngredientID,
				Required:     delta.Neg(),
				Available:    level.Current,
			}
		}

		tx := Transaction{
			ID:             uuid.NewString(),
			IngredientID:   m.IngredientID,
			Type:           m.Type,
			QuantityChange: delta,
			PreviousStock:  level.Current,
			NewStock:       next,
			Reason:         m.Reason,
			OrderItemID:    m.OrderItemID,
			CreatedAt:      now,
		}
		level.Current = next
		if m.Type == TransactionRestock {
			restocked := now
			level.LastRestockedAt = &restocked
		}
		staged[m.IngredientID] = level
		applied = append(applied, Applied{Transaction: tx, Level: level})
	}

	for id, level := range staged {
		s.stock[id] = level
	}
	for _, a := range applied {
		s.transactions = append(s.transactions, a.Transaction)
	}
	return applied, nil
}

func (s *MemoryStore) Transactions(_ context.Context, filter TransactionFilter) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Transaction
	for _, tx := range s.transactions {
		if !filter.Matches(tx) {
			continue
		}
		out = append(out, tx)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Seed loads a catalogue into the store. Recipes refer to products and ingredients by id.
func (s *MemoryStore) Seed(products []Product, ingredients []Ingredient, stock []StockLevel, recipes []RecipeEntry) error {
	for _, p := range products {
		s.PutProduct(p)
	}
	for _, i := range ingredients {
		s.PutIngredient(i)
	}
	for _, l := range stock {
		if err := s.PutStock(l); err != nil {
			return err
		}
	}
	byProduct := make(map[string][]RecipeEntry)
	var order []string
	for _, r := range recipes {
		if _, ok := byProduct[r.ProductID]; !ok {
			order = append(order, r.ProductID)
		}
		byProduct[r.ProductID] = append(byProduct[r.ProductID], r)
	}
	for _, id := range order {
		if err := s.SetRecipe(id, byProduct[id]...); err != nil {
			return err
		}
	}
	return nil
}

// DemoCatalogue returns a small cafe menu used when no database is configured.
func DemoCatalogue() ([]Product, []Ingredient, []StockLevel, []RecipeEntry) {
	d := decimal.RequireFromString
	products := []Product{
		{ID: "latte", Name: "Latte", Category: "coffee", Price: d("4.50"), Active: true},
		{ID: "espresso", Name: "Espresso", Category: "coffee", Price: d("2.80"), Active: true},
		{ID: "croissant", Name: "Croissant", Category: "bakery", Price: d("3.20"), Active: true},
		{ID: "water", Name: "Tap Water", Category: "drinks", Price: d("0"), Active: true},
	}
	ingredients := []Ingredient{
		{ID: "milk", Name: "Milk", Unit: UnitVolume, Tracked: true, UnitCost: d("0.0012")},
		{ID: "beans", Name: "Coffee Beans", Unit: UnitMass, Tracked: true, UnitCost: d("0.03")},
		{ID: "croissant-dough", Name: "Croissant Dough", Unit: UnitCount, Tracked: true, UnitCost: d("0.90")},
		{ID: "water", Name: "Water", Unit: UnitVolume, Tracked: false},
	}
	stock := []StockLevel{
		{IngredientID: "milk", Current: d("5000"), Min: d("1000"), Location: "fridge"},
		{IngredientID: "beans", Current: d("2000"), Min: d("250"), Max: decimal.NewNullDecimal(d("5000")), Location: "shelf"},
		{IngredientID: "croissant-dough", Current: d("24"), Min: d("6"), Location: "freezer"},
	}
	recipes := []RecipeEntry{
		{ProductID: "latte", IngredientID: "beans", Quantity: d("18")},
		{ProductID: "latte", IngredientID: "milk", Quantity: d("200")},
		{ProductID: "latte", IngredientID: "water", Quantity: d("30")},
		{ProductID: "espresso", IngredientID: "beans", Quantity: d("18")},
		{ProductID: "espresso", IngredientID: "water", Quantity: d("30")},
		{ProductID: "croissant", IngredientID: "croissant-dough", Quantity: d("1")},
		{ProductID: "water", IngredientID: "water", Quantity: d("250")},
	}
	return products, ingredients, stock, recipes
}
