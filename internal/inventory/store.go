package inventory

import "context"

// Store is the persistence contract of the ingredient ledger and the recipe table.
//
// Apply is the only way stock changes. It applies every mutation as one unit:
// each stock row is changed only if the result stays non-negative, one transaction
// is appended per mutation, and if any mutation fails nothing is written.
// Implementations must make the check and the write a single atomic step so that
// concurrent callers cannot lose updates.
type Store interface {
	Product(ctx context.Context, id string) (Product, error)
	Products(ctx context.Context) ([]Product, error)
	Ingredient(ctx context.Context, id string) (Ingredient, error)
	Recipe(ctx context.Context, productID string) ([]RecipeLine, error)
	StockReport(ctx context.Context) ([]StockItem, error)
	Apply(ctx context.Context, mutations []Mutation) ([]Applied, error)
	Transactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
}
