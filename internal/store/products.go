package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"catalog/api/internal/collection"
	"catalog/api/internal/loader"
	"catalog/api/internal/sorting"
)

type Product struct {
	ID          string
	Title       string
	Description string
	Price       float64
	Discount    float64
	Quantity    int
	Sales       int
	Status      int
	CreatedAt   time.Time
}

// Item is the row shape the table works with.
func (p Product) Item() collection.Item {
	return collection.NewItem(p.ID, map[string]any{
		"title":       p.Title,
		"description": p.Description,
		"price":       p.Price,
		"discount":    p.Discount,
		"quantity":    float64(p.Quantity),
		"sales":       float64(p.Sales),
		"status":      float64(p.Status),
		"createdAt":   p.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// SortableFields are the product columns a table may sort by.
var SortableFields = []sorting.Field{
	{Name: "title", Kind: sorting.KindString},
	{Name: "price", Kind: sorting.KindNumeric},
	{Name: "quantity", Kind: sorting.KindNumeric},
	{Name: "sales", Kind: sorting.KindNumeric},
	{Name: "discount", Kind: sorting.KindNumeric},
}

var sortColumns = map[string]string{
	"title":    "title",
	"price":    "price",
	"quantity": "quantity",
	"sales":    "sales",
	"discount": "discount",
}

var productColumns = []string{"id", "title", "description", "price", "discount", "quantity", "sales", "status", "created_at"}

type ListParams struct {
	Sort   sorting.Spec
	Offset int
	Limit  int
	From   *time.Time
	To     *time.Time
}

type ProductRepo struct {
	db DB
}

func NewProductRepo(db DB) *ProductRepo {
	return &ProductRepo{db: db}
}

// orderBy mirrors the in-process comparator: titles compare case-insensitively
// with uppercase first on ties; id keeps pages stable.
func orderBy(spec sorting.Spec) ([]string, error) {
	column, ok := sortColumns[spec.Field]
	if !ok {
		return nil, fmt.Errorf("unsortable field %q", spec.Field)
	}
	dir := "ASC"
	if spec.Direction == sorting.Descending {
		dir = "DESC"
	}
	if column == "title" {
		return []string{
			"lower(title) " + dir,
			`title COLLATE "C" ` + dir,
			"id ASC",
		}, nil
	}
	return []string{column + " " + dir, "id ASC"}, nil
}

func (r *ProductRepo) listQuery(p ListParams) (string, []any, error) {
	order, err := orderBy(p.Sort)
	if err != nil {
		return "", nil, err
	}
	if p.Limit <= 0 {
		return "", nil, fmt.Errorf("limit must be positive")
	}
	if p.Offset < 0 {
		return "", nil, fmt.Errorf("offset must not be negative")
	}

	sb := squirrel.Select(productColumns...).
		From("products").
		OrderBy(order...).
		Limit(uint64(p.Limit)).
		Offset(uint64(p.Offset)).
		PlaceholderFormat(squirrel.Dollar)
	if p.From != nil {
		sb = sb.Where(squirrel.GtOrEq{"created_at": *p.From})
	}
	if p.To != nil {
		sb = sb.Where(squirrel.Lt{"created_at": *p.To})
	}
	return sb.ToSql()
}

func (r *ProductRepo) ListProducts(ctx context.Context, p ListParams) ([]Product, error) {
	sql, args, err := r.listQuery(p)
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	return r.query(ctx, sql, args...)
}

// AllProducts returns every product in id order, for reindexing.
func (r *ProductRepo) AllProducts(ctx context.Context) ([]Product, error) {
	sql, args, err := squirrel.Select(productColumns...).
		From("products").
		OrderBy("id ASC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	return r.query(ctx, sql, args...)
}

func (r *ProductRepo) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *ProductRepo) query(ctx context.Context, sql string, args ...any) ([]Product, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.Price, &p.Discount, &p.Quantity, &p.Sales, &p.Status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

// Fetch serves a loader query straight from postgres.
func (r *ProductRepo) Fetch(ctx context.Context, q loader.Query) ([]collection.Item, error) {
	params, err := ParamsFromQuery(q)
	if err != nil {
		return nil, &loader.DecodeError{Err: err}
	}
	products, err := r.ListProducts(ctx, params)
	if err != nil {
		return nil, &loader.NetworkError{Op: "list products", Err: err}
	}
	return Items(products), nil
}

// ParamsFromQuery converts a loader query, reading the from/to filter keys.
func ParamsFromQuery(q loader.Query) (ListParams, error) {
	p := ListParams{
		Sort:   sorting.Spec{Field: q.SortField, Direction: q.SortDirection},
		Offset: q.Offset,
		Limit:  q.Limit,
	}
	var err error
	if p.From, err = parseBound(q.Filter["from"]); err != nil {
		return ListParams{}, fmt.Errorf("from: %w", err)
	}
	if p.To, err = parseBound(q.Filter["to"]); err != nil {
		return ListParams{}, fmt.Errorf("to: %w", err)
	}
	return p, nil
}

func parseBound(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid time %q", value)
}

func Items(products []Product) []collection.Item {
	items := make([]collection.Item, 0, len(products))
	for _, p := range products {
		items = append(items, p.Item())
	}
	return items
}
