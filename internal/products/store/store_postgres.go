package store

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"catalog/internal/platform/postgres"
	"catalog/internal/products/models"
	"catalog/pkg/platform/sentinel"
)

const productsTable = "products"

var productColumns = []string{
	"id::text", "name", "description", "price::text", "stock", "created_at", "updated_at",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore persists products in the products table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Insert(ctx context.Context, p *models.Product) (*models.Product, error) {
	query, args, err := psql.Insert(productsTable).
		Columns("name", "description", "price", "stock").
		Values(p.Name, p.Description, p.Price.String(), p.Stock).
		Suffix("RETURNING " + strings.Join(productColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert product: %w", err)
	}
	return s.queryOne(ctx, query, args...)
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Product, error) {
	pk, ok := parseID(id)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	query, args, err := psql.Select(productColumns...).
		From(productsTable).
		Where(sq.Eq{"id": pk}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select product: %w", err)
	}
	return s.queryOne(ctx, query, args...)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]*models.Product, error) {
	query, args, err := psql.Select(productColumns...).
		From(productsTable).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list products: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, postgres.MapError(err, "list products")
	}
	defer rows.Close()

	products := make([]*models.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, postgres.MapError(err, "scan product")
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, "iterate products")
	}
	return products, nil
}

func (s *PostgresStore) Replace(ctx context.Context, p *models.Product) (*models.Product, error) {
	pk, ok := parseID(p.ID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	query, args, err := psql.Update(productsTable).
		Set("name", p.Name).
		Set("description", p.Description).
		Set("price", p.Price.String()).
		Set("stock", p.Stock).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": pk}).
		Suffix("RETURNING " + strings.Join(productColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update product: %w", err)
	}
	return s.queryOne(ctx, query, args...)
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	pk, ok := parseID(id)
	if !ok {
		return sentinel.ErrNotFound
	}
	query, args, err := psql.Delete(productsTable).Where(sq.Eq{"id": pk}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete product: %w", err)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return postgres.MapError(err, "delete product")
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) queryOne(ctx context.Context, query string, args ...any) (*models.Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, postgres.MapError(err, "product")
	}
	return p, nil
}

func scanProduct(row pgx.Row) (*models.Product, error) {
	var (
		p     models.Product
		price string
	)
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&price,
		&p.Stock,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", price, err)
	}
	p.Price = amount
	return &p, nil
}

// parseID rejects ids that cannot exist so they read as not found instead of
// a type error from the database.
func parseID(id string) (uuid.UUID, bool) {
	pk, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, false
	}
	return pk, true
}
