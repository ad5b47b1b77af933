package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/linemk/order-portal/internal/domain/models"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ProductStorage описывает методы для работы с таблицей товаров.
type ProductStorage interface {
	GetProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	// GetProductsByIDsTx читает снимок товаров внутри транзакции оформления заказа
	// и блокирует их строки до конца транзакции, всегда в порядке id.
	GetProductsByIDsTx(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error)
	ListProducts(ctx context.Context, filter models.ProductFilter) ([]*models.Product, error)
	// CountProducts учитывает Category и Search, но не Limit/Offset.
	CountProducts(ctx context.Context, filter models.ProductFilter) (int, error)
	CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error)
	// UpdateProduct перезаписывает все редактируемые поля товара по ID.
	UpdateProduct(ctx context.Context, product *models.Product) (*models.Product, error)
	SetStock(ctx context.Context, id uuid.UUID, stock int) (*models.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	// DecrementStock атомарно списывает qty, только если остатка хватает.
	DecrementStock(ctx context.Context, tx *sql.Tx, id uuid.UUID, qty int) (int, error)
	// IncrementStock атомарно возвращает qty на склад.
	IncrementStock(ctx context.Context, tx *sql.Tx, id uuid.UUID, qty int) (int, error)
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт новый репозиторий товаров.
func NewProductRepository(db *sql.DB) ProductStorage {
	return &productRepository{db: db}
}

const productColumns = "id, name, description, category, price, stock, image, created_by, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	p := &models.Product{}
	var createdBy sql.NullInt64
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Price, &p.Stock, &p.Image, &createdBy, &p.CreatedAt); err != nil {
		return nil, err
	}
	if createdBy.Valid {
		p.CreatedBy = &createdBy.Int64
	}
	return p, nil
}

func (r *productRepository) GetProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *productRepository) GetProductsByIDsTx(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	// единый порядок блокировок: корзины [A,B] и [B,A] не ждут друг друга по кругу
	rows, err := tx.QueryContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE",
		pq.Array(uuidStrings(ids)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make(map[uuid.UUID]*models.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

// ListProducts возвращает каталог, новые товары первыми.
func (r *productRepository) ListProducts(ctx context.Context, filter models.ProductFilter) ([]*models.Product, error) {
	where, args := productWhere(filter)
	query := "SELECT " + productColumns + " FROM products" + where + " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *productRepository) CountProducts(ctx context.Context, filter models.ProductFilter) (int, error) {
	where, args := productWhere(filter)
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products"+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return total, nil
}

func productWhere(filter models.ProductFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.Category != "" {
		args = append(args, filter.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+likeEscaper.Replace(filter.Search)+"%")
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// спецсимволы LIKE в поисковой строке ищутся буквально
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func (r *productRepository) CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO products (id, name, description, category, price, stock, image, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW()) RETURNING created_at`,
		product.ID, product.Name, product.Description, product.Category, product.Price, product.Stock, product.Image, product.CreatedBy,
	).Scan(&product.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return product, nil
}

func (r *productRepository) UpdateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE products SET name = $1, description = $2, category = $3, price = $4, stock = $5, image = $6
		 WHERE id = $7 RETURNING `+productColumns,
		product.Name, product.Description, product.Category, product.Price, product.Stock, product.Image, product.ID,
	)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	return p, nil
}

// SetStock выставляет абсолютное значение остатка (ручная правка администратором).
func (r *productRepository) SetStock(ctx context.Context, id uuid.UUID, stock int) (*models.Product, error) {
	row := r.db.QueryRowContext(ctx, "UPDATE products SET stock = $1 WHERE id = $2 RETURNING "+productColumns, stock, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *productRepository) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProductNotFound
	}
	return nil
}

// DecrementStock - условное списание одним запросом: две параллельные брони
// последней единицы не могут обе увидеть достаточный остаток.
func (r *productRepository) DecrementStock(ctx context.Context, tx *sql.Tx, id uuid.UUID, qty int) (int, error) {
	var stock int
	err := tx.QueryRowContext(ctx,
		"UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1 RETURNING stock",
		qty, id,
	).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	// ни одна строка не обновилась: товара нет или остатка не хватает
	if err := tx.QueryRowContext(ctx, "SELECT stock FROM products WHERE id = $1", id).Scan(&stock); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrProductNotFound
		}
		return 0, err
	}
	return stock, ErrInsufficientStock
}

func (r *productRepository) IncrementStock(ctx context.Context, tx *sql.Tx, id uuid.UUID, qty int) (int, error) {
	var stock int
	err := tx.QueryRowContext(ctx,
		"UPDATE products SET stock = stock + $1 WHERE id = $2 RETURNING stock",
		qty, id,
	).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrProductNotFound
		}
		return 0, err
	}
	return stock, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
