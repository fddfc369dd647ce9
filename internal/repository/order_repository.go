package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var ErrDuplicateOrderID = errors.New("order id already exists")

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// InitDB applies the embedded schema migrations.
func (r *OrderRepository) InitDB() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "checkout_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

const orderColumns = `id, session_id, user_id, items, total_minor, currency, address,
	payment_method, status, COALESCE(estimated_delivery, ''), metadata, created_at, updated_at`

// CreateOrder inserts the order; the unique index on session_id makes a second
// insert for the same session return the first order instead.
func (r *OrderRepository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, bool, error) {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return nil, false, fmt.Errorf("marshal order items: %w", err)
	}
	addressJSON, err := json.Marshal(order.Address)
	if err != nil {
		return nil, false, fmt.Errorf("marshal order address: %w", err)
	}
	metadata := order.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, false, fmt.Errorf("marshal order metadata: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO orders (id, session_id, user_id, items, total_minor, currency, address,
			payment_method, status, estimated_delivery, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (session_id) DO NOTHING
		RETURNING created_at, updated_at
	`, order.ID, order.SessionID, order.UserID, itemsJSON, order.TotalMinor, order.Currency, addressJSON,
		order.PaymentMethod, order.Status, order.EstimatedDelivery, metadataJSON,
	).Scan(&order.CreatedAt, &order.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		existing, getErr := r.GetBySessionID(ctx, order.SessionID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, false, ErrDuplicateOrderID
		}
		return nil, false, fmt.Errorf("insert order: %w", err)
	}

	order.Total = models.MinorToDecimal(order.TotalMinor)
	order.Metadata = metadata
	return order, true, nil
}

// GetByID treats an id that is not a UUID as not found.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return nil, models.ErrOrderNotFound
	}
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID.String())
}

func (r *OrderRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE session_id = $1`, sessionID)
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]*models.Order, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders by user id: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

// UpdateOrderStatus moves an order along the fulfillment lifecycle. The
// conditional update rejects a transition that raced with another one.
func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(current.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current.Status, status)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, status, current.ID, current.Status)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: order %s changed concurrently", models.ErrInvalidTransition, id)
	}

	return r.GetByID(ctx, id)
}

func (r *OrderRepository) getOne(ctx context.Context, query string, arg string) (*models.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		order                                models.Order
		itemsJSON, addressJSON, metadataJSON []byte
	)
	err := row.Scan(
		&order.ID,
		&order.SessionID,
		&order.UserID,
		&itemsJSON,
		&order.TotalMinor,
		&order.Currency,
		&addressJSON,
		&order.PaymentMethod,
		&order.Status,
		&order.EstimatedDelivery,
		&metadataJSON,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan order row: %w", err)
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(addressJSON, &order.Address); err != nil {
		return nil, fmt.Errorf("unmarshal order address: %w", err)
	}
	if err := json.Unmarshal(metadataJSON, &order.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal order metadata: %w", err)
	}
	order.Total = models.MinorToDecimal(order.TotalMinor)
	return &order, nil
}
