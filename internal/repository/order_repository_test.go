package repository

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
)

func setupTestDB(t *testing.T) *OrderRepository {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewOrderRepository(db)
	require.NoError(t, repo.InitDB())
	return repo
}

func newTestOrder(sessionID string) *models.Order {
	return &models.Order{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    "user-123",
		Items: []models.CartSnapshotItem{
			{ProductID: "p1", Name: "Lakshmi Puja Kit", UnitPriceMinor: 999, Quantity: 2},
		},
		TotalMinor:    11898,
		Currency:      "usd",
		Address:       models.Address{Name: "Asha", City: "Pune", Pincode: "411001"},
		PaymentMethod: "card",
		Status:        models.OrderStatusProcessing,
		Metadata:      map[string]string{"verification": "verified"},
	}
}

func TestCreateOrder_AndRead(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	stored, created, err := repo.CreateOrder(ctx, newTestOrder("sess_1"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "118.98", stored.Total.StringFixed(2))

	byID, err := repo.GetByID(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "sess_1", byID.SessionID)
	assert.Equal(t, stored.Items, byID.Items)
	assert.Equal(t, "Pune", byID.Address.City)
	assert.Equal(t, "verified", byID.Metadata["verification"])

	bySession, err := repo.GetBySessionID(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, bySession.ID)
}

func TestCreateOrder_OncePerSession(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]bool{}
		creates int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stored, created, err := repo.CreateOrder(ctx, newTestOrder("sess_race"))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[stored.ID] = true
			if created {
				creates++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, creates)
}

func TestGetByID_NotFound(t *testing.T) {
	repo := setupTestDB(t)

	_, err := repo.GetByID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, models.ErrOrderNotFound)

	_, err = repo.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, models.ErrOrderNotFound)

	_, err = repo.UpdateOrderStatus(context.Background(), "42", models.OrderStatusCancelled)
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestListByUser(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	for _, sid := range []string{"sess_a", "sess_b"} {
		_, _, err := repo.CreateOrder(ctx, newTestOrder(sid))
		require.NoError(t, err)
	}
	other := newTestOrder("sess_c")
	other.UserID = "someone-else"
	_, _, err := repo.CreateOrder(ctx, other)
	require.NoError(t, err)

	orders, err := repo.ListByUser(ctx, "user-123")
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestUpdateOrderStatus(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	stored, _, err := repo.CreateOrder(ctx, newTestOrder("sess_1"))
	require.NoError(t, err)

	updated, err := repo.UpdateOrderStatus(ctx, stored.ID, models.OrderStatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, updated.Status)

	_, err = repo.UpdateOrderStatus(ctx, stored.ID, models.OrderStatusDelivered)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	byID, err := repo.GetByID(ctx, strings.ToUpper(stored.ID))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, byID.Status)
}
