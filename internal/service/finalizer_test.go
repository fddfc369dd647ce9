package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/repository"
)

func newRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func finalizeRequest(sessionID string) FinalizeRequest {
	return FinalizeRequest{
		SessionID: sessionID,
		UserID:    "user-1",
		Cart: models.CartSnapshot{Items: []models.CartSnapshotItem{
			{ProductID: "p1", Name: "Lakshmi Puja Kit", UnitPriceMinor: 999, Quantity: 2},
		}},
		Address:       models.Address{Name: "Asha", City: "Pune"},
		PaymentMethod: "card",
		TotalMinor:    1998,
		Currency:      "usd",
		Verification:  models.VerificationProvider,
	}
}

func TestFinalize_CreatesOrderAndClearsCart(t *testing.T) {
	rdb := newRedis(t)
	orders := newMemOrders()
	carts := repository.NewCartStore(rdb)
	pub := &recordingPublisher{}
	f := NewFinalizer(orders, carts, repository.NewRedisLocker(rdb), pub, 5*time.Second)
	ctx := context.Background()
	require.NoError(t, carts.Set(ctx, "user-1", []models.CartItem{{Name: "Lakshmi Puja Kit", Price: 9.99, Quantity: 2}}))

	order, err := f.Finalize(ctx, finalizeRequest("sess_1"))
	require.NoError(t, err)

	assert.Equal(t, "sess_1", order.SessionID)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "19.98", order.Total.StringFixed(2))
	assert.Equal(t, "sess_1", order.Metadata["sessionId"])
	assert.Equal(t, "verified", order.Metadata["verification"])
	assert.Equal(t, defaultEstimatedDelivery, order.EstimatedDelivery)

	cart, err := carts.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, cart)
	assert.Len(t, pub.finalized, 1)
}

func TestFinalize_ConcurrentCallsShareOneOrder(t *testing.T) {
	rdb := newRedis(t)
	orders := newMemOrders()
	orders.delay = 20 * time.Millisecond
	pub := &recordingPublisher{}
	f := NewFinalizer(orders, repository.NewCartStore(rdb), repository.NewRedisLocker(rdb), pub, 5*time.Second)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[string]bool{}
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := f.Finalize(context.Background(), finalizeRequest("sess_race"))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[order.ID] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, orders.count())
	assert.Len(t, pub.finalized, 1)
}

func TestFinalize_SeparateProcessesShareOneOrder(t *testing.T) {
	rdb := newRedis(t)
	orders := newMemOrders()
	orders.delay = 20 * time.Millisecond
	carts := repository.NewCartStore(rdb)

	// Two finalizers stand in for two service replicas: no shared singleflight,
	// only the redis lock and the order store.
	a := NewFinalizer(orders, carts, repository.NewRedisLocker(rdb), nil, 5*time.Second)
	b := NewFinalizer(orders, carts, repository.NewRedisLocker(rdb), nil, 5*time.Second)

	var (
		wg     sync.WaitGroup
		orderA *models.Order
		orderB *models.Order
		errA   error
		errB   error
	)
	wg.Add(2)
	go func() { defer wg.Done(); orderA, errA = a.Finalize(context.Background(), finalizeRequest("sess_x")) }()
	go func() { defer wg.Done(); orderB, errB = b.Finalize(context.Background(), finalizeRequest("sess_x")) }()
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, orderA.ID, orderB.ID)
	assert.Equal(t, 1, orders.count())
}

func TestFinalize_StoreFailureKeepsCart(t *testing.T) {
	rdb := newRedis(t)
	orders := newMemOrders()
	orders.createErr = errors.New("connection refused")
	carts := repository.NewCartStore(rdb)
	pub := &recordingPublisher{}
	f := NewFinalizer(orders, carts, repository.NewRedisLocker(rdb), pub, 5*time.Second)
	ctx := context.Background()
	require.NoError(t, carts.Set(ctx, "user-1", []models.CartItem{{Name: "Kit", Price: 9.99, Quantity: 2}}))

	_, err := f.Finalize(ctx, finalizeRequest("sess_1"))

	var persistErr *models.PersistenceError
	require.True(t, errors.As(err, &persistErr))
	assert.True(t, models.Retryable(err))
	cart, err := carts.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, cart, 1)
	assert.Empty(t, pub.finalized)
}

func TestFinalize_RetryAfterCartClearFailure(t *testing.T) {
	orders := newMemOrders()
	carts := newMemCarts()
	carts.carts["user-1"] = []models.CartItem{{Name: "Kit", Price: 9.99, Quantity: 2}}
	carts.clearErr = errors.New("redis timeout")
	f := NewFinalizer(orders, carts, &localLocker{}, &recordingPublisher{}, time.Second)
	ctx := context.Background()

	_, err := f.Finalize(ctx, finalizeRequest("sess_1"))
	var persistErr *models.PersistenceError
	require.True(t, errors.As(err, &persistErr))
	assert.Equal(t, models.OpClearCart, persistErr.Op)
	assert.Contains(t, models.UserMessage(err), "order has been placed")
	assert.Equal(t, 1, orders.count())

	carts.mu.Lock()
	carts.clearErr = nil
	carts.mu.Unlock()

	order, err := f.Finalize(ctx, finalizeRequest("sess_1"))
	require.NoError(t, err)
	assert.Equal(t, "sess_1", order.SessionID)
	assert.Equal(t, 1, orders.count())
	assert.False(t, carts.has("user-1"))
}

func TestFinalize_AssertedIsRecorded(t *testing.T) {
	f := NewFinalizer(newMemOrders(), newMemCarts(), &localLocker{}, nil, time.Second)
	req := finalizeRequest("sess_1")
	req.Verification = models.VerificationAsserted

	order, err := f.Finalize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "asserted", order.Metadata["verification"])
}

func TestFinalize_FollowerSurvivesLeaderCancellation(t *testing.T) {
	rdb := newRedis(t)
	orders := newMemOrders()
	f := NewFinalizer(orders, repository.NewCartStore(rdb), repository.NewRedisLocker(rdb), &recordingPublisher{}, 5*time.Second)

	// Another replica is mid-finalize for the same session.
	lockKey := repository.FinalizeLockKey("sess_sf")
	require.NoError(t, rdb.Set(context.Background(), lockKey, "other-replica", 5*time.Second).Err())

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := f.Finalize(leaderCtx, finalizeRequest("sess_sf"))
		leaderErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	type result struct {
		order *models.Order
		err   error
	}
	follower := make(chan result, 1)
	go func() {
		order, err := f.Finalize(context.Background(), finalizeRequest("sess_sf"))
		follower <- result{order, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelLeader()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	require.NoError(t, rdb.Del(context.Background(), lockKey).Err())

	select {
	case res := <-follower:
		require.NoError(t, res.err)
		assert.Equal(t, "sess_sf", res.order.SessionID)
	case <-time.After(3 * time.Second):
		t.Fatal("follower never returned")
	}
	assert.Equal(t, 1, orders.count())
}
