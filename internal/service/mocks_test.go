package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
)

type statusReply struct {
	report *models.PaymentStatusReport
	err    error
}

type mockGateway struct {
	mu          sync.Mutex
	createErr   error
	createCalls int
	lastRequest models.CheckoutSessionRequest
	lastSuccess string
	replies     []statusReply
	statusCalls int
	nextSession int
}

func paid(amount int64) statusReply {
	return statusReply{report: &models.PaymentStatusReport{Status: models.ProviderStatusPaid, AmountTotal: amount, Currency: "usd"}}
}

func unpaid() statusReply {
	return statusReply{report: &models.PaymentStatusReport{Status: models.ProviderStatusUnpaid}}
}

func statusErr() statusReply {
	return statusReply{err: &models.GatewayRequestError{Op: "status", Message: "connection reset"}}
}

func (g *mockGateway) CreateSession(_ context.Context, req models.CheckoutSessionRequest, successURL, _ string) (*models.PaymentSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.lastRequest = req
	g.lastSuccess = successURL
	g.nextSession++
	id := fmt.Sprintf("sess_%d", g.nextSession)
	return &models.PaymentSession{SessionID: id, RedirectURL: "https://pay.example/" + id}, nil
}

// GetStatus plays replies in order and repeats the last one.
func (g *mockGateway) GetStatus(_ context.Context, sessionID string) (*models.PaymentStatusReport, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls++
	if len(g.replies) == 0 {
		return nil, errors.New("no status scripted")
	}
	r := g.replies[0]
	if len(g.replies) > 1 {
		g.replies = g.replies[1:]
	}
	if r.report != nil {
		cp := *r.report
		cp.SessionID = sessionID
		return &cp, nil
	}
	return nil, r.err
}

func (g *mockGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusCalls
}

type memOrders struct {
	mu        sync.Mutex
	bySession map[string]*models.Order
	createErr error
	creates   int
	delay     time.Duration
}

func newMemOrders() *memOrders {
	return &memOrders{bySession: map[string]*models.Order{}}
}

func (r *memOrders) CreateOrder(_ context.Context, order *models.Order) (*models.Order, bool, error) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, false, r.createErr
	}
	if existing, ok := r.bySession[order.SessionID]; ok {
		return existing, false, nil
	}
	r.creates++
	r.bySession[order.SessionID] = order
	return order, true, nil
}

func (r *memOrders) GetByID(_ context.Context, id string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.bySession {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, models.ErrOrderNotFound
}

func (r *memOrders) GetBySessionID(_ context.Context, sessionID string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.bySession[sessionID]; ok {
		return o, nil
	}
	return nil, models.ErrOrderNotFound
}

func (r *memOrders) ListByUser(_ context.Context, userID string) ([]*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Order
	for _, o := range r.bySession {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memOrders) UpdateOrderStatus(_ context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.bySession {
		if o.ID == id {
			if !models.CanTransition(o.Status, status) {
				return nil, models.ErrInvalidTransition
			}
			updated := *o
			updated.Status = status
			r.bySession[o.SessionID] = &updated
			return &updated, nil
		}
	}
	return nil, models.ErrOrderNotFound
}

func (r *memOrders) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates
}

type memCarts struct {
	mu       sync.Mutex
	carts    map[string][]models.CartItem
	clearErr error
}

func newMemCarts() *memCarts {
	return &memCarts{carts: map[string][]models.CartItem{}}
}

func (c *memCarts) Get(_ context.Context, userID string) ([]models.CartItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items, ok := c.carts[userID]
	if !ok {
		return []models.CartItem{}, nil
	}
	return items, nil
}

func (c *memCarts) Set(_ context.Context, userID string, items []models.CartItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carts[userID] = items
	return nil
}

func (c *memCarts) Clear(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clearErr != nil {
		return c.clearErr
	}
	delete(c.carts, userID)
	return nil
}

func (c *memCarts) has(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.carts[userID]
	return ok
}

type memAttempts struct {
	mu       sync.Mutex
	attempts map[string]*models.CheckoutAttempt
}

func newMemAttempts() *memAttempts {
	return &memAttempts{attempts: map[string]*models.CheckoutAttempt{}}
}

func (s *memAttempts) Save(_ context.Context, a *models.CheckoutAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[a.SessionID] = a
	return nil
}

func (s *memAttempts) Get(_ context.Context, sessionID string) (*models.CheckoutAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[sessionID]
	if !ok {
		return nil, models.ErrAttemptNotFound
	}
	return a, nil
}

func (s *memAttempts) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, sessionID)
	return nil
}

// localLocker is a per-key mutex, enough for single-process tests.
type localLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *localLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*sync.Mutex{}
	}
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock, nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	finalized []*models.Order
	changed   []models.OrderStatus
}

func (p *recordingPublisher) OrderFinalized(_ context.Context, order *models.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finalized = append(p.finalized, order)
	return nil
}

func (p *recordingPublisher) OrderStatusChanged(_ context.Context, order *models.Order, _ models.OrderStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, order.Status)
	return nil
}

type countingPrompter struct {
	answer Confirmation
	err    error
	calls  int
}

func (p *countingPrompter) Confirm(context.Context, string) (Confirmation, error) {
	p.calls++
	return p.answer, p.err
}
