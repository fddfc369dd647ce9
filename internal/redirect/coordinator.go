// Package redirect hands the hosted checkout URL to an external browser and
// reports how control came back. It never decides whether payment succeeded.
package redirect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/telemetry"
)

type State string

const (
	StateIdle      State = "idle"
	StateOpening   State = "opening"
	StateCompleted State = "completed"
	StateDismissed State = "dismissed"
	StateOpenError State = "open_error"
)

var validNext = map[State]map[State]bool{
	StateIdle:      {StateOpening: true},
	StateOpening:   {StateCompleted: true, StateDismissed: true, StateOpenError: true},
	StateCompleted: {},
	StateDismissed: {},
	StateOpenError: {},
}

var ErrIllegalTransition = errors.New("illegal redirect state transition")

// BrowserResult is what the external browser context reports when it closes.
type BrowserResult string

const (
	BrowserDone      BrowserResult = "done"
	BrowserClosed    BrowserResult = "closed"
	BrowserCancelled BrowserResult = "cancelled"
)

// Browser opens url in an external context and blocks until it closes.
type Browser interface {
	Open(ctx context.Context, url string) (BrowserResult, error)
}

// Outcome is a terminal redirect state. Err is set only for StateOpenError.
type Outcome struct {
	State State
	Err   error
}

// Coordinator drives one redirect: Idle -> Opening -> Completed | Dismissed | OpenError.
type Coordinator struct {
	mu    sync.Mutex
	state State
}

func NewCoordinator() *Coordinator {
	return &Coordinator{state: StateIdle}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) transition(to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !validNext[c.state][to] {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, c.state, to)
	}
	c.state = to
	return nil
}

// Open hands redirectURL to the browser and waits for it to close.
func (c *Coordinator) Open(ctx context.Context, browser Browser, redirectURL string) (Outcome, error) {
	if err := c.transition(StateOpening); err != nil {
		return Outcome{}, err
	}

	if redirectURL == "" {
		return c.finish(StateOpenError, &models.RedirectOpenError{Err: errors.New("provider returned no redirect url")})
	}

	result, err := browser.Open(ctx, redirectURL)
	if err != nil {
		return c.finish(StateOpenError, &models.RedirectOpenError{Err: err})
	}

	switch result {
	case BrowserDone:
		return c.finish(StateCompleted, nil)
	default:
		return c.finish(StateDismissed, nil)
	}
}

// Resolve records a return reported by a client that owns the browser itself.
func (c *Coordinator) Resolve(report string) (Outcome, error) {
	if err := c.transition(StateOpening); err != nil {
		return Outcome{}, err
	}

	switch strings.ToLower(strings.TrimSpace(report)) {
	case "completed", "done", "success":
		return c.finish(StateCompleted, nil)
	case "dismissed", "closed", "cancelled", "cancel", "":
		return c.finish(StateDismissed, nil)
	case "error", "open_error":
		return c.finish(StateOpenError, &models.RedirectOpenError{Err: errors.New("client could not open the payment page")})
	default:
		return c.finish(StateDismissed, nil)
	}
}

func (c *Coordinator) finish(to State, cause error) (Outcome, error) {
	if err := c.transition(to); err != nil {
		return Outcome{}, err
	}
	if cause != nil {
		telemetry.Logger.Warn("Payment page could not be opened", zap.Error(cause))
	}
	return Outcome{State: to, Err: cause}, nil
}
