// Package identity resolves customer session tokens through the identity
// service over NATS request/reply.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/telemetry"
)

const ResolveSubject = "identity.session.resolve"

var ErrUnauthenticated = errors.New("session token is invalid or expired")

type requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

type resolveRequest struct {
	Token string `json:"token"`
}

type resolveResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Error  string `json:"error,omitempty"`
}

type NATSResolver struct {
	nc      requester
	timeout time.Duration
}

func NewNATSResolver(nc requester, timeout time.Duration) *NATSResolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NATSResolver{nc: nc, timeout: timeout}
}

func (r *NATSResolver) Resolve(ctx context.Context, token string) (*interfaces.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthenticated
	}

	data, err := json.Marshal(resolveRequest{Token: token})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg, err := r.nc.RequestWithContext(ctx, ResolveSubject, data)
	if err != nil {
		telemetry.Logger.Warn("Identity lookup failed", zap.Error(err))
		return nil, fmt.Errorf("identity lookup: %w", err)
	}

	var resp resolveResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("decode identity response: %w", err)
	}
	if resp.Error != "" || resp.UserID == "" {
		return nil, ErrUnauthenticated
	}
	return &interfaces.Identity{UserID: resp.UserID, Email: resp.Email}, nil
}
