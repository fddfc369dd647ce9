package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/identity"
	"github.com/akylbek/payment-system/checkout-orchestrator/internal/interfaces"
)

type rejectAll struct{}

func (rejectAll) Resolve(context.Context, string) (*interfaces.Identity, error) {
	return nil, identity.ErrUnauthenticated
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	r := NewRouter(nil, nil, rejectAll{})

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/payment-cancel", http.StatusOK},
		{http.MethodGet, "/payment-success?session_id=sess_1", http.StatusOK},
		{http.MethodGet, "/orders", http.StatusUnauthorized},
		{http.MethodPost, "/checkout/sessions", http.StatusUnauthorized},
		{http.MethodGet, "/nowhere", http.StatusNotFound},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(tc.method, tc.path, nil)
		req.Header.Set("Authorization", "Bearer stale")
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, "%s %s", tc.method, tc.path)
	}
}
