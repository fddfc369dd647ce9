package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/akylbek/payment-system/checkout-orchestrator/internal/models"
)

// StaticPrompter answers with a confirmation the client sent along with its
// return report. An empty answer means the customer has not been asked yet.
type StaticPrompter struct {
	Answer Confirmation
}

func (p StaticPrompter) Confirm(_ context.Context, _ string) (Confirmation, error) {
	if p.Answer == "" {
		return "", models.ErrNoAnswer
	}
	return p.Answer, nil
}

// ParseConfirmation accepts the answers a checkout client may send.
func ParseConfirmation(s string) (Confirmation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "paid", "yes", "yes_paid":
		return ConfirmPaid, nil
	case "cancel", "no", "no_cancel":
		return ConfirmCancel, nil
	default:
		return "", fmt.Errorf("unknown confirmation %q", s)
	}
}
