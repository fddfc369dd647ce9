package repository

import "fmt"

func attemptKey(sessionID string) string { return fmt.Sprintf("checkout:attempt:%s", sessionID) }

func cartKey(userID string) string { return fmt.Sprintf("cart:%s", userID) }

// FinalizeLockKey guards order creation for one checkout session.
func FinalizeLockKey(sessionID string) string {
	return fmt.Sprintf("checkout:finalize:lock:%s", sessionID)
}
