package model

import (
	"strings"
	"time"
)

type TransactionType string

const (
	TransactionTypeExpense TransactionType = "expense"
	TransactionTypeIncome  TransactionType = "income"
)

const SubscriptionCategory = "Subscription"

// Transaction is a row of the user's finance ledger.
type Transaction struct {
	ID          string
	UserID      string
	PaymentID   *string // set for rows mirroring a subscription payment
	Type        TransactionType
	Category    string
	Amount      int64
	Currency    string
	Description string
	Date        time.Time
	CreatedAt   time.Time
}

// SubscriptionDescription builds "<Plan> plan subscription" with an " (Extension)" suffix.
func SubscriptionDescription(planID string, isExtension bool) string {
	name := strings.TrimSpace(planID)
	if name == "" {
		name = DefaultPlanID
	}
	name = strings.ToUpper(name[:1]) + name[1:]
	desc := name + " plan subscription"
	if isExtension {
		desc += " (Extension)"
	}
	return desc
}
