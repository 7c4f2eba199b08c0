package model

import (
	"time"

	"momo-billing/internal/domain"

	"github.com/google/uuid"
)

// User carries the subscription fields of a users row. Profile data lives with the
// auth platform and is not loaded here.
type User struct {
	ID                  string
	Email               string
	SubscriptionLevel   SubscriptionLevel
	SubscriptionEndDate *time.Time // date only, nil when the user never paid
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func NewUser(id, email string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if email == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &User{
		ID:                id,
		Email:             email,
		SubscriptionLevel: SubscriptionLevelFree,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }

func (u *User) IsPro() bool { return u != nil && u.SubscriptionLevel == SubscriptionLevelPro }

// ActiveOn reports whether the Pro subscription covers the given day.
func (u *User) ActiveOn(day time.Time) bool {
	if !u.IsPro() || u.SubscriptionEndDate == nil {
		return false
	}
	return !u.SubscriptionEndDate.Before(day)
}
