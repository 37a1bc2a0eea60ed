package types

import "time"

// User is the internal identity record for a commerce-platform user.
// Rows are created lazily on first sight and never deleted; only blank
// profile fields are ever filled in afterwards.
type User struct {
	ID             string    `json:"id" db:"id"`
	ExternalUserID string    `json:"external_user_id" db:"external_user_id"`
	Username       *string   `json:"username,omitempty" db:"username"`
	Email          *string   `json:"email,omitempty" db:"email"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// UserProfile carries the optional profile fields fetched from the identity
// service. Both fields may be empty.
type UserProfile struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Purchase is an append-only record of a payment observed on the platform.
type Purchase struct {
	ID                string         `json:"id" db:"id"`
	UserID            string         `json:"user_id" db:"user_id"`
	ExternalPaymentID string         `json:"external_payment_id" db:"external_payment_id"`
	Amount            float64        `json:"amount" db:"amount"`
	Status            PurchaseStatus `json:"status" db:"status"`
	Metadata          Metadata       `json:"metadata" db:"metadata"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
}

// EntitlementGrant records that a user has paid-for access to a resource.
// At most one grant exists per (UserID, ResourceID).
type EntitlementGrant struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"user_id" db:"user_id"`
	ResourceID string    `json:"resource_id" db:"resource_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
