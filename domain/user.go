package domain

import "time"

// User represents an internal user record. Users are created on first sight
// of a verified provider identity; there is no password authentication
// anywhere in this system.
type User struct {
	ID          string    `bson:"_id" json:"id"`
	Email       string    `bson:"email" json:"email"`
	Provider    string    `bson:"provider" json:"provider"`
	Subject     string    `bson:"subject" json:"subject"` // provider-side stable user id
	DisplayName string    `bson:"display_name,omitempty" json:"display_name,omitempty"`
	Picture     string    `bson:"picture,omitempty" json:"picture,omitempty"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	LastLoginAt time.Time `bson:"last_login_at,omitempty" json:"last_login_at,omitempty"`
}
