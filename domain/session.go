package domain

import "time"

// DeviceSessionStatus represents the state of a device authorization session.
type DeviceSessionStatus string

const (
	DeviceSessionStatusPending    DeviceSessionStatus = "pending"
	DeviceSessionStatusAuthorized DeviceSessionStatus = "authorized"
)

// DeviceSession holds one in-flight device authorization attempt.
//
// DeviceCode is the high-entropy secret known only to the polling device;
// UserCode is the short code the user enters on the companion device. The
// only legal mutation is pending -> authorized; redeeming the session deletes
// the record, so a device code can never be claimed twice.
type DeviceSession struct {
	ID           string              `bson:"_id" json:"id"`
	DeviceCode   string              `bson:"device_code" json:"device_code"`
	UserCode     string              `bson:"user_code" json:"user_code"`
	DeviceType   string              `bson:"device_type" json:"device_type"`
	Status       DeviceSessionStatus `bson:"status" json:"status"`
	UserID       string              `bson:"user_id,omitempty" json:"user_id,omitempty"`
	UserEmail    string              `bson:"user_email,omitempty" json:"user_email,omitempty"`
	Interval     int                 `bson:"interval" json:"interval"`
	ExpiresAt    time.Time           `bson:"expires_at" json:"expires_at"`
	CreatedAt    time.Time           `bson:"created_at" json:"created_at"`
	LastPolledAt time.Time           `bson:"last_polled_at,omitempty" json:"last_polled_at,omitempty"`
}

// IsExpired reports whether the session's TTL has elapsed at the given time.
func (s *DeviceSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
