// Package store defines the persisted per-user record and its storage
// boundary. Two backends are provided: a JSON file-per-uid store and a Redis
// store. Records are created with defaults on first access, so callers never
// see a missing record.
package store

import (
	"context"
	"time"
)

// AuthStatus is the persisted authentication state of a user.
type AuthStatus string

const (
	StatusNotAuthenticated AuthStatus = "not_authenticated"
	StatusWaitingLogin     AuthStatus = "waiting_login"
	StatusWaitingTwoFactor AuthStatus = "waiting_2fa"
	StatusCompleted        AuthStatus = "completed"
	StatusFailed           AuthStatus = "failed"
)

// Booking records the outcome of the most recent ride request.
type Booking struct {
	Route      string    `json:"route"`
	DriverName string    `json:"driver_name,omitempty"`
	ETA        string    `json:"eta,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// UserRecord is the durable per-user state. The auth controller owns
// AuthStatus/Authenticated/SessionBlob; the booking pipeline owns LastBooking.
type UserRecord struct {
	UID           string     `json:"uid"`
	AuthStatus    AuthStatus `json:"auth_status"`
	Authenticated bool       `json:"authenticated"`

	// SessionBlob is the opaque exported browser-context state. It is
	// passed through to the browser driver unchanged.
	SessionBlob []byte `json:"session_blob,omitempty"`

	LastBooking *Booking  `json:"last_booking,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewUserRecord returns the default record for a uid seen for the first time.
func NewUserRecord(uid string) *UserRecord {
	now := time.Now().UTC()
	return &UserRecord{
		UID:        uid,
		AuthStatus: StatusNotAuthenticated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Store is the persisted user store boundary.
type Store interface {
	// Load returns the record for uid, or a default record if none exists.
	Load(ctx context.Context, uid string) (*UserRecord, error)

	// Save persists the record.
	Save(ctx context.Context, rec *UserRecord) error
}

// UpdateStatus loads, updates the auth status, and saves. A nil authenticated
// leaves the authenticated flag untouched.
func UpdateStatus(ctx context.Context, s Store, uid string, status AuthStatus, authenticated *bool) error {
	rec, err := s.Load(ctx, uid)
	if err != nil {
		return err
	}
	rec.AuthStatus = status
	if authenticated != nil {
		rec.Authenticated = *authenticated
	}
	rec.UpdatedAt = time.Now().UTC()
	return s.Save(ctx, rec)
}

// SaveSession persists an exported session blob and marks the user
// authenticated and completed in one write.
func SaveSession(ctx context.Context, s Store, uid string, blob []byte) error {
	rec, err := s.Load(ctx, uid)
	if err != nil {
		return err
	}
	rec.SessionBlob = blob
	rec.Authenticated = true
	rec.AuthStatus = StatusCompleted
	rec.UpdatedAt = time.Now().UTC()
	return s.Save(ctx, rec)
}

// RecordBooking persists the outcome of a completed booking.
func RecordBooking(ctx context.Context, s Store, uid, route, driverName, eta string) error {
	rec, err := s.Load(ctx, uid)
	if err != nil {
		return err
	}
	rec.LastBooking = &Booking{
		Route:      route,
		DriverName: driverName,
		ETA:        eta,
		Timestamp:  time.Now().UTC(),
	}
	rec.UpdatedAt = time.Now().UTC()
	return s.Save(ctx, rec)
}
