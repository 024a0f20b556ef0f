package domain

import "time"

// AccountRegisteredEvent represents the payload for med.account.registered messages.
type AccountRegisteredEvent struct {
	EventID      string
	AccountID    string
	Kind         string
	IdentityKey  string
	Email        string
	Department   string
	RegisteredAt time.Time
	Metadata     map[string]any
}

// AccountLockedEvent represents the payload for med.account.locked messages.
type AccountLockedEvent struct {
	EventID     string
	AccountID   string
	Kind        string
	IdentityKey string
	Attempts    int
	LockedAt    time.Time
	LockedUntil time.Time
	Metadata    map[string]any
}

// PredictionCreatedEvent represents the payload for med.prediction.created messages.
type PredictionCreatedEvent struct {
	EventID    string
	RecordID   int64
	SequenceID int64
	PatientID  int64
	CreatedAt  time.Time
	Metadata   map[string]any
}
