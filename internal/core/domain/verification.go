package domain

import "time"

// RegistrationProfile carries the applicant data held by a pending
// verification session until the emailed code is confirmed.
type RegistrationProfile struct {
	Kind        AccountKind
	IdentityKey string
	Name        string
	Email       string
	Department  string
}

// VerificationSession is a pending registration awaiting email-code
// confirmation. The password and the code are stored only as hashes;
// the plaintexts never outlive the request that produced them.
type VerificationSession struct {
	ID                string
	Profile           RegistrationProfile
	PasswordHash      string
	CodeHash          string
	CreatedAt         time.Time
	LastSentAt        time.Time
	ExpiresAt         time.Time
	AttemptsRemaining int
}

// Expired reports whether the session has passed its expiry instant.
func (s *VerificationSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ResendAvailableAt returns the earliest instant at which another code
// email may be requested for this session.
func (s *VerificationSession) ResendAvailableAt(interval time.Duration) time.Time {
	return s.LastSentAt.Add(interval)
}
