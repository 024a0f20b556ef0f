package port

import "context"

// CodeSender delivers verification codes to applicants. Delivery runs
// outside the session-store critical path; failures are reported, not
// propagated into the registration verdict.
type CodeSender interface {
	SendVerificationCode(ctx context.Context, email, name, code string) error
}
