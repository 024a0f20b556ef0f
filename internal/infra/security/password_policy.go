package security

const (
	defaultMinPasswordLength = 8
	defaultMinZxcvbnScore    = 1
)

// DefaultPasswordValidator returns the built-in validator enforcing the
// staff password policy: minimum length plus at least one letter and
// one digit, with a zxcvbn floor to reject trivially guessable values.
func DefaultPasswordValidator() *PasswordValidator {
	return NewPasswordValidator(
		MinLengthRule(defaultMinPasswordLength),
		RequireLetterRule(),
		RequireDigitRule(),
		RequirePasswordStrengthRule(defaultMinZxcvbnScore),
	)
}

// NewPasswordValidatorWithContext includes additional user inputs
// (identity key, name, email) so passwords derived from them score low.
func NewPasswordValidatorWithContext(userInputs ...string) *PasswordValidator {
	return NewPasswordValidator(
		MinLengthRule(defaultMinPasswordLength),
		RequireLetterRule(),
		RequireDigitRule(),
		RequirePasswordStrengthRule(defaultMinZxcvbnScore, userInputs...),
	)
}
