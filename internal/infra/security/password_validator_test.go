package security

import (
	"errors"
	"testing"
)

func TestDefaultPasswordValidatorSuccess(t *testing.T) {
	validator := DefaultPasswordValidator()

	for _, password := range []string{"Test123456!", "C0mplex!Passphrase#2025"} {
		if err := validator.Validate(password); err != nil {
			t.Fatalf("expected %q to pass validation, got %v", password, err)
		}
	}
}

func TestDefaultPasswordValidatorViolations(t *testing.T) {
	validator := DefaultPasswordValidator()

	assertViolation := func(password, expectedCode string) {
		t.Helper()
		err := validator.Validate(password)
		if err == nil {
			t.Fatalf("expected validation error for %s", expectedCode)
		}
		var vErr *PasswordValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected PasswordValidationError, got %T", err)
		}
		if vErr.Code != expectedCode {
			t.Fatalf("expected %s code, got %s", expectedCode, vErr.Code)
		}
	}

	assertViolation("123456", "min_length")
	assertViolation("12345678", "letter")
	assertViolation("abcdefgh", "digit")
	assertViolation("password1", "weak_password")
}

func TestPasswordValidatorWithContextPenalizesUserInputs(t *testing.T) {
	validator := NewPasswordValidatorWithContext("doctor19850706")

	// The exact identity value scores zero once supplied as user input.
	if err := validator.Validate("doctor19850706"); err == nil {
		t.Fatal("expected password equal to a known identity value to be rejected")
	}
}

func TestCustomPasswordValidator(t *testing.T) {
	validator := NewPasswordValidator(
		MinLengthRule(4),
		RequireDigitRule(),
	)

	if err := validator.Validate("abc"); err == nil {
		t.Fatal("expected validation error for short password")
	}
	if err := validator.Validate("abcd"); err == nil {
		t.Fatal("expected validation error for missing digit")
	}
	if err := validator.Validate("abc1"); err != nil {
		t.Fatalf("expected password to pass custom validation, got %v", err)
	}
}
