package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{Invalid("amount must be positive"), "invalid_input"},
		{fmt.Errorf("debit: %w", ErrInsufficientBalance), "insufficient_balance"},
		{ErrNotFound, "not_found"},
		{&CooldownError{UserId: "u1", RiskScore: 9.5}, "cooldown"},
		{&ActionDeniedError{UserId: "u1", Action: "START_CALL", Regime: "RESTRICTED", Cp: 60}, "action_denied"},
		{fmt.Errorf("update: %w", ErrConflict), "conflict"},
		{ErrExternalUnavailable, "external_unavailable"},
		{ErrPolicyMissing, "policy_missing"},
		{ErrDuplicateTransaction, "duplicate"},
		{errors.New("disk on fire"), "internal"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestActionDeniedError_Unwraps(t *testing.T) {
	var err error = &ActionDeniedError{UserId: "u1", Action: "START_CALL", Regime: "RESTRICTED", Cp: 60}
	if !errors.Is(err, ErrActionDenied) {
		t.Fatalf("expected errors.Is(err, ErrActionDenied)")
	}
	var denied *ActionDeniedError
	if !errors.As(fmt.Errorf("wrapped: %w", err), &denied) {
		t.Fatalf("expected errors.As to find *ActionDeniedError")
	}
	if denied.Cp != 60 || denied.Regime != "RESTRICTED" {
		t.Errorf("unexpected payload: %+v", denied)
	}
}
