package ledger

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestNewUserID(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		input   string
		wantErr error
		wantVal string
	}{
		{name: "valid", input: " user-123 ", wantVal: "user-123"},
		{name: "empty", input: "   ", wantErr: ErrInvalidUserID},
		{name: "longest", input: strings.Repeat("u", maxIdentifierLength), wantVal: strings.Repeat("u", maxIdentifierLength)},
		{name: "too long", input: strings.Repeat("u", maxIdentifierLength+1), wantErr: ErrInvalidUserID},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			result, err := NewUserID(tc.input)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected error %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.String() != tc.wantVal {
				t.Fatalf("expected %q, got %q", tc.wantVal, result.String())
			}
		})
	}
}

func TestNewApplicationID(t *testing.T) {
	t.Parallel()
	_, err := NewApplicationID("")
	if !errors.Is(err, ErrInvalidApplicationID) {
		t.Fatalf("expected ErrInvalidApplicationID, got %v", err)
	}
	_, err = NewApplicationID(strings.Repeat("a", maxIdentifierLength+1))
	if !errors.Is(err, ErrInvalidApplicationID) {
		t.Fatalf("expected ErrInvalidApplicationID for oversized id, got %v", err)
	}
	longest, err := NewApplicationID(strings.Repeat("a", maxIdentifierLength))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewDescription(unlockDescriptionPrefix + longest.String()); err != nil {
		t.Fatalf("unlock description must fit for the longest id: %v", err)
	}
}

func TestCreditsAddDetectsOverflow(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		balance Credits
		delta   Credits
		want    Credits
		wantErr bool
	}{
		{name: "credit", balance: 10, delta: 5, want: 15},
		{name: "debit below zero", balance: 10, delta: -15, want: -5},
		{name: "up to max", balance: 10, delta: Credits(math.MaxInt64 - 10), want: Credits(math.MaxInt64)},
		{name: "overflow", balance: 10, delta: Credits(math.MaxInt64), wantErr: true},
		{name: "underflow", balance: -5, delta: Credits(math.MinInt64), wantErr: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			result, err := tc.balance.Add(tc.delta)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Fatalf("expected ErrInvalidAmount, got %v", err)
				}
				return
			}
			if err != nil || result != tc.want {
				t.Fatalf("expected %d, got %d (%v)", tc.want, result, err)
			}
		})
	}
}

func TestNewCreditsAndCost(t *testing.T) {
	t.Parallel()
	if _, err := NewCredits(0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	value, err := NewCredits(-40)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value.Negated() != 40 {
		t.Fatalf("expected 40, got %d", value.Negated())
	}
	if _, err := NewCost(-1); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative cost, got %v", err)
	}
}

func TestNewMetadataJSON(t *testing.T) {
	t.Parallel()
	meta, err := NewMetadataJSON("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.String() != "{}" {
		t.Fatalf("expected default metadata to be '{}', got %q", meta.String())
	}
	if (MetadataJSON{}).String() != "{}" {
		t.Fatalf("expected zero metadata to render as '{}'")
	}
	_, err = NewMetadataJSON("not-json")
	if !errors.Is(err, ErrInvalidMetadataJSON) {
		t.Fatalf("expected ErrInvalidMetadataJSON, got %v", err)
	}
}

func TestNewDescription(test *testing.T) {
	test.Parallel()
	description := mustDescription(test, "  admin correction ")
	if description.String() != "admin correction" {
		test.Fatalf("expected trimmed description, got %q", description.String())
	}
	_, err := NewDescription(strings.Repeat("é", maxDescriptionLength+1))
	if !errors.Is(err, ErrInvalidDescription) {
		test.Fatalf("expected ErrInvalidDescription, got %v", err)
	}
	if _, err := NewDescription(strings.Repeat("é", maxDescriptionLength)); err != nil {
		test.Fatalf("expected rune-counted limit to accept %d characters, got %v", maxDescriptionLength, err)
	}
}

func TestParseTransactionKind(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		raw     string
		want    TransactionKind
		wantErr error
	}{
		{raw: "signup_bonus", want: KindSignupBonus},
		{raw: " profile_unlock_charge ", want: KindProfileUnlockCharge},
		{raw: "admin_adjustment", want: KindAdminAdjustment},
		{raw: "refund", want: KindRefund},
		{raw: "Refund", wantErr: ErrInvalidTransactionKind},
		{raw: "", wantErr: ErrInvalidTransactionKind},
	}
	for _, testCase := range testCases {
		kind, err := ParseTransactionKind(testCase.raw)
		if testCase.wantErr != nil {
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf("%q: expected %v, got %v", testCase.raw, testCase.wantErr, err)
			}
			continue
		}
		if err != nil || kind != testCase.want {
			test.Fatalf("%q: expected %s, got %s (%v)", testCase.raw, testCase.want, kind, err)
		}
	}
}

func TestParseRoleAndAdminCheck(test *testing.T) {
	test.Parallel()
	role, err := ParseRole(" Admin ")
	if err != nil || role != RoleAdmin {
		test.Fatalf("expected admin role, got %s (%v)", role, err)
	}
	if _, err := ParseRole("owner"); !errors.Is(err, ErrForbidden) {
		test.Fatalf("expected ErrForbidden, got %v", err)
	}
	if (Actor{Role: RoleAdmin}).IsAdmin() {
		test.Fatalf("expected an admin without a user id to be rejected")
	}
	if !(Actor{UserID: mustUserID(test, "admin-1"), Role: RoleAdmin}).IsAdmin() {
		test.Fatalf("expected admin actor")
	}
	if (Actor{UserID: mustUserID(test, "company-1"), Role: RoleCompany}).IsAdmin() {
		test.Fatalf("expected company actor not to be admin")
	}
}

func TestNormalizeListLimit(test *testing.T) {
	test.Parallel()
	if limit, err := NormalizeListLimit(-3); err != nil || limit != DefaultListLimit {
		test.Fatalf("expected default limit, got %d (%v)", limit, err)
	}
	if limit, err := NormalizeListLimit(MaxListLimit); err != nil || limit != MaxListLimit {
		test.Fatalf("expected max limit accepted, got %d (%v)", limit, err)
	}
	if _, err := NormalizeListLimit(MaxListLimit + 1); !errors.Is(err, ErrInvalidListLimit) {
		test.Fatalf("expected ErrInvalidListLimit, got %v", err)
	}
}
