package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

const (
	maxDescriptionLength = 255
	// maxIdentifierLength matches the size of the id columns.
	maxIdentifierLength = 191
	defaultMetadataJSON = "{}"
)

// Credits is a signed quantity of prepaid credits.
type Credits int64

// Int64 returns the raw value.
func (credits Credits) Int64() int64 {
	return int64(credits)
}

// Negated flips the sign.
func (credits Credits) Negated() Credits {
	return -credits
}

// Add returns credits + delta, failing when the sum does not fit in int64.
func (credits Credits) Add(delta Credits) (Credits, error) {
	if delta > 0 && credits > Credits(math.MaxInt64)-delta {
		return 0, fmt.Errorf("%w: balance would overflow", ErrInvalidAmount)
	}
	if delta < 0 && credits < Credits(math.MinInt64)-delta {
		return 0, fmt.Errorf("%w: balance would underflow", ErrInvalidAmount)
	}
	return credits + delta, nil
}

// UserID identifies an account owner.
type UserID struct {
	value string
}

// ApplicationID identifies the applicant profile being unlocked.
type ApplicationID struct {
	value string
}

// MetadataJSON stores arbitrary transaction metadata.
type MetadataJSON struct {
	value string
}

// Description is a short human-readable transaction label.
type Description struct {
	value string
}

// TransactionKind is the closed set of ledger transaction kinds.
type TransactionKind string

const (
	KindSignupBonus         TransactionKind = "signup_bonus"
	KindProfileUnlockCharge TransactionKind = "profile_unlock_charge"
	KindAdminAdjustment     TransactionKind = "admin_adjustment"
	KindRefund              TransactionKind = "refund"
)

// Role is the acting user's role as asserted by the identity layer.
type Role string

const (
	RoleApplicant Role = "applicant"
	RoleCompany   Role = "company"
	RoleAdmin     Role = "admin"
)

// Actor is the authenticated principal performing an operation.
type Actor struct {
	UserID UserID
	Role   Role
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if utf8.RuneCountInString(trimmed) > maxIdentifierLength {
		return UserID{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// IsZero reports whether the id was never initialized.
func (id UserID) IsZero() bool {
	return id.value == ""
}

// NewApplicationID validates and normalizes an application id.
func NewApplicationID(raw string) (ApplicationID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ApplicationID{}, fmt.Errorf("%w: empty value", ErrInvalidApplicationID)
	}
	if utf8.RuneCountInString(trimmed) > maxIdentifierLength {
		return ApplicationID{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidApplicationID, maxIdentifierLength)
	}
	return ApplicationID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ApplicationID) String() string {
	return id.value
}

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = defaultMetadataJSON
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return defaultMetadataJSON
	}
	return metadata.value
}

// NewDescription trims and bounds a transaction description.
func NewDescription(raw string) (Description, error) {
	trimmed := strings.TrimSpace(raw)
	if utf8.RuneCountInString(trimmed) > maxDescriptionLength {
		return Description{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidDescription, maxDescriptionLength)
	}
	return Description{value: trimmed}, nil
}

// String returns the normalized description.
func (description Description) String() string {
	return description.value
}

// NewCredits validates a non-zero signed transaction amount.
func NewCredits(raw int64) (Credits, error) {
	if raw == 0 {
		return 0, fmt.Errorf("%w: must not be zero", ErrInvalidAmount)
	}
	return Credits(raw), nil
}

// NewCost validates a strictly positive unlock cost.
func NewCost(raw int64) (Credits, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: cost must be greater than zero", ErrInvalidAmount)
	}
	return Credits(raw), nil
}

// ParseTransactionKind validates a persisted or user supplied kind.
func ParseTransactionKind(raw string) (TransactionKind, error) {
	kind := TransactionKind(strings.TrimSpace(raw))
	switch kind {
	case KindSignupBonus, KindProfileUnlockCharge, KindAdminAdjustment, KindRefund:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTransactionKind, raw)
	}
}

// String returns the stored representation.
func (kind TransactionKind) String() string {
	return string(kind)
}

// ParseRole validates a role claim.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RoleApplicant, RoleCompany, RoleAdmin:
		return role, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrForbidden, raw)
	}
}

// IsAdmin reports whether the actor may perform privileged operations.
func (actor Actor) IsAdmin() bool {
	return actor.Role == RoleAdmin && !actor.UserID.IsZero()
}

// Account is the cached balance row of one user.
type Account struct {
	UserID  UserID
	Balance Credits
	Version int64
}

// TransactionInput is a validated, not yet persisted ledger transaction.
type TransactionInput struct {
	UserID         UserID
	Amount         Credits
	Kind           TransactionKind
	Description    Description
	Metadata       MetadataJSON
	CreatedUnixUTC int64
}

// Transaction is a single immutable line in the ledger.
type Transaction struct {
	TransactionID  string
	UserID         UserID
	Amount         Credits
	Kind           TransactionKind
	Description    string
	Metadata       MetadataJSON
	CreatedUnixUTC int64
}

// GrantInput is a validated, not yet persisted profile view grant.
type GrantInput struct {
	ViewerID       UserID
	SubjectID      ApplicationID
	CreatedUnixUTC int64
}

// ProfileViewGrant records that a viewer has paid to see an applicant profile.
type ProfileViewGrant struct {
	GrantID        string
	ViewerID       UserID
	SubjectID      ApplicationID
	CreatedUnixUTC int64
}

// Store is the persistence contract used by Service. WithTx hands fn a store bound to
// one database transaction; everything fn does commits or rolls back together.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	LedgerStore
	GrantStore
}

// LedgerStore persists credit accounts and the append-only transaction log.
type LedgerStore interface {
	// LockAccount returns the user's account, creating an empty one when absent.
	// Inside a transaction the row stays locked until commit.
	LockAccount(ctx context.Context, userID UserID) (Account, error)
	GetAccount(ctx context.Context, userID UserID) (Account, error)
	// UpdateBalance writes the cached balance if the stored version still equals
	// expectedVersion, and fails with ErrStorageConflict otherwise.
	UpdateBalance(ctx context.Context, userID UserID, expectedVersion int64, balance Credits) error
	InsertTransaction(ctx context.Context, input TransactionInput) (Transaction, error)
	SumTransactions(ctx context.Context, userID UserID) (Credits, error)
	ListTransactions(ctx context.Context, userID UserID, beforeUnixUTC int64, limit int) ([]Transaction, error)
	ListAccounts(ctx context.Context, afterUserID string, limit int) ([]Account, error)
}

// GrantStore persists permanent profile view grants.
type GrantStore interface {
	GetGrant(ctx context.Context, viewerID UserID, subjectID ApplicationID) (ProfileViewGrant, error)
	// InsertGrant fails with ErrStorageConflict when the pair already exists.
	InsertGrant(ctx context.Context, input GrantInput) (ProfileViewGrant, error)
	ListGrants(ctx context.Context, viewerID UserID) ([]ProfileViewGrant, error)
}
