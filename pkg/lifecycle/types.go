// Package lifecycle implements grace-period account deactivation and admin-reviewed
// reactivation.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
)

const (
	// DefaultGracePeriod separates a deactivation request from automatic deactivation.
	DefaultGracePeriod = 5 * 24 * time.Hour

	maxFreeTextLength = 2000
)

// State is the derived lifecycle state of an account.
type State string

const (
	StateActive              State = "active"
	StatePendingDeactivation State = "pending_deactivation"
	StateDeactivated         State = "deactivated"
)

// RequestStatus is the review status of a reactivation request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// ParseRequestStatus validates a stored or user supplied status.
func ParseRequestStatus(raw string) (RequestStatus, error) {
	status := RequestStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case RequestPending, RequestApproved, RequestRejected:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRequestStatus, raw)
	}
}

// String returns the stored representation.
func (status RequestStatus) String() string {
	return string(status)
}

// AccountStatus mirrors the lifecycle fields of a user record. The two deactivation
// timestamps are always both set or both nil.
type AccountStatus struct {
	UserID                  ledger.UserID
	Email                   string
	IsDeactivated           bool
	DeactivationRequestedAt *time.Time
	DeactivationScheduledAt *time.Time
}

// State derives the lifecycle state from the stored fields.
func (status AccountStatus) State() State {
	if status.IsDeactivated {
		return StateDeactivated
	}
	if status.DeactivationScheduledAt != nil {
		return StatePendingDeactivation
	}
	return StateActive
}

// ReactivationRequest is a deactivated user's request to be let back in.
type ReactivationRequest struct {
	RequestID  string
	UserID     ledger.UserID
	Email      string
	Reason     string
	Status     RequestStatus
	ReviewedBy string
	ReviewedAt *time.Time
	AdminNotes string
	CreatedAt  time.Time
}

// Review is the admin decision applied to a pending request.
type Review struct {
	Status     RequestStatus
	ReviewedBy ledger.UserID
	ReviewedAt time.Time
	AdminNotes string
}

// RequestFilter narrows the admin listing.
type RequestFilter struct {
	Status *RequestStatus
	Limit  int
	Offset int
}

// StatusView is the lifecycle query result exposed to callers.
type StatusView struct {
	Status         AccountStatus
	State          State
	PendingRequest *ReactivationRequest
}

// SweepResult lists the users deactivated by one sweep run.
type SweepResult struct {
	Deactivated []ledger.UserID
}

// NormalizeFreeText trims user supplied reason or notes text and bounds its length.
func NormalizeFreeText(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if utf8.RuneCountInString(trimmed) > maxFreeTextLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidNotes, maxFreeTextLength)
	}
	return trimmed, nil
}

// Store is the persistence contract used by Service. Every conditional write reports
// ErrInvalidStateTransition when its precondition no longer holds.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	UpsertUser(ctx context.Context, userID ledger.UserID, email string) error
	// GetStatus returns ledger.ErrNotFound for unknown users; in a transaction the row is locked.
	GetStatus(ctx context.Context, userID ledger.UserID) (AccountStatus, error)
	ScheduleDeactivation(ctx context.Context, userID ledger.UserID, requestedAt time.Time, scheduledAt time.Time) error
	ClearScheduledDeactivation(ctx context.Context, userID ledger.UserID) error
	ListDueDeactivations(ctx context.Context, now time.Time, limit int) ([]ledger.UserID, error)
	// FinalizeDeactivation flips is_deactivated only while the schedule is still set and due.
	FinalizeDeactivation(ctx context.Context, userID ledger.UserID, now time.Time) (bool, error)
	Reactivate(ctx context.Context, userID ledger.UserID) error

	// CreateReactivationRequest fails with ErrAlreadyPendingRequest when the user already
	// has a pending request.
	CreateReactivationRequest(ctx context.Context, request ReactivationRequest) (ReactivationRequest, error)
	GetReactivationRequest(ctx context.Context, requestID string) (ReactivationRequest, error)
	GetPendingReactivationRequest(ctx context.Context, userID ledger.UserID) (ReactivationRequest, error)
	ResolveReactivationRequest(ctx context.Context, requestID string, review Review) (ReactivationRequest, error)
	ListReactivationRequests(ctx context.Context, filter RequestFilter) ([]ReactivationRequest, error)
}
