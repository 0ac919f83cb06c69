package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
)

var (
	dayZero         = time.Date(2026, time.January, 5, 12, 0, 0, 0, time.UTC)
	errStoreFailure = errors.New("store error")
)

type testClock struct {
	current time.Time
}

func (clock *testClock) Now() time.Time {
	return clock.current
}

func (clock *testClock) advance(duration time.Duration) {
	clock.current = clock.current.Add(duration)
}

// stubStore keeps users and requests in memory and mirrors the conditional writes of the
// SQL stores. WithTx restores a snapshot when fn fails.
type stubStore struct {
	users    map[string]AccountStatus
	requests []ReactivationRequest

	txCalls       int
	listDueCalls  int
	finalizeError error
	getError      error
	createError   error
}

func newStubStore() *stubStore {
	return &stubStore{users: make(map[string]AccountStatus)}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.txCalls++
	users := make(map[string]AccountStatus, len(store.users))
	for key, status := range store.users {
		users[key] = status
	}
	requests := append([]ReactivationRequest(nil), store.requests...)
	if err := fn(ctx, store); err != nil {
		store.users = users
		store.requests = requests
		return err
	}
	return nil
}

func (store *stubStore) UpsertUser(ctx context.Context, userID ledger.UserID, email string) error {
	status, ok := store.users[userID.String()]
	if !ok {
		status = AccountStatus{UserID: userID}
	}
	status.Email = email
	store.users[userID.String()] = status
	return nil
}

func (store *stubStore) GetStatus(ctx context.Context, userID ledger.UserID) (AccountStatus, error) {
	if store.getError != nil {
		return AccountStatus{}, store.getError
	}
	status, ok := store.users[userID.String()]
	if !ok {
		return AccountStatus{}, ledger.ErrNotFound
	}
	return status, nil
}

func (store *stubStore) ScheduleDeactivation(ctx context.Context, userID ledger.UserID, requestedAt time.Time, scheduledAt time.Time) error {
	status, ok := store.users[userID.String()]
	if !ok || status.IsDeactivated || status.DeactivationScheduledAt != nil {
		return ErrInvalidStateTransition
	}
	status.DeactivationRequestedAt = &requestedAt
	status.DeactivationScheduledAt = &scheduledAt
	store.users[userID.String()] = status
	return nil
}

func (store *stubStore) ClearScheduledDeactivation(ctx context.Context, userID ledger.UserID) error {
	status, ok := store.users[userID.String()]
	if !ok || status.State() != StatePendingDeactivation {
		return ErrInvalidStateTransition
	}
	status.DeactivationRequestedAt = nil
	status.DeactivationScheduledAt = nil
	store.users[userID.String()] = status
	return nil
}

func (store *stubStore) ListDueDeactivations(ctx context.Context, now time.Time, limit int) ([]ledger.UserID, error) {
	store.listDueCalls++
	keys := make([]string, 0)
	for key, status := range store.users {
		if isDue(status, now) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	due := make([]ledger.UserID, 0, len(keys))
	for _, key := range keys {
		due = append(due, store.users[key].UserID)
	}
	return due, nil
}

func (store *stubStore) FinalizeDeactivation(ctx context.Context, userID ledger.UserID, now time.Time) (bool, error) {
	if store.finalizeError != nil {
		return false, store.finalizeError
	}
	status, ok := store.users[userID.String()]
	if !ok || !isDue(status, now) {
		return false, nil
	}
	status.IsDeactivated = true
	store.users[userID.String()] = status
	return true, nil
}

func (store *stubStore) Reactivate(ctx context.Context, userID ledger.UserID) error {
	status, ok := store.users[userID.String()]
	if !ok {
		return ledger.ErrNotFound
	}
	status.IsDeactivated = false
	status.DeactivationRequestedAt = nil
	status.DeactivationScheduledAt = nil
	store.users[userID.String()] = status
	return nil
}

func (store *stubStore) CreateReactivationRequest(ctx context.Context, request ReactivationRequest) (ReactivationRequest, error) {
	if store.createError != nil {
		return ReactivationRequest{}, store.createError
	}
	for _, existing := range store.requests {
		if existing.UserID == request.UserID && existing.Status == RequestPending {
			return ReactivationRequest{}, ErrAlreadyPendingRequest
		}
	}
	request.RequestID = fmt.Sprintf("request-%d", len(store.requests)+1)
	store.requests = append(store.requests, request)
	return request, nil
}

func (store *stubStore) GetReactivationRequest(ctx context.Context, requestID string) (ReactivationRequest, error) {
	for _, request := range store.requests {
		if request.RequestID == requestID {
			return request, nil
		}
	}
	return ReactivationRequest{}, ledger.ErrNotFound
}

func (store *stubStore) GetPendingReactivationRequest(ctx context.Context, userID ledger.UserID) (ReactivationRequest, error) {
	for _, request := range store.requests {
		if request.UserID == userID && request.Status == RequestPending {
			return request, nil
		}
	}
	return ReactivationRequest{}, ledger.ErrNotFound
}

func (store *stubStore) ResolveReactivationRequest(ctx context.Context, requestID string, review Review) (ReactivationRequest, error) {
	for index, request := range store.requests {
		if request.RequestID != requestID {
			continue
		}
		if request.Status != RequestPending {
			return ReactivationRequest{}, ErrInvalidStateTransition
		}
		reviewedAt := review.ReviewedAt
		request.Status = review.Status
		request.ReviewedBy = review.ReviewedBy.String()
		request.ReviewedAt = &reviewedAt
		request.AdminNotes = review.AdminNotes
		store.requests[index] = request
		return request, nil
	}
	return ReactivationRequest{}, ErrInvalidStateTransition
}

func (store *stubStore) ListReactivationRequests(ctx context.Context, filter RequestFilter) ([]ReactivationRequest, error) {
	listed := make([]ReactivationRequest, 0)
	for index := len(store.requests) - 1; index >= 0; index-- {
		request := store.requests[index]
		if filter.Status != nil && request.Status != *filter.Status {
			continue
		}
		listed = append(listed, request)
	}
	if filter.Offset >= len(listed) {
		return []ReactivationRequest{}, nil
	}
	listed = listed[filter.Offset:]
	if len(listed) > filter.Limit {
		listed = listed[:filter.Limit]
	}
	return listed, nil
}

func (store *stubStore) seedUser(userID ledger.UserID, email string) {
	store.users[userID.String()] = AccountStatus{UserID: userID, Email: email}
}

func (store *stubStore) seedDeactivated(userID ledger.UserID, email string) {
	store.users[userID.String()] = AccountStatus{UserID: userID, Email: email, IsDeactivated: true}
}

func isDue(status AccountStatus, now time.Time) bool {
	return !status.IsDeactivated && status.DeactivationScheduledAt != nil && !status.DeactivationScheduledAt.After(now)
}

type recordingTransitionLogger struct {
	entries []TransitionLog
}

func (logger *recordingTransitionLogger) LogTransition(_ context.Context, entry TransitionLog) {
	logger.entries = append(logger.entries, entry)
}

type recordingInvalidator struct {
	calls []ledger.UserID
	err   error
}

func (invalidator *recordingInvalidator) InvalidateSessions(_ context.Context, userID ledger.UserID) error {
	invalidator.calls = append(invalidator.calls, userID)
	return invalidator.err
}

func mustNewService(test *testing.T, store Store, clock *testClock, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, clock.Now, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) ledger.UserID {
	test.Helper()
	userID, err := ledger.NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func userActor(test *testing.T, raw string) ledger.Actor {
	test.Helper()
	return ledger.Actor{UserID: mustUserID(test, raw), Role: ledger.RoleApplicant}
}

func adminActor(test *testing.T) ledger.Actor {
	test.Helper()
	return ledger.Actor{UserID: mustUserID(test, "admin-1"), Role: ledger.RoleAdmin}
}
