package ledger

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/events"
)

func TestApplyTransactionAppendsEntryAndMovesBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	userID := mustUserID(test, "company-1")

	balance, err := service.ApplyTransaction(context.Background(), userID, 200, KindSignupBonus, mustDescription(test, "welcome"))
	if err != nil {
		test.Fatalf("apply: %v", err)
	}
	if balance != 200 {
		test.Fatalf("expected balance 200, got %d", balance)
	}
	if len(store.transactions) != 1 {
		test.Fatalf("expected 1 transaction, got %d", len(store.transactions))
	}
	transaction := store.transactions[0]
	if transaction.Kind != KindSignupBonus || transaction.Amount != 200 || transaction.Description != "welcome" {
		test.Fatalf("unexpected transaction: %+v", transaction)
	}
	if transaction.CreatedUnixUTC != stubNowUnixUTC {
		test.Fatalf("expected created %d, got %d", stubNowUnixUTC, transaction.CreatedUnixUTC)
	}
	if store.accounts[userID.String()].Version != 1 {
		test.Fatalf("expected version bump, got %d", store.accounts[userID.String()].Version)
	}
}

func TestApplyTransactionRejectsZeroAmount(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)

	_, err := service.ApplyTransaction(context.Background(), mustUserID(test, "user"), 0, KindRefund, Description{})
	if !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if store.txCalls != 0 {
		test.Fatalf("expected no transaction to start, got %d", store.txCalls)
	}
}

func TestApplyTransactionFloorAppliesToAdminDebits(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	userID := mustUserID(test, "company-2")
	store.seedBalance(userID, 30)
	service := mustNewService(test, store)

	_, err := service.ApplyTransaction(context.Background(), userID, -50, KindAdminAdjustment, Description{})
	if !errors.Is(err, ErrInsufficientBalance) {
		test.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if len(store.transactions) != 0 || store.accounts[userID.String()].Balance != 30 {
		test.Fatalf("expected no state change, got %d transactions and balance %d", len(store.transactions), store.accounts[userID.String()].Balance)
	}

	metadata := mustMetadata(test, `{"ticket":"chargeback-1"}`)
	balance, err := service.ApplyTransaction(context.Background(), userID, -50, KindAdminAdjustment, Description{}, WithForce(mustAdmin(test, "admin-1")), WithMetadata(metadata))
	if err != nil {
		test.Fatalf("forced apply: %v", err)
	}
	if balance != -20 {
		test.Fatalf("expected forced balance -20, got %d", balance)
	}
	if store.transactions[0].Metadata != metadata {
		test.Fatalf("expected metadata %s, got %s", metadata.String(), store.transactions[0].Metadata.String())
	}
}

func TestApplyTransactionForceRequiresAdminAdjustment(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)

	_, err := service.ApplyTransaction(context.Background(), mustUserID(test, "user"), -10, KindRefund, Description{}, WithForce(mustAdmin(test, "admin-1")))
	if !errors.Is(err, ErrInvalidOverride) {
		test.Fatalf("expected ErrInvalidOverride, got %v", err)
	}
}

func TestApplyTransactionForceRequiresAdminActor(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name  string
		actor Actor
	}{
		{name: "no actor", actor: Actor{}},
		{name: "company", actor: Actor{UserID: mustUserID(test, "company-7"), Role: RoleCompany}},
		{name: "admin role without user", actor: Actor{Role: RoleAdmin}},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore()
			userID := mustUserID(test, "company-8")
			store.seedBalance(userID, 5)
			service := mustNewService(test, store)

			_, err := service.ApplyTransaction(context.Background(), userID, -50, KindAdminAdjustment, Description{}, WithForce(testCase.actor))
			if !errors.Is(err, ErrForbidden) {
				test.Fatalf("expected ErrForbidden, got %v", err)
			}
			if store.txCalls != 0 || store.accounts[userID.String()].Balance != 5 {
				test.Fatalf("expected no state change, got %d tx calls and balance %d", store.txCalls, store.accounts[userID.String()].Balance)
			}
		})
	}
}

func TestApplyTransactionRejectsBalanceOverflow(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	userID := mustUserID(test, "company-9")
	store.seedBalance(userID, 10)
	service := mustNewService(test, store)

	_, err := service.ApplyTransaction(context.Background(), userID, Credits(math.MaxInt64), KindRefund, Description{})
	if !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if len(store.transactions) != 0 || store.accounts[userID.String()].Balance != 10 {
		test.Fatalf("expected no state change, got %d transactions and balance %d", len(store.transactions), store.accounts[userID.String()].Balance)
	}

	store.seedBalance(userID, -5)
	_, err = service.ApplyTransaction(context.Background(), userID, Credits(math.MinInt64), KindAdminAdjustment, Description{}, WithForce(mustAdmin(test, "admin-1")))
	if !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount on forced underflow, got %v", err)
	}
	if store.accounts[userID.String()].Balance != -5 {
		test.Fatalf("expected balance -5, got %d", store.accounts[userID.String()].Balance)
	}
}

func TestCheckOrGrantAccessAcceptsLongestApplicationID(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	viewerID := mustUserID(test, "company-10")
	store.seedBalance(viewerID, 200)
	service := mustNewService(test, store)
	subjectID := mustApplicationID(test, strings.Repeat("a", maxIdentifierLength))

	result, err := service.CheckOrGrantAccess(context.Background(), viewerID, subjectID, 50)
	if err != nil {
		test.Fatalf("unlock: %v", err)
	}
	if !result.Charged || result.Balance != 150 {
		test.Fatalf("unexpected result: %+v", result)
	}
}

func TestApplyTransactionRejectsUnknownKind(test *testing.T) {
	test.Parallel()
	service := mustNewService(test, newStubStore())

	_, err := service.ApplyTransaction(context.Background(), mustUserID(test, "user"), 10, TransactionKind("bonus"), Description{})
	if !errors.Is(err, ErrInvalidTransactionKind) {
		test.Fatalf("expected ErrInvalidTransactionKind, got %v", err)
	}
}

func TestApplyTransactionRetriesVersionConflicts(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.updateConflicts = 2
	service := mustNewService(test, store)
	userID := mustUserID(test, "retry-user")

	balance, err := service.ApplyTransaction(context.Background(), userID, 25, KindRefund, Description{})
	if err != nil {
		test.Fatalf("apply: %v", err)
	}
	if balance != 25 {
		test.Fatalf("expected balance 25, got %d", balance)
	}
	if store.txCalls != 3 {
		test.Fatalf("expected 3 attempts, got %d", store.txCalls)
	}
	if len(store.transactions) != 1 {
		test.Fatalf("expected rolled back attempts to leave 1 transaction, got %d", len(store.transactions))
	}
}

func TestApplyTransactionSurfacesExhaustedConflicts(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.updateConflicts = 100
	service, err := NewService(store, stubClock, WithConflictAttempts(2))
	if err != nil {
		test.Fatalf("new service: %v", err)
	}

	_, err = service.ApplyTransaction(context.Background(), mustUserID(test, "user"), 25, KindRefund, Description{})
	if !errors.Is(err, ErrStorageConflict) {
		test.Fatalf("expected ErrStorageConflict, got %v", err)
	}
	if store.txCalls != 2 {
		test.Fatalf("expected 2 attempts, got %d", store.txCalls)
	}
	if len(store.transactions) != 0 {
		test.Fatalf("expected no committed transactions, got %d", len(store.transactions))
	}
}

func TestBalanceOfUnknownUserIsZero(test *testing.T) {
	test.Parallel()
	service := mustNewService(test, newStubStore())

	balance, err := service.Balance(context.Background(), mustUserID(test, "nobody"))
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		test.Fatalf("expected 0, got %d", balance)
	}
}

func TestCheckOrGrantAccessChargesOnceAndIsIdempotent(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	viewerID := mustUserID(test, "42")
	subjectID := mustApplicationID(test, "7")
	store.seedBalance(viewerID, 200)
	service := mustNewService(test, store)

	first, err := service.CheckOrGrantAccess(context.Background(), viewerID, subjectID, 50)
	if err != nil {
		test.Fatalf("first unlock: %v", err)
	}
	if !first.Charged || first.AlreadyGranted || first.Balance != 150 {
		test.Fatalf("unexpected first result: %+v", first)
	}
	for attempt := 0; attempt < 3; attempt++ {
		repeated, err := service.CheckOrGrantAccess(context.Background(), viewerID, subjectID, 50)
		if err != nil {
			test.Fatalf("repeat unlock: %v", err)
		}
		if repeated.Charged || !repeated.AlreadyGranted || repeated.Balance != 150 {
			test.Fatalf("unexpected repeated result: %+v", repeated)
		}
	}
	if len(store.transactions) != 1 || len(store.grants) != 1 {
		test.Fatalf("expected 1 charge and 1 grant, got %d and %d", len(store.transactions), len(store.grants))
	}
	charge := store.transactions[0]
	if charge.Kind != KindProfileUnlockCharge || charge.Amount != -50 {
		test.Fatalf("unexpected charge: %+v", charge)
	}
	if charge.Metadata.String() != `{"subject_application_id":"7"}` {
		test.Fatalf("unexpected charge metadata: %s", charge.Metadata.String())
	}
}

func TestCheckOrGrantAccessInsufficientBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	viewerID := mustUserID(test, "viewer")
	store.seedBalance(viewerID, 30)
	service := mustNewService(test, store)

	_, err := service.CheckOrGrantAccess(context.Background(), viewerID, mustApplicationID(test, "subject"), 50)
	if !errors.Is(err, ErrInsufficientBalance) {
		test.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if len(store.grants) != 0 || len(store.transactions) != 0 || store.accounts[viewerID.String()].Balance != 30 {
		test.Fatalf("expected no state change")
	}
}

func TestCheckOrGrantAccessLoserOfRaceReturnsExistingGrant(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	viewerID := mustUserID(test, "viewer")
	subjectID := mustApplicationID(test, "subject")
	store.seedBalance(viewerID, 100)
	store.raceGrant = true
	service := mustNewService(test, store)

	result, err := service.CheckOrGrantAccess(context.Background(), viewerID, subjectID, 50)
	if err != nil {
		test.Fatalf("unlock: %v", err)
	}
	if !result.AlreadyGranted || result.Charged {
		test.Fatalf("expected already granted result, got %+v", result)
	}
	if result.Grant.GrantID != racedGrantID {
		test.Fatalf("expected the concurrent grant, got %s", result.Grant.GrantID)
	}
	if len(store.transactions) != 0 || store.accounts[viewerID.String()].Balance != 100 {
		test.Fatalf("expected the losing attempt to charge nothing")
	}
}

func TestCheckOrGrantAccessNeverCommitsChargeWithoutGrant(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	viewerID := mustUserID(test, "viewer")
	store.seedBalance(viewerID, 100)
	store.updateBalanceError = errStoreFailure
	service := mustNewService(test, store)

	_, err := service.CheckOrGrantAccess(context.Background(), viewerID, mustApplicationID(test, "subject"), 50)
	if !errors.Is(err, errStoreFailure) {
		test.Fatalf("expected store failure, got %v", err)
	}
	if len(store.grants) != 0 || len(store.transactions) != 0 {
		test.Fatalf("expected rollback of grant and charge, got %d grants and %d transactions", len(store.grants), len(store.transactions))
	}
}

func TestCheckOrGrantAccessRejectsNonPositiveCost(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)

	for _, cost := range []Credits{0, -5} {
		_, err := service.CheckOrGrantAccess(context.Background(), mustUserID(test, "viewer"), mustApplicationID(test, "subject"), cost)
		if !errors.Is(err, ErrInvalidAmount) {
			test.Fatalf("cost %d: expected ErrInvalidAmount, got %v", cost, err)
		}
	}
	if store.txCalls != 0 {
		test.Fatalf("expected no transaction, got %d", store.txCalls)
	}
}

func TestHasAccessAndListGrants(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	viewerID := mustUserID(test, "viewer")
	subjectID := mustApplicationID(test, "subject")
	store.seedBalance(viewerID, 100)
	service := mustNewService(test, store)

	granted, err := service.HasAccess(context.Background(), viewerID, subjectID)
	if err != nil || granted {
		test.Fatalf("expected no access before unlock, got %v %v", granted, err)
	}
	if _, err := service.CheckOrGrantAccess(context.Background(), viewerID, subjectID, 10); err != nil {
		test.Fatalf("unlock: %v", err)
	}
	granted, err = service.HasAccess(context.Background(), viewerID, subjectID)
	if err != nil || !granted {
		test.Fatalf("expected access after unlock, got %v %v", granted, err)
	}
	grants, err := service.ListGrants(context.Background(), viewerID)
	if err != nil {
		test.Fatalf("list grants: %v", err)
	}
	if len(grants) != 1 || grants[0].SubjectID != subjectID {
		test.Fatalf("unexpected grants: %+v", grants)
	}
}

func TestListTransactionsNormalizesLimit(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	userID := mustUserID(test, "user")

	if _, err := service.ListTransactions(context.Background(), userID, 0, 0); err != nil {
		test.Fatalf("list: %v", err)
	}
	if store.lastListLimit != DefaultListLimit {
		test.Fatalf("expected default limit %d, got %d", DefaultListLimit, store.lastListLimit)
	}
	if store.lastListBefore != stubNowUnixUTC+1 {
		test.Fatalf("expected cutoff after now, got %d", store.lastListBefore)
	}
	_, err := service.ListTransactions(context.Background(), userID, 0, MaxListLimit+1)
	if !errors.Is(err, ErrInvalidListLimit) {
		test.Fatalf("expected ErrInvalidListLimit, got %v", err)
	}
}

func TestReconcileComparesCacheWithLog(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	userID := mustUserID(test, "user")
	if _, err := service.ApplyTransaction(context.Background(), userID, 40, KindSignupBonus, Description{}); err != nil {
		test.Fatalf("apply: %v", err)
	}

	report, err := service.Reconcile(context.Background(), userID)
	if err != nil {
		test.Fatalf("reconcile: %v", err)
	}
	if !report.Consistent || report.Cached != 40 || report.Derived != 40 {
		test.Fatalf("unexpected report: %+v", report)
	}

	account := store.accounts[userID.String()]
	account.Balance = 41
	store.accounts[userID.String()] = account
	mismatches, err := service.ReconcileAll(context.Background())
	if err != nil {
		test.Fatalf("reconcile all: %v", err)
	}
	if len(mismatches) != 1 || mismatches[0].Cached != 41 || mismatches[0].Derived != 40 {
		test.Fatalf("unexpected mismatches: %+v", mismatches)
	}
}

func TestServicePublishesEventsAfterCommit(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	viewerID := mustUserID(test, "viewer")
	store.seedBalance(viewerID, 100)
	recorder := &recordingPublisher{}
	service, err := NewService(store, stubClock, WithEventPublisher(recorder))
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	subjectID := mustApplicationID(test, "subject")

	if _, err := service.CheckOrGrantAccess(context.Background(), viewerID, subjectID, 10); err != nil {
		test.Fatalf("unlock: %v", err)
	}
	if _, err := service.CheckOrGrantAccess(context.Background(), viewerID, subjectID, 10); err != nil {
		test.Fatalf("repeat unlock: %v", err)
	}
	if _, err := service.ApplyTransaction(context.Background(), viewerID, 5, KindRefund, Description{}); err != nil {
		test.Fatalf("refund: %v", err)
	}
	if _, err := service.ApplyTransaction(context.Background(), viewerID, 7, KindAdminAdjustment, Description{}); err != nil {
		test.Fatalf("adjustment: %v", err)
	}

	if len(recorder.events) != 2 {
		test.Fatalf("expected 2 events, got %d", len(recorder.events))
	}
	unlocked := recorder.events[0]
	if unlocked.Type != EventProfileUnlocked || unlocked.UserID != viewerID.String() || unlocked.Attributes[metadataKeySubjectApplicationID] != subjectID.String() {
		test.Fatalf("unexpected unlock event: %+v", unlocked)
	}
	adjusted := recorder.events[1]
	if adjusted.Type != EventCreditsAdjusted || adjusted.Attributes["balance"] != "102" {
		test.Fatalf("unexpected adjustment event: %+v", adjusted)
	}
}

func TestNewServiceValidatesDependencies(test *testing.T) {
	test.Parallel()
	if _, err := NewService(nil, stubClock); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil store, got %v", err)
	}
	if _, err := NewService(newStubStore(), nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil clock, got %v", err)
	}
	if _, err := NewService(newStubStore(), stubClock, WithConflictAttempts(0)); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for zero attempts, got %v", err)
	}
}

type recordingPublisher struct {
	events []events.Event
}

func (publisher *recordingPublisher) Publish(_ context.Context, event events.Event) {
	publisher.events = append(publisher.events, event)
}
