package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/events"
)

// Service contains the domain logic over a Store.
type Service struct {
	store            Store
	nowFn            func() int64
	logger           OperationLogger
	publisher        events.Publisher
	conflictAttempts int
}

// ApplyOption tunes a single ApplyTransaction call.
type ApplyOption func(*applyConfig)

type applyConfig struct {
	force    bool
	forcedBy Actor
	metadata MetadataJSON
}

// WithForce lets an admin adjustment drive the balance below zero. The override is
// rejected with ErrForbidden unless admin holds the admin role.
func WithForce(admin Actor) ApplyOption {
	return func(config *applyConfig) {
		config.force = true
		config.forcedBy = admin
	}
}

// WithMetadata attaches JSON metadata to the transaction.
func WithMetadata(metadata MetadataJSON) ApplyOption {
	return func(config *applyConfig) {
		config.metadata = metadata
	}
}

// Reconciliation compares the cached balance with the transaction log.
type Reconciliation struct {
	UserID     UserID
	Cached     Credits
	Derived    Credits
	Consistent bool
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:            store,
		nowFn:            now,
		publisher:        events.Discard,
		conflictAttempts: DefaultConflictAttempts,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	if service.conflictAttempts < 1 {
		return nil, fmt.Errorf("%w: conflict attempts must be positive", ErrInvalidServiceConfig)
	}
	return service, nil
}

// Balance returns the cached balance. Users without an account have zero credits.
func (service *Service) Balance(ctx context.Context, userID UserID) (Credits, error) {
	account, err := service.store.GetAccount(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// ApplyTransaction appends a transaction and moves the cached balance in one atomic unit.
func (service *Service) ApplyTransaction(ctx context.Context, userID UserID, amount Credits, kind TransactionKind, description Description, options ...ApplyOption) (Credits, error) {
	config := applyConfig{}
	for _, option := range options {
		if option != nil {
			option(&config)
		}
	}
	var newBalance Credits
	operationError := validateApply(amount, kind, config)
	if operationError == nil {
		operationError = RetryOnConflict(ctx, service.conflictAttempts, func(ctx context.Context) error {
			return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
				balance, err := service.applyInTx(ctx, transactionStore, TransactionInput{
					UserID:         userID,
					Amount:         amount,
					Kind:           kind,
					Description:    description,
					Metadata:       config.metadata,
					CreatedUnixUTC: service.nowFn(),
				}, config.force)
				if err != nil {
					return err
				}
				newBalance = balance
				return nil
			})
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationApplyTransaction,
		UserID:    userID,
		Kind:      kind,
		Amount:    amount,
		Balance:   newBalance,
		Error:     operationError,
	})
	if operationError != nil {
		return 0, operationError
	}
	if kind == KindAdminAdjustment {
		service.publish(ctx, EventCreditsAdjusted, userID, map[string]string{
			"amount":  strconv.FormatInt(amount.Int64(), 10),
			"balance": strconv.FormatInt(newBalance.Int64(), 10),
		})
	}
	return newBalance, nil
}

// applyInTx must run inside WithTx: the account row lock serializes writers per user.
func (service *Service) applyInTx(ctx context.Context, transactionStore Store, input TransactionInput, force bool) (Credits, error) {
	account, err := transactionStore.LockAccount(ctx, input.UserID)
	if err != nil {
		return 0, err
	}
	newBalance, err := account.Balance.Add(input.Amount)
	if err != nil {
		return 0, err
	}
	if input.Amount < 0 && newBalance < 0 && !force {
		return 0, ErrInsufficientBalance
	}
	if _, err := transactionStore.InsertTransaction(ctx, input); err != nil {
		return 0, err
	}
	if err := transactionStore.UpdateBalance(ctx, input.UserID, account.Version, newBalance); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// ListTransactions lists a user's transactions created before a cutoff, newest first.
func (service *Service) ListTransactions(ctx context.Context, userID UserID, beforeUnixUTC int64, limit int) ([]Transaction, error) {
	normalizedLimit, err := NormalizeListLimit(limit)
	if err != nil {
		return nil, err
	}
	if beforeUnixUTC <= 0 {
		beforeUnixUTC = service.nowFn() + 1
	}
	return service.store.ListTransactions(ctx, userID, beforeUnixUTC, normalizedLimit)
}

// Reconcile recomputes a user's balance from the transaction log.
func (service *Service) Reconcile(ctx context.Context, userID UserID) (Reconciliation, error) {
	var report Reconciliation
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetAccount(ctx, userID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		derived, err := transactionStore.SumTransactions(ctx, userID)
		if err != nil {
			return err
		}
		report = Reconciliation{
			UserID:     userID,
			Cached:     account.Balance,
			Derived:    derived,
			Consistent: account.Balance == derived,
		}
		return nil
	})
	return report, err
}

// ReconcileAll pages through every account and returns the inconsistent ones.
func (service *Service) ReconcileAll(ctx context.Context) ([]Reconciliation, error) {
	mismatches := make([]Reconciliation, 0)
	after := ""
	for {
		accounts, err := service.store.ListAccounts(ctx, after, reconcilePageSize)
		if err != nil {
			return nil, err
		}
		for _, account := range accounts {
			report, err := service.Reconcile(ctx, account.UserID)
			if err != nil {
				return nil, err
			}
			if !report.Consistent {
				mismatches = append(mismatches, report)
			}
		}
		if len(accounts) < reconcilePageSize {
			return mismatches, nil
		}
		after = accounts[len(accounts)-1].UserID.String()
	}
}

// NormalizeListLimit applies the default page size and rejects oversized pages.
func NormalizeListLimit(limit int) (int, error) {
	if limit <= 0 {
		return DefaultListLimit, nil
	}
	if limit > MaxListLimit {
		return 0, fmt.Errorf("%w: %d > %d", ErrInvalidListLimit, limit, MaxListLimit)
	}
	return limit, nil
}

func validateApply(amount Credits, kind TransactionKind, config applyConfig) error {
	if amount == 0 {
		return fmt.Errorf("%w: must not be zero", ErrInvalidAmount)
	}
	if _, err := ParseTransactionKind(kind.String()); err != nil {
		return err
	}
	if config.force && !config.forcedBy.IsAdmin() {
		return fmt.Errorf("%w: force requires an admin actor", ErrForbidden)
	}
	if config.force && kind != KindAdminAdjustment {
		return fmt.Errorf("%w: force is only allowed on %s", ErrInvalidOverride, KindAdminAdjustment)
	}
	return nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func (service *Service) publish(ctx context.Context, eventType string, userID UserID, attributes map[string]string) {
	service.publisher.Publish(ctx, events.Event{
		Type:       eventType,
		UserID:     userID.String(),
		Attributes: attributes,
		OccurredAt: time.Unix(service.nowFn(), 0).UTC(),
	})
}
