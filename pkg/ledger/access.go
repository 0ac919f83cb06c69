package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// AccessResult reports the outcome of CheckOrGrantAccess.
type AccessResult struct {
	AlreadyGranted bool
	Charged        bool
	Balance        Credits
	Grant          ProfileViewGrant
}

// CheckOrGrantAccess charges the viewer once per (viewer, subject) pair and records a
// permanent grant. Repeated or concurrent calls for the same pair never charge twice.
func (service *Service) CheckOrGrantAccess(ctx context.Context, viewerID UserID, subjectID ApplicationID, cost Credits) (AccessResult, error) {
	var result AccessResult
	operationError := validateCost(cost)
	if operationError == nil {
		operationError = RetryOnConflict(ctx, service.conflictAttempts, func(ctx context.Context) error {
			attemptResult, err := service.checkOrGrantOnce(ctx, viewerID, subjectID, cost)
			if err != nil {
				return err
			}
			result = attemptResult
			return nil
		})
	}
	if result.AlreadyGranted && operationError == nil {
		return result, nil
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationUnlockProfile,
		UserID:    viewerID,
		SubjectID: subjectID,
		Kind:      KindProfileUnlockCharge,
		Amount:    cost.Negated(),
		Balance:   result.Balance,
		Error:     operationError,
	})
	if operationError != nil {
		return AccessResult{}, operationError
	}
	service.publish(ctx, EventProfileUnlocked, viewerID, map[string]string{
		metadataKeySubjectApplicationID: subjectID.String(),
		"cost":                          strconv.FormatInt(cost.Int64(), 10),
		"grant_id":                      result.Grant.GrantID,
	})
	return result, nil
}

func (service *Service) checkOrGrantOnce(ctx context.Context, viewerID UserID, subjectID ApplicationID, cost Credits) (AccessResult, error) {
	existing, found, err := service.findGrant(ctx, service.store, viewerID, subjectID)
	if err != nil {
		return AccessResult{}, err
	}
	if found {
		balance, err := service.Balance(ctx, viewerID)
		if err != nil {
			return AccessResult{}, err
		}
		return AccessResult{AlreadyGranted: true, Balance: balance, Grant: existing}, nil
	}

	metadata, err := unlockMetadata(subjectID)
	if err != nil {
		return AccessResult{}, err
	}
	description, err := NewDescription(unlockDescriptionPrefix + subjectID.String())
	if err != nil {
		return AccessResult{}, err
	}

	var result AccessResult
	err = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.LockAccount(ctx, viewerID)
		if err != nil {
			return err
		}
		// A concurrent unlock for the same viewer may have committed while we waited on the lock.
		existing, found, err := service.findGrant(ctx, transactionStore, viewerID, subjectID)
		if err != nil {
			return err
		}
		if found {
			result = AccessResult{AlreadyGranted: true, Balance: account.Balance, Grant: existing}
			return nil
		}
		if account.Balance < cost {
			return ErrInsufficientBalance
		}
		nowUnixUTC := service.nowFn()
		grant, err := transactionStore.InsertGrant(ctx, GrantInput{
			ViewerID:       viewerID,
			SubjectID:      subjectID,
			CreatedUnixUTC: nowUnixUTC,
		})
		if err != nil {
			return err
		}
		if _, err := transactionStore.InsertTransaction(ctx, TransactionInput{
			UserID:         viewerID,
			Amount:         cost.Negated(),
			Kind:           KindProfileUnlockCharge,
			Description:    description,
			Metadata:       metadata,
			CreatedUnixUTC: nowUnixUTC,
		}); err != nil {
			return err
		}
		newBalance, err := account.Balance.Add(cost.Negated())
		if err != nil {
			return err
		}
		if err := transactionStore.UpdateBalance(ctx, viewerID, account.Version, newBalance); err != nil {
			return err
		}
		result = AccessResult{Charged: true, Balance: newBalance, Grant: grant}
		return nil
	})
	if err != nil {
		return AccessResult{}, err
	}
	return result, nil
}

// HasAccess reports whether the viewer already holds a grant for the subject.
func (service *Service) HasAccess(ctx context.Context, viewerID UserID, subjectID ApplicationID) (bool, error) {
	_, found, err := service.findGrant(ctx, service.store, viewerID, subjectID)
	return found, err
}

// ListGrants returns every profile the viewer has unlocked.
func (service *Service) ListGrants(ctx context.Context, viewerID UserID) ([]ProfileViewGrant, error) {
	return service.store.ListGrants(ctx, viewerID)
}

func (service *Service) findGrant(ctx context.Context, store GrantStore, viewerID UserID, subjectID ApplicationID) (ProfileViewGrant, bool, error) {
	grant, err := store.GetGrant(ctx, viewerID, subjectID)
	if errors.Is(err, ErrNotFound) {
		return ProfileViewGrant{}, false, nil
	}
	if err != nil {
		return ProfileViewGrant{}, false, err
	}
	return grant, true, nil
}

func validateCost(cost Credits) error {
	if cost <= 0 {
		return fmt.Errorf("%w: cost must be greater than zero", ErrInvalidAmount)
	}
	return nil
}

func unlockMetadata(subjectID ApplicationID) (MetadataJSON, error) {
	raw, err := json.Marshal(map[string]string{metadataKeySubjectApplicationID: subjectID.String()})
	if err != nil {
		return MetadataJSON{}, fmt.Errorf("%w: %v", ErrInvalidMetadataJSON, err)
	}
	return NewMetadataJSON(string(raw))
}
