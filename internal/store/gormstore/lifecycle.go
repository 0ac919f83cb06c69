package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/lifecycle"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	errorSubjectUser    = "user"
	errorSubjectRequest = "reactivation_request"
	errorCodeUpsert     = "upsert"
	errorCodeSchedule   = "schedule"
	errorCodeClear      = "clear"
	errorCodeFinalize   = "finalize"
	errorCodeReactivate = "reactivate"
	errorCodeResolve    = "resolve"
)

// LifecycleStore implements lifecycle.Store using GORM.
type LifecycleStore struct {
	db   *gorm.DB
	inTx bool
}

// NewLifecycle returns a LifecycleStore backed by gorm.DB.
func NewLifecycle(db *gorm.DB) *LifecycleStore {
	return &LifecycleStore{db: db}
}

// WithTx executes fn within a transaction.
func (store *LifecycleStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore lifecycle.Store) error) error {
	if store.inTx {
		return fn(ctx, store)
	}
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &LifecycleStore{db: transaction, inTx: true})
	})
	return classifyTxError(err)
}

func (store *LifecycleStore) UpsertUser(ctx context.Context, userID ledger.UserID, email string) error {
	row := User{UserID: userID.String(), Email: email}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectUser, errorCodeUpsert, err)
	}
	return nil
}

func (store *LifecycleStore) GetStatus(ctx context.Context, userID ledger.UserID) (lifecycle.AccountStatus, error) {
	var row User
	err := lockingQuery(store.db.WithContext(ctx), store.inTx).
		Where("user_id = ?", userID.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return lifecycle.AccountStatus{}, wrapStoreError(errorSubjectUser, errorCodeGet, ledger.ErrNotFound)
	}
	if err != nil {
		return lifecycle.AccountStatus{}, wrapStoreError(errorSubjectUser, errorCodeGet, err)
	}
	return mapStatus(row)
}

func (store *LifecycleStore) ScheduleDeactivation(ctx context.Context, userID ledger.UserID, requestedAt time.Time, scheduledAt time.Time) error {
	result := store.db.WithContext(ctx).
		Model(&User{}).
		Where("user_id = ? AND is_deactivated = ? AND deactivation_scheduled_at IS NULL", userID.String(), false).
		Updates(map[string]any{
			"deactivation_requested_at": requestedAt.UTC(),
			"deactivation_scheduled_at": scheduledAt.UTC(),
		})
	return conditionalResult(errorSubjectUser, errorCodeSchedule, result)
}

func (store *LifecycleStore) ClearScheduledDeactivation(ctx context.Context, userID ledger.UserID) error {
	result := store.db.WithContext(ctx).
		Model(&User{}).
		Where("user_id = ? AND is_deactivated = ? AND deactivation_scheduled_at IS NOT NULL", userID.String(), false).
		Updates(map[string]any{
			"deactivation_requested_at": nil,
			"deactivation_scheduled_at": nil,
		})
	return conditionalResult(errorSubjectUser, errorCodeClear, result)
}

func (store *LifecycleStore) ListDueDeactivations(ctx context.Context, now time.Time, limit int) ([]ledger.UserID, error) {
	var userIDs []string
	err := store.db.WithContext(ctx).
		Model(&User{}).
		Where("is_deactivated = ? AND deactivation_scheduled_at IS NOT NULL AND deactivation_scheduled_at <= ?", false, now.UTC()).
		Order("deactivation_scheduled_at ASC").
		Order("user_id ASC").
		Limit(limit).
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectUser, errorCodeList, err)
	}
	due := make([]ledger.UserID, 0, len(userIDs))
	for _, raw := range userIDs {
		userID, err := ledger.NewUserID(raw)
		if err != nil {
			return nil, wrapStoreError(errorSubjectUser, errorCodeInvalid, err)
		}
		due = append(due, userID)
	}
	return due, nil
}

func (store *LifecycleStore) FinalizeDeactivation(ctx context.Context, userID ledger.UserID, now time.Time) (bool, error) {
	result := store.db.WithContext(ctx).
		Model(&User{}).
		Where("user_id = ? AND is_deactivated = ? AND deactivation_scheduled_at IS NOT NULL AND deactivation_scheduled_at <= ?", userID.String(), false, now.UTC()).
		Update("is_deactivated", true)
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectUser, errorCodeFinalize, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (store *LifecycleStore) Reactivate(ctx context.Context, userID ledger.UserID) error {
	result := store.db.WithContext(ctx).
		Model(&User{}).
		Where("user_id = ?", userID.String()).
		Updates(map[string]any{
			"is_deactivated":            false,
			"deactivation_requested_at": nil,
			"deactivation_scheduled_at": nil,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectUser, errorCodeReactivate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectUser, errorCodeReactivate, ledger.ErrNotFound)
	}
	return nil
}

func (store *LifecycleStore) CreateReactivationRequest(ctx context.Context, request lifecycle.ReactivationRequest) (lifecycle.ReactivationRequest, error) {
	row := ReactivationRequest{
		UserID:    request.UserID.String(),
		Email:     request.Email,
		Reason:    request.Reason,
		Status:    request.Status.String(),
		CreatedAt: request.CreatedAt.UTC(),
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err, indexReactivationPending) {
		return lifecycle.ReactivationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeDuplicate, lifecycle.ErrAlreadyPendingRequest)
	}
	if err != nil {
		return lifecycle.ReactivationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeCreate, err)
	}
	return mapRequest(row)
}

func (store *LifecycleStore) GetReactivationRequest(ctx context.Context, requestID string) (lifecycle.ReactivationRequest, error) {
	var row ReactivationRequest
	err := lockingQuery(store.db.WithContext(ctx), store.inTx).
		Where("request_id = ?", requestID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return lifecycle.ReactivationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeGet, ledger.ErrNotFound)
	}
	if err != nil {
		return lifecycle.ReactivationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeGet, err)
	}
	return mapRequest(row)
}

func (store *LifecycleStore) GetPendingReactivationRequest(ctx context.Context, userID ledger.UserID) (lifecycle.ReactivationRequest, error) {
	var row ReactivationRequest
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID.String(), lifecycle.RequestPending.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return lifecycle.ReactivationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeGet, ledger.ErrNotFound)
	}
	if err != nil {
		return lifecycle.ReactivationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeGet, err)
	}
	return mapRequest(row)
}

func (store *LifecycleStore) ResolveReactivationRequest(ctx context.Context, requestID string, review lifecycle.Review) (lifecycle.ReactivationRequest, error) {
	reviewedBy := review.ReviewedBy.String()
	result := store.db.WithContext(ctx).
		Model(&ReactivationRequest{}).
		Where("request_id = ? AND status = ?", requestID, lifecycle.RequestPending.String()).
		Updates(map[string]any{
			"status":      review.Status.String(),
			"reviewed_by": reviewedBy,
			"reviewed_at": review.ReviewedAt.UTC(),
			"admin_notes": review.AdminNotes,
		})
	if err := conditionalResult(errorSubjectRequest, errorCodeResolve, result); err != nil {
		return lifecycle.ReactivationRequest{}, err
	}
	return store.GetReactivationRequest(ctx, requestID)
}

func (store *LifecycleStore) ListReactivationRequests(ctx context.Context, filter lifecycle.RequestFilter) ([]lifecycle.ReactivationRequest, error) {
	query := store.db.WithContext(ctx).Model(&ReactivationRequest{})
	if filter.Status != nil {
		query = query.Where("status = ?", filter.Status.String())
	}
	var rows []ReactivationRequest
	err := query.
		Order("created_at DESC").
		Order("request_id DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectRequest, errorCodeList, err)
	}
	requests := make([]lifecycle.ReactivationRequest, 0, len(rows))
	for _, row := range rows {
		request, err := mapRequest(row)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, nil
}

func conditionalResult(subject string, code string, result *gorm.DB) error {
	if result.Error != nil {
		return wrapStoreError(subject, code, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(subject, code, lifecycle.ErrInvalidStateTransition)
	}
	return nil
}

func mapStatus(row User) (lifecycle.AccountStatus, error) {
	userID, err := ledger.NewUserID(row.UserID)
	if err != nil {
		return lifecycle.AccountStatus{}, wrapStoreError(errorSubjectUser, errorCodeInvalid, err)
	}
	return lifecycle.AccountStatus{
		UserID:                  userID,
		Email:                   row.Email,
		IsDeactivated:           row.IsDeactivated,
		DeactivationRequestedAt: utcPointer(row.DeactivationRequestedAt),
		DeactivationScheduledAt: utcPointer(row.DeactivationScheduledAt),
	}, nil
}

func mapRequest(row ReactivationRequest) (lifecycle.ReactivationRequest, error) {
	userID, err := ledger.NewUserID(row.UserID)
	if err != nil {
		return lifecycle.ReactivationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeInvalid, err)
	}
	status, err := lifecycle.ParseRequestStatus(row.Status)
	if err != nil {
		return lifecycle.ReactivationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeInvalid, err)
	}
	reviewedBy := ""
	if row.ReviewedBy != nil {
		reviewedBy = *row.ReviewedBy
	}
	return lifecycle.ReactivationRequest{
		RequestID:  row.RequestID,
		UserID:     userID,
		Email:      row.Email,
		Reason:     row.Reason,
		Status:     status,
		ReviewedBy: reviewedBy,
		ReviewedAt: utcPointer(row.ReviewedAt),
		AdminNotes: row.AdminNotes,
		CreatedAt:  row.CreatedAt.UTC(),
	}, nil
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	normalized := value.UTC()
	return &normalized
}
