package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/lifecycle"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	errorSubjectUser    = "user"
	errorSubjectRequest = "reactivation_request"
	errorCodeCreate     = "create"
	errorCodeUpsert     = "upsert"
	errorCodeSchedule   = "schedule"
	errorCodeClear      = "clear"
	errorCodeFinalize   = "finalize"
	errorCodeReactivate = "reactivate"
	errorCodeResolve    = "resolve"

	sqlUpsertUser = `
		insert into users(user_id, email) values($1, $2)
		on conflict (user_id) do update set email = excluded.email, updated_at = now()
	`

	sqlSelectUser = `
		select user_id, email, is_deactivated, deactivation_requested_at, deactivation_scheduled_at
		from users where user_id = $1
	`

	sqlScheduleDeactivation = `
		update users
		set deactivation_requested_at = $2, deactivation_scheduled_at = $3, updated_at = now()
		where user_id = $1 and not is_deactivated and deactivation_scheduled_at is null
	`

	sqlClearDeactivation = `
		update users
		set deactivation_requested_at = null, deactivation_scheduled_at = null, updated_at = now()
		where user_id = $1 and not is_deactivated and deactivation_scheduled_at is not null
	`

	sqlListDueDeactivations = `
		select user_id from users
		where not is_deactivated and deactivation_scheduled_at is not null and deactivation_scheduled_at <= $1
		order by deactivation_scheduled_at, user_id
		limit $2
	`

	sqlFinalizeDeactivation = `
		update users
		set is_deactivated = true, updated_at = now()
		where user_id = $1 and not is_deactivated
			and deactivation_scheduled_at is not null and deactivation_scheduled_at <= $2
	`

	sqlReactivateUser = `
		update users
		set is_deactivated = false, deactivation_requested_at = null, deactivation_scheduled_at = null, updated_at = now()
		where user_id = $1
	`

	requestColumns = `request_id::text, user_id, email, reason, status, coalesce(reviewed_by, ''), reviewed_at, admin_notes, created_at`

	sqlInsertRequest = `
		insert into reactivation_requests(user_id, email, reason, status, created_at)
		values($1, $2, $3, $4, $5)
		returning ` + requestColumns

	sqlSelectRequest = `select ` + requestColumns + ` from reactivation_requests where request_id = $1::uuid`

	sqlSelectPendingRequest = `select ` + requestColumns + ` from reactivation_requests where user_id = $1 and status = 'pending'`

	sqlResolveRequest = `
		update reactivation_requests
		set status = $2, reviewed_by = $3, reviewed_at = $4, admin_notes = $5, updated_at = now()
		where request_id = $1::uuid and status = 'pending'
		returning ` + requestColumns

	sqlListRequests = `
		select ` + requestColumns + ` from reactivation_requests
		where ($1 = '' or status = $1)
		order by created_at desc, request_id desc
		limit $2 offset $3
	`
)

// LifecycleStore implements lifecycle.Store on a pgx pool.
type LifecycleStore struct {
	pool *pgxpool.Pool
	db   querier
	inTx bool
}

// NewLifecycle returns a LifecycleStore backed by a pgx pool.
func NewLifecycle(pool *pgxpool.Pool) *LifecycleStore {
	return &LifecycleStore{pool: pool, db: pool}
}

func (store *LifecycleStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore lifecycle.Store) error) error {
	if store.inTx {
		return fn(ctx, store)
	}
	return runInTx(ctx, store.pool, func(tx pgx.Tx) error {
		return fn(ctx, &LifecycleStore{pool: store.pool, db: tx, inTx: true})
	})
}

func (store *LifecycleStore) UpsertUser(ctx context.Context, userID ledger.UserID, email string) error {
	if _, err := store.db.Exec(ctx, sqlUpsertUser, userID.String(), email); err != nil {
		return wrapStoreError(errorSubjectUser, errorCodeUpsert, err)
	}
	return nil
}

func (store *LifecycleStore) GetStatus(ctx context.Context, userID ledger.UserID) (lifecycle.AccountStatus, error) {
	query := sqlSelectUser
	if store.inTx {
		query += " for update"
	}
	var (
		userIDValue string
		status      lifecycle.AccountStatus
		requestedAt *time.Time
		scheduledAt *time.Time
	)
	err := store.db.QueryRow(ctx, query, userID.String()).
		Scan(&userIDValue, &status.Email, &status.IsDeactivated, &requestedAt, &scheduledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return lifecycle.AccountStatus{}, wrapStoreError(errorSubjectUser, errorCodeGet, ledger.ErrNotFound)
	}
	if err != nil {
		return lifecycle.AccountStatus{}, wrapStoreError(errorSubjectUser, errorCodeGet, err)
	}
	status.UserID, err = ledger.NewUserID(userIDValue)
	if err != nil {
		return lifecycle.AccountStatus{}, wrapStoreError(errorSubjectUser, errorCodeInvalid, err)
	}
	status.DeactivationRequestedAt = utcPointer(requestedAt)
	status.DeactivationScheduledAt = utcPointer(scheduledAt)
	return status, nil
}

func (store *LifecycleStore) ScheduleDeactivation(ctx context.Context, userID ledger.UserID, requestedAt time.Time, scheduledAt time.Time) error {
	tag, err := store.db.Exec(ctx, sqlScheduleDeactivation, userID.String(), requestedAt.UTC(), scheduledAt.UTC())
	return conditionalResult(errorSubjectUser, errorCodeSchedule, tag, err)
}

func (store *LifecycleStore) ClearScheduledDeactivation(ctx context.Context, userID ledger.UserID) error {
	tag, err := store.db.Exec(ctx, sqlClearDeactivation, userID.String())
	return conditionalResult(errorSubjectUser, errorCodeClear, tag, err)
}

func (store *LifecycleStore) ListDueDeactivations(ctx context.Context, now time.Time, limit int) ([]ledger.UserID, error) {
	rows, err := store.db.Query(ctx, sqlListDueDeactivations, now.UTC(), limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectUser, errorCodeList, err)
	}
	defer rows.Close()
	due := make([]ledger.UserID, 0, limit)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, wrapStoreError(errorSubjectUser, errorCodeList, err)
		}
		userID, err := ledger.NewUserID(raw)
		if err != nil {
			return nil, wrapStoreError(errorSubjectUser, errorCodeInvalid, err)
		}
		due = append(due, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectUser, errorCodeList, err)
	}
	return due, nil
}

func (store *LifecycleStore) FinalizeDeactivation(ctx context.Context, userID ledger.UserID, now time.Time) (bool, error) {
	tag, err := store.db.Exec(ctx, sqlFinalizeDeactivation, userID.String(), now.UTC())
	if err != nil {
		return false, wrapStoreError(errorSubjectUser, errorCodeFinalize, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (store *LifecycleStore) Reactivate(ctx context.Context, userID ledger.UserID) error {
	tag, err := store.db.Exec(ctx, sqlReactivateUser, userID.String())
	if err != nil {
		return wrapStoreError(errorSubjectUser, errorCodeReactivate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectUser, errorCodeReactivate, ledger.ErrNotFound)
	}
	return nil
}

func (store *LifecycleStore) CreateReactivationRequest(ctx context.Context, request lifecycle.ReactivationRequest) (lifecycle.ReactivationRequest, error) {
	created, err := scanRequest(store.db.QueryRow(ctx, sqlInsertRequest,
		request.UserID.String(),
		request.Email,
		request.Reason,
		request.Status.String(),
		request.CreatedAt.UTC(),
	))
	if isUniqueViolation(err, indexReactivationPending) {
		return lifecycle.ReactivationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeDuplicate, lifecycle.ErrAlreadyPendingRequest)
	}
	if err != nil {
		return lifecycle.ReactivationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeCreate, err)
	}
	return created, nil
}

func (store *LifecycleStore) GetReactivationRequest(ctx context.Context, requestID string) (lifecycle.ReactivationRequest, error) {
	query := sqlSelectRequest
	if store.inTx {
		query += " for update"
	}
	request, err := scanRequest(store.db.QueryRow(ctx, query, requestID))
	if errors.Is(err, pgx.ErrNoRows) || isMalformedIdentifier(err) {
		return lifecycle.ReactivationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeGet, ledger.ErrNotFound)
	}
	if err != nil {
		return lifecycle.ReactivationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeGet, err)
	}
	return request, nil
}

func (store *LifecycleStore) GetPendingReactivationRequest(ctx context.Context, userID ledger.UserID) (lifecycle.ReactivationRequest, error) {
	request, err := scanRequest(store.db.QueryRow(ctx, sqlSelectPendingRequest, userID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return lifecycle.ReactivationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeGet, ledger.ErrNotFound)
	}
	if err != nil {
		return lifecycle.ReactivationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeGet, err)
	}
	return request, nil
}

func (store *LifecycleStore) ResolveReactivationRequest(ctx context.Context, requestID string, review lifecycle.Review) (lifecycle.ReactivationRequest, error) {
	resolved, err := scanRequest(store.db.QueryRow(ctx, sqlResolveRequest,
		requestID,
		review.Status.String(),
		review.ReviewedBy.String(),
		review.ReviewedAt.UTC(),
		review.AdminNotes,
	))
	if errors.Is(err, pgx.ErrNoRows) || isMalformedIdentifier(err) {
		return lifecycle.ReactivationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeResolve, lifecycle.ErrInvalidStateTransition)
	}
	if err != nil {
		return lifecycle.ReactivationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeResolve, err)
	}
	return resolved, nil
}

func (store *LifecycleStore) ListReactivationRequests(ctx context.Context, filter lifecycle.RequestFilter) ([]lifecycle.ReactivationRequest, error) {
	statusFilter := ""
	if filter.Status != nil {
		statusFilter = filter.Status.String()
	}
	rows, err := store.db.Query(ctx, sqlListRequests, statusFilter, filter.Limit, filter.Offset)
	if err != nil {
		return nil, wrapStoreError(errorSubjectRequest, errorCodeList, err)
	}
	defer rows.Close()
	requests := make([]lifecycle.ReactivationRequest, 0, filter.Limit)
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectRequest, errorCodeInvalid, err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectRequest, errorCodeList, err)
	}
	return requests, nil
}

func conditionalResult(subject string, code string, tag pgconn.CommandTag, err error) error {
	if err != nil {
		return wrapStoreError(subject, code, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(subject, code, lifecycle.ErrInvalidStateTransition)
	}
	return nil
}

func scanRequest(row pgx.Row) (lifecycle.ReactivationRequest, error) {
	var (
		request     lifecycle.ReactivationRequest
		userIDValue string
		statusValue string
		reviewedAt  *time.Time
	)
	err := row.Scan(
		&request.RequestID,
		&userIDValue,
		&request.Email,
		&request.Reason,
		&statusValue,
		&request.ReviewedBy,
		&reviewedAt,
		&request.AdminNotes,
		&request.CreatedAt,
	)
	if err != nil {
		return lifecycle.ReactivationRequest{}, err
	}
	if request.UserID, err = ledger.NewUserID(userIDValue); err != nil {
		return lifecycle.ReactivationRequest{}, err
	}
	if request.Status, err = lifecycle.ParseRequestStatus(statusValue); err != nil {
		return lifecycle.ReactivationRequest{}, err
	}
	request.ReviewedAt = utcPointer(reviewedAt)
	request.CreatedAt = request.CreatedAt.UTC()
	return request, nil
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}
