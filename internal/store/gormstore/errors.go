package gormstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	errorOperationStore       = "store"
	pgUniqueViolationCode     = "23505"
	pgSerializationFailure    = "40001"
	pgDeadlockDetected        = "40P01"
	sqliteConstraintCode      = 19
	sqliteBusyCode            = 5
	sqliteLockedCode          = 6
	errorSubjectTransactionTx = "tx"
	errorCodeRetryable        = "retryable"
	sqliteUniqueFailedPrefix  = "UNIQUE constraint failed: "
)

var sqliteUniqueColumns = map[string]string{
	indexGrantViewerSubject:  "profile_view_grants.viewer_id, profile_view_grants.subject_id",
	indexReactivationPending: "reactivation_requests.user_id",
}

func wrapStoreError(subject string, code string, err error) error {
	if isTransientConflict(err) {
		err = fmt.Errorf("%w: %v", ledger.ErrStorageConflict, err)
	}
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

// classifyTxError marks begin/commit failures caused by lock contention as retryable.
func classifyTxError(err error) error {
	if err == nil {
		return nil
	}
	var operationError ledger.OperationError
	if errors.As(err, &operationError) {
		return err
	}
	if isTransientConflict(err) {
		return wrapStoreError(errorSubjectTransactionTx, errorCodeRetryable, err)
	}
	return err
}

func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		columns, known := sqliteUniqueColumns[constraint]
		if !known || sqliteErr.Code()&0xFF != sqliteConstraintCode {
			return false
		}
		// SQLite names the indexed columns, not the index.
		return strings.Contains(sqliteErr.Error(), sqliteUniqueFailedPrefix+columns)
	}
	return false
}

func isTransientConflict(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xFF
		return code == sqliteBusyCode || code == sqliteLockedCode
	}
	return false
}
