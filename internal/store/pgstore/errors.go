package pgstore

import (
	"errors"
	"fmt"

	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	errorOperationStore = "store"

	pgUniqueViolation      = "23505"
	pgInvalidTextSyntax    = "22P02"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"

	constraintGrantViewerSubject = "uniq_profile_view_grants_viewer_subject"
	indexReactivationPending     = "uniq_reactivation_requests_pending_user"
)

func wrapStoreError(subject string, code string, err error) error {
	if isTransientConflict(err) {
		err = fmt.Errorf("%w: %v", ledger.ErrStorageConflict, err)
	}
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraint
}

func isTransientConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
}

// isMalformedIdentifier reports a uuid column compared against text that is not a uuid.
func isMalformedIdentifier(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgInvalidTextSyntax
}
