package pgstore

import (
	"context"
	_ "embed"
	"errors"

	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const (
	errorSubjectAccount     = "account"
	errorSubjectBalance     = "balance"
	errorSubjectTransaction = "transaction"
	errorSubjectGrant       = "grant"
	errorSubjectTx          = "tx"
	errorSubjectSchema      = "schema"
	errorCodeBegin          = "begin"
	errorCodeCommit         = "commit"
	errorCodeDuplicate      = "duplicate"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeLock           = "lock"
	errorCodeMigrate        = "migrate"
	errorCodeStale          = "stale"
	errorCodeSum            = "sum"
	errorCodeUpdate         = "update"

	sqlLockAccount = `
		insert into credit_accounts(user_id) values($1)
		on conflict (user_id) do update set user_id = excluded.user_id
		returning user_id, balance, version
	`

	sqlSelectAccount = `
		select user_id, balance, version from credit_accounts where user_id = $1
	`

	sqlUpdateBalance = `
		update credit_accounts
		set balance = $3, version = version + 1, updated_at = now()
		where user_id = $1 and version = $2
	`

	sqlInsertTransaction = `
		insert into credit_transactions(user_id, amount, kind, description, metadata, created_at)
		values($1, $2, $3, $4, coalesce(nullif($5,''),'{}')::jsonb, to_timestamp($6))
		returning transaction_id::text, extract(epoch from created_at)::bigint
	`

	sqlSumTransactions = `
		select coalesce(sum(amount),0)::bigint from credit_transactions where user_id = $1
	`

	sqlListTransactionsBefore = `
		select
			transaction_id::text,
			user_id,
			amount,
			kind,
			description,
			metadata::text,
			extract(epoch from created_at)::bigint
		from credit_transactions
		where user_id = $1 and created_at < to_timestamp($2)
		order by created_at desc, transaction_id desc
		limit $3
	`

	sqlListAccountsAfter = `
		select user_id, balance, version from credit_accounts
		where user_id > $1
		order by user_id
		limit $2
	`

	sqlSelectGrant = `
		select grant_id::text, viewer_id, subject_id, extract(epoch from created_at)::bigint
		from profile_view_grants
		where viewer_id = $1 and subject_id = $2
	`

	sqlInsertGrant = `
		insert into profile_view_grants(viewer_id, subject_id, created_at)
		values($1, $2, to_timestamp($3))
		returning grant_id::text, viewer_id, subject_id, extract(epoch from created_at)::bigint
	`

	sqlListGrants = `
		select grant_id::text, viewer_id, subject_id, extract(epoch from created_at)::bigint
		from profile_view_grants
		where viewer_id = $1
		order by created_at desc
	`
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

// Store implements ledger.Store on a pgx pool. Inside WithTx the same type is bound to
// the transaction instead of the pool.
type Store struct {
	pool *pgxpool.Pool
	db   querier
	inTx bool
}

// New returns a Store backed by a pgx pool (autocommit).
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeMigrate, err)
	}
	return nil
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	if store.inTx {
		return fn(ctx, store)
	}
	return runInTx(ctx, store.pool, func(tx pgx.Tx) error {
		return fn(ctx, &Store{pool: store.pool, db: tx, inTx: true})
	})
}

func (store *Store) LockAccount(ctx context.Context, userID ledger.UserID) (ledger.Account, error) {
	account, err := scanAccount(store.db.QueryRow(ctx, sqlLockAccount, userID.String()))
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeLock, err)
	}
	return account, nil
}

func (store *Store) GetAccount(ctx context.Context, userID ledger.UserID) (ledger.Account, error) {
	account, err := scanAccount(store.db.QueryRow(ctx, sqlSelectAccount, userID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, ledger.ErrNotFound)
	}
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	return account, nil
}

func (store *Store) UpdateBalance(ctx context.Context, userID ledger.UserID, expectedVersion int64, balance ledger.Credits) error {
	tag, err := store.db.Exec(ctx, sqlUpdateBalance, userID.String(), expectedVersion, balance.Int64())
	if err != nil {
		return wrapStoreError(errorSubjectBalance, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectBalance, errorCodeStale, ledger.ErrStorageConflict)
	}
	return nil
}

func (store *Store) InsertTransaction(ctx context.Context, input ledger.TransactionInput) (ledger.Transaction, error) {
	var (
		transactionID    string
		createdAtUnixUTC int64
	)
	err := store.db.QueryRow(ctx, sqlInsertTransaction,
		input.UserID.String(),
		input.Amount.Int64(),
		input.Kind.String(),
		input.Description.String(),
		input.Metadata.String(),
		input.CreatedUnixUTC,
	).Scan(&transactionID, &createdAtUnixUTC)
	if err != nil {
		return ledger.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	return ledger.Transaction{
		TransactionID:  transactionID,
		UserID:         input.UserID,
		Amount:         input.Amount,
		Kind:           input.Kind,
		Description:    input.Description.String(),
		Metadata:       input.Metadata,
		CreatedUnixUTC: createdAtUnixUTC,
	}, nil
}

func (store *Store) SumTransactions(ctx context.Context, userID ledger.UserID) (ledger.Credits, error) {
	var sum int64
	if err := store.db.QueryRow(ctx, sqlSumTransactions, userID.String()).Scan(&sum); err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeSum, err)
	}
	return ledger.Credits(sum), nil
}

func (store *Store) ListTransactions(ctx context.Context, userID ledger.UserID, beforeUnixUTC int64, limit int) ([]ledger.Transaction, error) {
	rows, err := store.db.Query(ctx, sqlListTransactionsBefore, userID.String(), beforeUnixUTC, limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	defer rows.Close()
	transactions, err := scanTransactions(rows)
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	return transactions, nil
}

func (store *Store) ListAccounts(ctx context.Context, afterUserID string, limit int) ([]ledger.Account, error) {
	rows, err := store.db.Query(ctx, sqlListAccountsAfter, afterUserID, limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
	}
	defer rows.Close()
	accounts := make([]ledger.Account, 0, limit)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
	}
	return accounts, nil
}

func (store *Store) GetGrant(ctx context.Context, viewerID ledger.UserID, subjectID ledger.ApplicationID) (ledger.ProfileViewGrant, error) {
	grant, err := scanGrant(store.db.QueryRow(ctx, sqlSelectGrant, viewerID.String(), subjectID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.ProfileViewGrant{}, wrapStoreError(errorSubjectGrant, errorCodeGet, ledger.ErrNotFound)
	}
	if err != nil {
		return ledger.ProfileViewGrant{}, wrapStoreError(errorSubjectGrant, errorCodeGet, err)
	}
	return grant, nil
}

func (store *Store) InsertGrant(ctx context.Context, input ledger.GrantInput) (ledger.ProfileViewGrant, error) {
	grant, err := scanGrant(store.db.QueryRow(ctx, sqlInsertGrant, input.ViewerID.String(), input.SubjectID.String(), input.CreatedUnixUTC))
	if isUniqueViolation(err, constraintGrantViewerSubject) {
		return ledger.ProfileViewGrant{}, wrapStoreError(errorSubjectGrant, errorCodeDuplicate, ledger.ErrStorageConflict)
	}
	if err != nil {
		return ledger.ProfileViewGrant{}, wrapStoreError(errorSubjectGrant, errorCodeInsert, err)
	}
	return grant, nil
}

func (store *Store) ListGrants(ctx context.Context, viewerID ledger.UserID) ([]ledger.ProfileViewGrant, error) {
	rows, err := store.db.Query(ctx, sqlListGrants, viewerID.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectGrant, errorCodeList, err)
	}
	defer rows.Close()
	grants := make([]ledger.ProfileViewGrant, 0)
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectGrant, errorCodeInvalid, err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectGrant, errorCodeList, err)
	}
	return grants, nil
}

// runInTx commits when fn succeeds and rolls back otherwise.
func runInTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTx, errorCodeBegin, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTx, errorCodeCommit, err)
	}
	return nil
}

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var (
		userIDValue string
		balance     int64
		version     int64
	)
	if err := row.Scan(&userIDValue, &balance, &version); err != nil {
		return ledger.Account{}, err
	}
	userID, err := ledger.NewUserID(userIDValue)
	if err != nil {
		return ledger.Account{}, err
	}
	return ledger.Account{UserID: userID, Balance: ledger.Credits(balance), Version: version}, nil
}

func scanGrant(row pgx.Row) (ledger.ProfileViewGrant, error) {
	var (
		grantID          string
		viewerValue      string
		subjectValue     string
		createdAtUnixUTC int64
	)
	if err := row.Scan(&grantID, &viewerValue, &subjectValue, &createdAtUnixUTC); err != nil {
		return ledger.ProfileViewGrant{}, err
	}
	viewerID, err := ledger.NewUserID(viewerValue)
	if err != nil {
		return ledger.ProfileViewGrant{}, err
	}
	subjectID, err := ledger.NewApplicationID(subjectValue)
	if err != nil {
		return ledger.ProfileViewGrant{}, err
	}
	return ledger.ProfileViewGrant{
		GrantID:        grantID,
		ViewerID:       viewerID,
		SubjectID:      subjectID,
		CreatedUnixUTC: createdAtUnixUTC,
	}, nil
}

func scanTransactions(rows pgx.Rows) ([]ledger.Transaction, error) {
	transactions := make([]ledger.Transaction, 0, 32)
	for rows.Next() {
		var (
			transactionID    string
			userIDValue      string
			amount           int64
			kindValue        string
			description      string
			metadataValue    string
			createdAtUnixUTC int64
		)
		if err := rows.Scan(
			&transactionID,
			&userIDValue,
			&amount,
			&kindValue,
			&description,
			&metadataValue,
			&createdAtUnixUTC,
		); err != nil {
			return nil, err
		}
		userID, err := ledger.NewUserID(userIDValue)
		if err != nil {
			return nil, err
		}
		kind, err := ledger.ParseTransactionKind(kindValue)
		if err != nil {
			return nil, err
		}
		metadata, err := ledger.NewMetadataJSON(metadataValue)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, ledger.Transaction{
			TransactionID:  transactionID,
			UserID:         userID,
			Amount:         ledger.Credits(amount),
			Kind:           kind,
			Description:    description,
			Metadata:       metadata,
			CreatedUnixUTC: createdAtUnixUTC,
		})
	}
	return transactions, rows.Err()
}
