package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	errorSubjectAccount     = "account"
	errorSubjectBalance     = "balance"
	errorSubjectTransaction = "transaction"
	errorSubjectGrant       = "grant"
	errorCodeCreate         = "create"
	errorCodeDuplicate      = "duplicate"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeLock           = "lock"
	errorCodeStale          = "stale"
	errorCodeSum            = "sum"
	errorCodeUpdate         = "update"
)

// Store implements ledger.Store using GORM.
type Store struct {
	db   *gorm.DB
	inTx bool
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	if store.inTx {
		return fn(ctx, store)
	}
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction, inTx: true})
	})
	return classifyTxError(err)
}

func (store *Store) LockAccount(ctx context.Context, userID ledger.UserID) (ledger.Account, error) {
	seed := CreditAccount{UserID: userID.String()}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&seed).Error
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	var account CreditAccount
	err = lockingQuery(store.db.WithContext(ctx), store.inTx).
		Where("user_id = ?", userID.String()).
		Take(&account).Error
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeLock, err)
	}
	return mapAccount(account)
}

func (store *Store) GetAccount(ctx context.Context, userID ledger.UserID) (ledger.Account, error) {
	var account CreditAccount
	err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, ledger.ErrNotFound)
	}
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	return mapAccount(account)
}

func (store *Store) UpdateBalance(ctx context.Context, userID ledger.UserID, expectedVersion int64, balance ledger.Credits) error {
	result := store.db.WithContext(ctx).
		Model(&CreditAccount{}).
		Where("user_id = ? AND version = ?", userID.String(), expectedVersion).
		Updates(map[string]any{
			"balance": balance.Int64(),
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectBalance, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBalance, errorCodeStale, ledger.ErrStorageConflict)
	}
	return nil
}

func (store *Store) InsertTransaction(ctx context.Context, input ledger.TransactionInput) (ledger.Transaction, error) {
	row := CreditTransaction{
		UserID:      input.UserID.String(),
		Amount:      input.Amount.Int64(),
		Kind:        input.Kind.String(),
		Description: input.Description.String(),
		Metadata:    datatypes.JSON([]byte(input.Metadata.String())),
		CreatedAt:   unixToTime(input.CreatedUnixUTC),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return ledger.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	transaction, err := mapTransaction(row)
	if err != nil {
		return ledger.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	return transaction, nil
}

func (store *Store) SumTransactions(ctx context.Context, userID ledger.UserID) (ledger.Credits, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&CreditTransaction{}).
		Select("coalesce(sum(amount),0) as total").
		Where("user_id = ?", userID.String()).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeSum, err)
	}
	return ledger.Credits(sum.Total), nil
}

func (store *Store) ListTransactions(ctx context.Context, userID ledger.UserID, beforeUnixUTC int64, limit int) ([]ledger.Transaction, error) {
	var rows []CreditTransaction
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND created_at < ?", userID.String(), unixToTime(beforeUnixUTC)).
		Order("created_at DESC").
		Order("transaction_id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	transactions := make([]ledger.Transaction, 0, len(rows))
	for _, row := range rows {
		transaction, err := mapTransaction(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transactions = append(transactions, transaction)
	}
	return transactions, nil
}

func (store *Store) ListAccounts(ctx context.Context, afterUserID string, limit int) ([]ledger.Account, error) {
	var rows []CreditAccount
	err := store.db.WithContext(ctx).
		Where("user_id > ?", afterUserID).
		Order("user_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
	}
	accounts := make([]ledger.Account, 0, len(rows))
	for _, row := range rows {
		account, err := mapAccount(row)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func (store *Store) GetGrant(ctx context.Context, viewerID ledger.UserID, subjectID ledger.ApplicationID) (ledger.ProfileViewGrant, error) {
	var row ProfileViewGrant
	err := store.db.WithContext(ctx).
		Where("viewer_id = ? AND subject_id = ?", viewerID.String(), subjectID.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.ProfileViewGrant{}, wrapStoreError(errorSubjectGrant, errorCodeGet, ledger.ErrNotFound)
	}
	if err != nil {
		return ledger.ProfileViewGrant{}, wrapStoreError(errorSubjectGrant, errorCodeGet, err)
	}
	return mapGrant(row)
}

func (store *Store) InsertGrant(ctx context.Context, input ledger.GrantInput) (ledger.ProfileViewGrant, error) {
	row := ProfileViewGrant{
		ViewerID:  input.ViewerID.String(),
		SubjectID: input.SubjectID.String(),
		CreatedAt: unixToTime(input.CreatedUnixUTC),
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err, indexGrantViewerSubject) {
		return ledger.ProfileViewGrant{}, wrapStoreError(errorSubjectGrant, errorCodeDuplicate, ledger.ErrStorageConflict)
	}
	if err != nil {
		return ledger.ProfileViewGrant{}, wrapStoreError(errorSubjectGrant, errorCodeInsert, err)
	}
	return mapGrant(row)
}

func (store *Store) ListGrants(ctx context.Context, viewerID ledger.UserID) ([]ledger.ProfileViewGrant, error) {
	var rows []ProfileViewGrant
	err := store.db.WithContext(ctx).
		Where("viewer_id = ?", viewerID.String()).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectGrant, errorCodeList, err)
	}
	grants := make([]ledger.ProfileViewGrant, 0, len(rows))
	for _, row := range rows {
		grant, err := mapGrant(row)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, nil
}

type sqlSum struct {
	Total int64
}

func lockingQuery(db *gorm.DB, inTx bool) *gorm.DB {
	if !inTx {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func mapAccount(row CreditAccount) (ledger.Account, error) {
	userID, err := ledger.NewUserID(row.UserID)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return ledger.Account{
		UserID:  userID,
		Balance: ledger.Credits(row.Balance),
		Version: row.Version,
	}, nil
}

func mapTransaction(row CreditTransaction) (ledger.Transaction, error) {
	userID, err := ledger.NewUserID(row.UserID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	kind, err := ledger.ParseTransactionKind(row.Kind)
	if err != nil {
		return ledger.Transaction{}, err
	}
	metadata, err := ledger.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return ledger.Transaction{}, err
	}
	return ledger.Transaction{
		TransactionID:  row.TransactionID,
		UserID:         userID,
		Amount:         ledger.Credits(row.Amount),
		Kind:           kind,
		Description:    row.Description,
		Metadata:       metadata,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func mapGrant(row ProfileViewGrant) (ledger.ProfileViewGrant, error) {
	viewerID, err := ledger.NewUserID(row.ViewerID)
	if err != nil {
		return ledger.ProfileViewGrant{}, wrapStoreError(errorSubjectGrant, errorCodeInvalid, err)
	}
	subjectID, err := ledger.NewApplicationID(row.SubjectID)
	if err != nil {
		return ledger.ProfileViewGrant{}, wrapStoreError(errorSubjectGrant, errorCodeInvalid, err)
	}
	return ledger.ProfileViewGrant{
		GrantID:        row.GrantID,
		ViewerID:       viewerID,
		SubjectID:      subjectID,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func unixToTime(unixUTC int64) time.Time {
	if unixUTC == 0 {
		return time.Now().UTC().Truncate(time.Second)
	}
	return time.Unix(unixUTC, 0).UTC()
}
