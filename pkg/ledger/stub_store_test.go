package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
)

const (
	stubNowUnixUTC int64 = 1_700_000_000
	racedGrantID         = "grant-from-concurrent-caller"
)

var errStoreFailure = errors.New("store error")

func stubClock() int64 {
	return stubNowUnixUTC
}

// stubStore is an in-memory Store. WithTx snapshots state and restores it when fn fails.
type stubStore struct {
	accounts     map[string]Account
	transactions []Transaction
	grants       map[string]ProfileViewGrant

	txCalls        int
	lastListLimit  int
	lastListBefore int64

	updateConflicts        int
	raceGrant              bool
	pendingExternalGrant   *ProfileViewGrant
	getAccountError        error
	lockAccountError       error
	insertTransactionError error
	updateBalanceError     error
	getGrantError          error
	insertGrantError       error
	sumError               error
	listError              error
}

type stubSnapshot struct {
	accounts     map[string]Account
	transactions int
	grants       map[string]ProfileViewGrant
}

func newStubStore() *stubStore {
	return &stubStore{
		accounts: make(map[string]Account),
		grants:   make(map[string]ProfileViewGrant),
	}
}

func (store *stubStore) seedBalance(userID UserID, balance Credits) {
	store.accounts[userID.String()] = Account{UserID: userID, Balance: balance}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.txCalls++
	snapshot := store.snapshot()
	if err := fn(ctx, store); err != nil {
		store.restore(snapshot)
		if store.pendingExternalGrant != nil {
			grant := *store.pendingExternalGrant
			store.grants[grantKey(grant.ViewerID, grant.SubjectID)] = grant
			store.pendingExternalGrant = nil
		}
		return err
	}
	return nil
}

func (store *stubStore) LockAccount(ctx context.Context, userID UserID) (Account, error) {
	if store.lockAccountError != nil {
		return Account{}, store.lockAccountError
	}
	account, ok := store.accounts[userID.String()]
	if !ok {
		account = Account{UserID: userID}
		store.accounts[userID.String()] = account
	}
	return account, nil
}

func (store *stubStore) GetAccount(ctx context.Context, userID UserID) (Account, error) {
	if store.getAccountError != nil {
		return Account{}, store.getAccountError
	}
	account, ok := store.accounts[userID.String()]
	if !ok {
		return Account{}, ErrNotFound
	}
	return account, nil
}

func (store *stubStore) UpdateBalance(ctx context.Context, userID UserID, expectedVersion int64, balance Credits) error {
	if store.updateBalanceError != nil {
		return store.updateBalanceError
	}
	if store.updateConflicts > 0 {
		store.updateConflicts--
		return WrapError("store", "balance", "stale", ErrStorageConflict)
	}
	account := store.accounts[userID.String()]
	if account.Version != expectedVersion {
		return ErrStorageConflict
	}
	account.Balance = balance
	account.Version++
	store.accounts[userID.String()] = account
	return nil
}

func (store *stubStore) InsertTransaction(ctx context.Context, input TransactionInput) (Transaction, error) {
	if store.insertTransactionError != nil {
		return Transaction{}, store.insertTransactionError
	}
	transaction := Transaction{
		TransactionID:  fmt.Sprintf("transaction-%d", len(store.transactions)+1),
		UserID:         input.UserID,
		Amount:         input.Amount,
		Kind:           input.Kind,
		Description:    input.Description.String(),
		Metadata:       input.Metadata,
		CreatedUnixUTC: input.CreatedUnixUTC,
	}
	store.transactions = append(store.transactions, transaction)
	return transaction, nil
}

func (store *stubStore) SumTransactions(ctx context.Context, userID UserID) (Credits, error) {
	if store.sumError != nil {
		return 0, store.sumError
	}
	var total Credits
	for _, transaction := range store.transactions {
		if transaction.UserID == userID {
			total += transaction.Amount
		}
	}
	return total, nil
}

func (store *stubStore) ListTransactions(ctx context.Context, userID UserID, beforeUnixUTC int64, limit int) ([]Transaction, error) {
	store.lastListLimit = limit
	store.lastListBefore = beforeUnixUTC
	if store.listError != nil {
		return nil, store.listError
	}
	listed := make([]Transaction, 0)
	for index := len(store.transactions) - 1; index >= 0 && len(listed) < limit; index-- {
		transaction := store.transactions[index]
		if transaction.UserID == userID && transaction.CreatedUnixUTC < beforeUnixUTC {
			listed = append(listed, transaction)
		}
	}
	return listed, nil
}

func (store *stubStore) ListAccounts(ctx context.Context, afterUserID string, limit int) ([]Account, error) {
	if store.listError != nil {
		return nil, store.listError
	}
	keys := make([]string, 0, len(store.accounts))
	for key := range store.accounts {
		if key > afterUserID {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	accounts := make([]Account, 0, len(keys))
	for _, key := range keys {
		accounts = append(accounts, store.accounts[key])
	}
	return accounts, nil
}

func (store *stubStore) GetGrant(ctx context.Context, viewerID UserID, subjectID ApplicationID) (ProfileViewGrant, error) {
	if store.getGrantError != nil {
		return ProfileViewGrant{}, store.getGrantError
	}
	grant, ok := store.grants[grantKey(viewerID, subjectID)]
	if !ok {
		return ProfileViewGrant{}, ErrNotFound
	}
	return grant, nil
}

func (store *stubStore) InsertGrant(ctx context.Context, input GrantInput) (ProfileViewGrant, error) {
	if store.insertGrantError != nil {
		return ProfileViewGrant{}, store.insertGrantError
	}
	if store.raceGrant {
		store.raceGrant = false
		store.pendingExternalGrant = &ProfileViewGrant{
			GrantID:        racedGrantID,
			ViewerID:       input.ViewerID,
			SubjectID:      input.SubjectID,
			CreatedUnixUTC: input.CreatedUnixUTC,
		}
		return ProfileViewGrant{}, WrapError("store", "grant", "duplicate", ErrStorageConflict)
	}
	key := grantKey(input.ViewerID, input.SubjectID)
	if _, exists := store.grants[key]; exists {
		return ProfileViewGrant{}, ErrStorageConflict
	}
	grant := ProfileViewGrant{
		GrantID:        fmt.Sprintf("grant-%d", len(store.grants)+1),
		ViewerID:       input.ViewerID,
		SubjectID:      input.SubjectID,
		CreatedUnixUTC: input.CreatedUnixUTC,
	}
	store.grants[key] = grant
	return grant, nil
}

func (store *stubStore) ListGrants(ctx context.Context, viewerID UserID) ([]ProfileViewGrant, error) {
	if store.listError != nil {
		return nil, store.listError
	}
	grants := make([]ProfileViewGrant, 0)
	for _, grant := range store.grants {
		if grant.ViewerID == viewerID {
			grants = append(grants, grant)
		}
	}
	return grants, nil
}

func (store *stubStore) snapshot() stubSnapshot {
	accounts := make(map[string]Account, len(store.accounts))
	for key, account := range store.accounts {
		accounts[key] = account
	}
	grants := make(map[string]ProfileViewGrant, len(store.grants))
	for key, grant := range store.grants {
		grants[key] = grant
	}
	return stubSnapshot{accounts: accounts, transactions: len(store.transactions), grants: grants}
}

func (store *stubStore) restore(snapshot stubSnapshot) {
	store.accounts = snapshot.accounts
	store.transactions = store.transactions[:snapshot.transactions]
	store.grants = snapshot.grants
}

func grantKey(viewerID UserID, subjectID ApplicationID) string {
	return viewerID.String() + "\x00" + subjectID.String()
}

func mustNewService(test *testing.T, store Store) *Service {
	test.Helper()
	service, err := NewService(store, stubClock)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	value, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return value
}

func mustApplicationID(test *testing.T, raw string) ApplicationID {
	test.Helper()
	value, err := NewApplicationID(raw)
	if err != nil {
		test.Fatalf("application id: %v", err)
	}
	return value
}

func mustDescription(test *testing.T, raw string) Description {
	test.Helper()
	value, err := NewDescription(raw)
	if err != nil {
		test.Fatalf("description: %v", err)
	}
	return value
}

func mustMetadata(test *testing.T, raw string) MetadataJSON {
	test.Helper()
	value, err := NewMetadataJSON(raw)
	if err != nil {
		test.Fatalf("metadata: %v", err)
	}
	return value
}

func mustAdmin(test *testing.T, raw string) Actor {
	test.Helper()
	return Actor{UserID: mustUserID(test, raw), Role: RoleAdmin}
}
