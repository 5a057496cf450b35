package core

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/bookdrop/backend/internal/repo"
)

// fakeAccountRepo is an in-memory AccountRepository with the same
// transactional semantics as the pgx implementation.
type fakeAccountRepo struct {
	mu        sync.Mutex
	accounts  map[string]repo.Account
	addresses map[string][]repo.DeliveryAddress
	nextID    int64
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{
		accounts:  make(map[string]repo.Account),
		addresses: make(map[string][]repo.DeliveryAddress),
	}
}

func (f *fakeAccountRepo) addAccount(dropboxID string, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[dropboxID] = repo.Account{DropboxID: dropboxID, Active: active, Emailer: "bookdropped+test"}
}

func (f *fakeAccountRepo) UpsertAccount(ctx context.Context, params repo.UpsertAccountParams) (repo.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	account, exists := f.accounts[params.DropboxID]
	if !exists {
		account = repo.Account{DropboxID: params.DropboxID, Emailer: params.Emailer}
	}
	account.DisplayName = params.DisplayName
	account.AccessToken = params.AccessToken
	f.accounts[params.DropboxID] = account
	return account, nil
}

func (f *fakeAccountRepo) GetAccount(ctx context.Context, dropboxID string) (repo.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	account, exists := f.accounts[dropboxID]
	if !exists {
		return repo.Account{}, repo.ErrAccountNotFound
	}
	return account, nil
}

func (f *fakeAccountRepo) ActivateAccount(ctx context.Context, dropboxID string, localParts []string) (repo.ActivateAccountResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	account, exists := f.accounts[dropboxID]
	if !exists {
		return repo.ActivateAccountResult{}, repo.ErrAccountNotFound
	}
	if account.Active {
		return repo.ActivateAccountResult{AlreadyActive: true}, nil
	}
	if len(localParts) == 0 {
		return repo.ActivateAccountResult{}, repo.ErrNoValidAddresses
	}

	for _, localPart := range localParts {
		f.nextID++
		f.addresses[dropboxID] = append(f.addresses[dropboxID], repo.DeliveryAddress{
			ID:        f.nextID,
			DropboxID: dropboxID,
			LocalPart: localPart,
		})
	}
	account.Active = true
	f.accounts[dropboxID] = account

	return repo.ActivateAccountResult{AddressCount: len(localParts)}, nil
}

func (f *fakeAccountRepo) DeactivateAccount(ctx context.Context, dropboxID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	account, exists := f.accounts[dropboxID]
	if !exists {
		return repo.ErrAccountNotFound
	}
	delete(f.addresses, dropboxID)
	account.Active = false
	f.accounts[dropboxID] = account
	return nil
}

func (f *fakeAccountRepo) UnlinkAccount(ctx context.Context, dropboxID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	account, exists := f.accounts[dropboxID]
	if !exists {
		return repo.ErrAccountNotFound
	}
	account.Active = false
	account.AccessToken.Valid = false
	account.AccessToken.String = ""
	account.Cursor.Valid = false
	account.Cursor.String = ""
	f.accounts[dropboxID] = account
	return nil
}

func (f *fakeAccountRepo) SetAddedBookmarklet(ctx context.Context, dropboxID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	account, exists := f.accounts[dropboxID]
	if !exists {
		return repo.ErrAccountNotFound
	}
	account.AddedBookmarklet = true
	f.accounts[dropboxID] = account
	return nil
}

func (f *fakeAccountRepo) ListDeliveryAddresses(ctx context.Context, dropboxID string) ([]repo.DeliveryAddress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]repo.DeliveryAddress(nil), f.addresses[dropboxID]...), nil
}

// fakeEnqueuer records enqueued account ids and can be told to fail.
type fakeEnqueuer struct {
	mu       sync.Mutex
	enqueued []string
	failWith error
}

func (f *fakeEnqueuer) EnqueueSync(ctx context.Context, dropboxID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.enqueued = append(f.enqueued, dropboxID)
	return nil
}

func (f *fakeEnqueuer) jobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.enqueued...)
}

var errQueueDown = errors.New("queue down")

func testLogger() *zap.Logger {
	return zap.NewNop()
}
