package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Sentinel errors surfaced by repository implementations.
var (
	// ErrAccountNotFound is returned when no account matches the given
	// provider id. Handlers treat it as "no session" for authorization.
	ErrAccountNotFound = errors.New("account not found")

	// ErrNoValidAddresses is returned by ActivateAccount when the candidate
	// list contains no usable delivery address. Nothing is persisted.
	ErrNoValidAddresses = errors.New("no valid delivery addresses")
)

type Account struct {
	DropboxID        string         `json:"dropbox_id"`
	DisplayName      sql.NullString `json:"display_name"`
	Active           bool           `json:"active"`
	AddedBookmarklet bool           `json:"added_bookmarklet"`
	Emailer          string         `json:"emailer"`
	AccessToken      sql.NullString `json:"-"`
	Cursor           sql.NullString `json:"-"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type DeliveryAddress struct {
	ID        int64     `json:"id"`
	DropboxID string    `json:"dropbox_id"`
	LocalPart string    `json:"local_part"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository parameter types
type UpsertAccountParams struct {
	DropboxID   string
	DisplayName sql.NullString
	AccessToken sql.NullString
	Emailer     string
}

// ActivateAccountResult reports what the activation transaction did.
type ActivateAccountResult struct {
	// AlreadyActive is true when the account was active before the call and
	// the transaction changed nothing.
	AlreadyActive bool
	// AddressCount is the number of delivery address rows inserted.
	AddressCount int
}

// Repository interfaces
type AccountRepository interface {
	// UpsertAccount creates the account on first link or refreshes the
	// display name and access token on re-link. The emailer alias is only
	// written on insert.
	UpsertAccount(ctx context.Context, params UpsertAccountParams) (Account, error)

	GetAccount(ctx context.Context, dropboxID string) (Account, error)

	// ActivateAccount inserts one delivery address row per local part and
	// flips the account active, all in one transaction. The account row is
	// locked first so two concurrent activations serialize; the loser
	// observes the account already active and changes nothing. An empty
	// localParts slice yields ErrNoValidAddresses and no writes.
	ActivateAccount(ctx context.Context, dropboxID string, localParts []string) (ActivateAccountResult, error)

	// DeactivateAccount deletes all delivery addresses for the account and
	// clears the active flag atomically. Deactivating an inactive account is
	// a no-op, not an error.
	DeactivateAccount(ctx context.Context, dropboxID string) error

	// UnlinkAccount clears the active flag, access token, and change cursor
	// in one statement. The account row survives.
	UnlinkAccount(ctx context.Context, dropboxID string) error

	SetAddedBookmarklet(ctx context.Context, dropboxID string) error

	ListDeliveryAddresses(ctx context.Context, dropboxID string) ([]DeliveryAddress, error)
}
