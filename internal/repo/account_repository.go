package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type accountRepository struct {
	db *pgxpool.Pool
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *pgxpool.Pool) AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `dropbox_id, display_name, active, added_bookmarklet, emailer, access_token, cursor, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var account Account
	err := row.Scan(
		&account.DropboxID,
		&account.DisplayName,
		&account.Active,
		&account.AddedBookmarklet,
		&account.Emailer,
		&account.AccessToken,
		&account.Cursor,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	return account, err
}

func (r *accountRepository) UpsertAccount(ctx context.Context, params UpsertAccountParams) (Account, error) {
	query := `
		INSERT INTO accounts (dropbox_id, display_name, access_token, emailer)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (dropbox_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			access_token = EXCLUDED.access_token,
			updated_at = NOW()
		RETURNING ` + accountColumns

	account, err := scanAccount(r.db.QueryRow(ctx, query,
		params.DropboxID,
		params.DisplayName,
		params.AccessToken,
		params.Emailer,
	))
	if err != nil {
		return Account{}, fmt.Errorf("failed to upsert account: %w", err)
	}

	return account, nil
}

func (r *accountRepository) GetAccount(ctx context.Context, dropboxID string) (Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE dropbox_id = $1`

	account, err := scanAccount(r.db.QueryRow(ctx, query, dropboxID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

func (r *accountRepository) ActivateAccount(ctx context.Context, dropboxID string, localParts []string) (ActivateAccountResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return ActivateAccountResult{}, fmt.Errorf("failed to begin activation tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the account row so concurrent activations of the same account
	// serialize on the active check.
	var active bool
	err = tx.QueryRow(ctx, `SELECT active FROM accounts WHERE dropbox_id = $1 FOR UPDATE`, dropboxID).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ActivateAccountResult{}, ErrAccountNotFound
		}
		return ActivateAccountResult{}, fmt.Errorf("failed to lock account: %w", err)
	}

	if active {
		return ActivateAccountResult{AlreadyActive: true}, nil
	}

	if len(localParts) == 0 {
		return ActivateAccountResult{}, ErrNoValidAddresses
	}

	// Duplicates in localParts are inserted as-is, one row each.
	for _, localPart := range localParts {
		if _, err := tx.Exec(ctx,
			`INSERT INTO delivery_addresses (dropbox_id, local_part) VALUES ($1, $2)`,
			dropboxID, localPart,
		); err != nil {
			return ActivateAccountResult{}, fmt.Errorf("failed to insert delivery address: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET active = TRUE, updated_at = NOW() WHERE dropbox_id = $1`,
		dropboxID,
	); err != nil {
		return ActivateAccountResult{}, fmt.Errorf("failed to set account active: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ActivateAccountResult{}, fmt.Errorf("failed to commit activation: %w", err)
	}

	return ActivateAccountResult{AddressCount: len(localParts)}, nil
}

func (r *accountRepository) DeactivateAccount(ctx context.Context, dropboxID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin deactivation tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM delivery_addresses WHERE dropbox_id = $1`,
		dropboxID,
	); err != nil {
		return fmt.Errorf("failed to delete delivery addresses: %w", err)
	}

	result, err := tx.Exec(ctx,
		`UPDATE accounts SET active = FALSE, updated_at = NOW() WHERE dropbox_id = $1`,
		dropboxID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear active flag: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit deactivation: %w", err)
	}

	return nil
}

func (r *accountRepository) UnlinkAccount(ctx context.Context, dropboxID string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE accounts
		SET active = FALSE, access_token = NULL, cursor = NULL, updated_at = NOW()
		WHERE dropbox_id = $1`,
		dropboxID,
	)
	if err != nil {
		return fmt.Errorf("failed to unlink account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return nil
}

func (r *accountRepository) SetAddedBookmarklet(ctx context.Context, dropboxID string) error {
	result, err := r.db.Exec(ctx,
		`UPDATE accounts SET added_bookmarklet = TRUE, updated_at = NOW() WHERE dropbox_id = $1`,
		dropboxID,
	)
	if err != nil {
		return fmt.Errorf("failed to set added_bookmarklet: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return nil
}

func (r *accountRepository) ListDeliveryAddresses(ctx context.Context, dropboxID string) ([]DeliveryAddress, error) {
	query := `
		SELECT id, dropbox_id, local_part, created_at
		FROM delivery_addresses
		WHERE dropbox_id = $1
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, dropboxID)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery addresses: %w", err)
	}
	defer rows.Close()

	var addresses []DeliveryAddress
	for rows.Next() {
		var address DeliveryAddress
		err := rows.Scan(
			&address.ID,
			&address.DropboxID,
			&address.LocalPart,
			&address.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery address: %w", err)
		}
		addresses = append(addresses, address)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return addresses, nil
}
