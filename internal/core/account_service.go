package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bookdrop/backend/internal/jobs"
	"github.com/bookdrop/backend/internal/repo"
)

// ErrInvalidAddressList is returned when the submitted address list is
// missing, unparseable, or contains no usable delivery address.
var ErrInvalidAddressList = errors.New("invalid delivery address list")

// AccountService owns the activate/deactivate state transitions and the
// account lifecycle around the provider link.
type AccountService struct {
	accountRepo repo.AccountRepository
	enqueuer    jobs.Enqueuer
	logger      *zap.Logger
}

// NewAccountService creates a new account service
func NewAccountService(accountRepo repo.AccountRepository, enqueuer jobs.Enqueuer, logger *zap.Logger) *AccountService {
	return &AccountService{
		accountRepo: accountRepo,
		enqueuer:    enqueuer,
		logger:      logger.Named("account_service"),
	}
}

// LinkAccount creates or refreshes the account after a successful OAuth
// callback. New accounts get a generated emailer alias; the display name is
// trimmed to its first word the way the provider profile is shown.
func (s *AccountService) LinkAccount(ctx context.Context, dropboxID, displayName, accessToken string) (*repo.Account, error) {
	firstName, _, _ := strings.Cut(displayName, " ")

	var displayNameNull sql.NullString
	if firstName != "" {
		displayNameNull = sql.NullString{String: firstName, Valid: true}
	}

	var accessTokenNull sql.NullString
	if accessToken != "" {
		accessTokenNull = sql.NullString{String: accessToken, Valid: true}
	}

	account, err := s.accountRepo.UpsertAccount(ctx, repo.UpsertAccountParams{
		DropboxID:   dropboxID,
		DisplayName: displayNameNull,
		AccessToken: accessTokenNull,
		Emailer:     newEmailerAlias(),
	})
	if err != nil {
		s.logger.Error("Failed to upsert account", zap.Error(err))
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}

	s.logger.Info("Account linked",
		zap.String("dropbox_id", account.DropboxID),
		zap.Bool("active", account.Active))

	return &account, nil
}

// GetAccount retrieves an account by its provider id
func (s *AccountService) GetAccount(ctx context.Context, dropboxID string) (*repo.Account, error) {
	account, err := s.accountRepo.GetAccount(ctx, dropboxID)
	if err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// Activate turns forwarding on for the account. Each raw candidate runs
// through the normalizer; rejects are dropped silently and duplicates are
// kept. The accepted set and the active flag commit in one transaction. An
// already-active account is a success no-op and does not reprocess
// addresses. On a fresh activation the initial sync job is enqueued best
// effort: a queue outage must not fail an activation that already committed.
func (s *AccountService) Activate(ctx context.Context, dropboxID string, rawAddresses []string) error {
	localParts := make([]string, 0, len(rawAddresses))
	for _, raw := range rawAddresses {
		localPart, ok := NormalizeDeliveryAddress(raw)
		if !ok {
			continue
		}
		localParts = append(localParts, localPart)
	}

	result, err := s.accountRepo.ActivateAccount(ctx, dropboxID, localParts)
	if err != nil {
		if errors.Is(err, repo.ErrNoValidAddresses) {
			return fmt.Errorf("%w: %d submitted, 0 accepted", ErrInvalidAddressList, len(rawAddresses))
		}
		s.logger.Error("Failed to activate account", zap.Error(err))
		return fmt.Errorf("failed to activate account: %w", err)
	}

	if result.AlreadyActive {
		s.logger.Debug("Account already active, nothing to do",
			zap.String("dropbox_id", dropboxID))
		return nil
	}

	s.logger.Info("Account activated",
		zap.String("dropbox_id", dropboxID),
		zap.Int("addresses", result.AddressCount))

	s.enqueueInitialSync(ctx, dropboxID)

	return nil
}

// enqueueInitialSync is the named best-effort enqueue: failures are logged
// for operators and never propagate to the caller.
func (s *AccountService) enqueueInitialSync(ctx context.Context, dropboxID string) {
	if err := s.enqueuer.EnqueueSync(ctx, dropboxID); err != nil {
		s.logger.Warn("Failed to enqueue initial sync job",
			zap.String("dropbox_id", dropboxID),
			zap.Error(err))
	}
}

// Deactivate turns forwarding off: all delivery addresses go, the active
// flag clears, atomically. Always succeeds for an existing account.
func (s *AccountService) Deactivate(ctx context.Context, dropboxID string) error {
	if err := s.accountRepo.DeactivateAccount(ctx, dropboxID); err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			return err
		}
		s.logger.Error("Failed to deactivate account", zap.Error(err))
		return fmt.Errorf("failed to deactivate account: %w", err)
	}

	s.logger.Info("Account deactivated", zap.String("dropbox_id", dropboxID))
	return nil
}

// Unlink severs the provider link: active flag, access token, and change
// cursor clear in one transaction. The account row stays.
func (s *AccountService) Unlink(ctx context.Context, dropboxID string) error {
	if err := s.accountRepo.UnlinkAccount(ctx, dropboxID); err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			return err
		}
		s.logger.Error("Failed to unlink account", zap.Error(err))
		return fmt.Errorf("failed to unlink account: %w", err)
	}

	s.logger.Info("Account unlinked", zap.String("dropbox_id", dropboxID))
	return nil
}

// MarkBookmarkletAdded records the UI-only bookmarklet flag
func (s *AccountService) MarkBookmarkletAdded(ctx context.Context, dropboxID string) error {
	if err := s.accountRepo.SetAddedBookmarklet(ctx, dropboxID); err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			return err
		}
		return fmt.Errorf("failed to mark bookmarklet added: %w", err)
	}
	return nil
}

// ListDeliveryAddresses returns all delivery addresses for an account
func (s *AccountService) ListDeliveryAddresses(ctx context.Context, dropboxID string) ([]repo.DeliveryAddress, error) {
	addresses, err := s.accountRepo.ListDeliveryAddresses(ctx, dropboxID)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery addresses: %w", err)
	}
	return addresses, nil
}

// newEmailerAlias generates the outbound relay alias provisioned for a new
// account. Registration of the alias with the relay is an operator concern.
func newEmailerAlias() string {
	return "bookdropped+" + uuid.NewString()[:8]
}
