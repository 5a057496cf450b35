package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/bookdrop/backend/internal/jobs"
)

// ErrMalformedNotification is returned when a webhook body cannot be parsed
// or lacks the changed-accounts list. The whole batch is rejected.
var ErrMalformedNotification = errors.New("malformed change notification")

// notification is the provider's change-notification payload. Only the
// delta.users path matters here.
type notification struct {
	Delta *struct {
		Users []string `json:"users"`
	} `json:"delta"`
}

// DispatchService fans an authenticated change notification out into one
// sync job per referenced account.
type DispatchService struct {
	enqueuer jobs.Enqueuer
	logger   *zap.Logger
}

// NewDispatchService creates a new dispatch service
func NewDispatchService(enqueuer jobs.Enqueuer, logger *zap.Logger) *DispatchService {
	return &DispatchService{
		enqueuer: enqueuer,
		logger:   logger.Named("dispatch_service"),
	}
}

// Dispatch parses the notification body and enqueues one job per listed
// account id, in order, duplicates included: the worker's change cursor
// makes repeated jobs safe, so nothing is coalesced here. Returns the number
// of jobs enqueued. Account and delivery-address state is never touched.
func (s *DispatchService) Dispatch(ctx context.Context, body []byte) (int, error) {
	var note notification
	if err := json.Unmarshal(body, &note); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	if note.Delta == nil || note.Delta.Users == nil {
		return 0, fmt.Errorf("%w: missing delta.users", ErrMalformedNotification)
	}

	enqueued := 0
	for _, dropboxID := range note.Delta.Users {
		if err := s.enqueuer.EnqueueSync(ctx, dropboxID); err != nil {
			// The provider retries the whole notification anyway; a failed
			// publish is logged and the rest of the batch continues.
			s.logger.Warn("Failed to enqueue sync job from notification",
				zap.String("dropbox_id", dropboxID),
				zap.Error(err))
			continue
		}
		enqueued++
	}

	s.logger.Info("Notification dispatched",
		zap.Int("accounts", len(note.Delta.Users)),
		zap.Int("enqueued", enqueued))

	return enqueued, nil
}
