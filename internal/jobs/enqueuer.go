package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SyncSubject is the queue subject the forwarding worker subscribes on.
const SyncSubject = "bookdrop.jobs.sync"

// Enqueuer schedules one forwarding job for an account. The worker consuming
// these jobs keeps its own change cursor, so repeated or out-of-order jobs
// for the same account are safe.
type Enqueuer interface {
	EnqueueSync(ctx context.Context, dropboxID string) error
}

type syncJob struct {
	AccountID string `json:"account_id"`
}

type natsEnqueuer struct {
	nc     *nats.Conn
	logger *zap.Logger
}

// NewNATSEnqueuer creates an Enqueuer publishing to NATS
func NewNATSEnqueuer(nc *nats.Conn, logger *zap.Logger) Enqueuer {
	return &natsEnqueuer{
		nc:     nc,
		logger: logger.Named("job_enqueuer"),
	}
}

func (e *natsEnqueuer) EnqueueSync(ctx context.Context, dropboxID string) error {
	data, err := json.Marshal(syncJob{AccountID: dropboxID})
	if err != nil {
		return fmt.Errorf("failed to marshal sync job: %w", err)
	}

	if err := e.nc.Publish(SyncSubject, data); err != nil {
		return fmt.Errorf("failed to publish sync job: %w", err)
	}

	e.logger.Debug("Sync job enqueued", zap.String("account_id", dropboxID))
	return nil
}
