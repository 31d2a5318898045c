package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/okian/playrank/internal/adapters/gateway"
	"github.com/okian/playrank/internal/adapters/mq/queue"
	"github.com/okian/playrank/internal/adapters/mq/worker"
	"github.com/okian/playrank/internal/domain/model"
	"github.com/okian/playrank/pkg/logger"
	"github.com/okian/playrank/pkg/metrics"
)

// Notification outcomes used as metric labels.
const (
	notifyDelivered = "delivered"
	notifyFailed    = "failed"
	notifyInline    = "inline_fallback"
)

const (
	defaultGatewayTimeout = 2 * time.Second
	gatewayRetries        = 2
	gatewayRetryBase      = 50 * time.Millisecond
)

// Notifier receives post-commit activity. It never reports failure back to
// the submitter; the leaderboard write has already committed.
type Notifier interface {
	Notify(ctx context.Context, e model.ActivityEvent)
}

// ActivityDeliverer pushes one activity event to the identity collaborator.
// It is detached from the caller's cancellation and bounded by its own
// timeout.
type ActivityDeliverer struct {
	identity gateway.Identity
	timeout  time.Duration
}

var _ worker.Deliverer = (*ActivityDeliverer)(nil)

// NewActivityDeliverer returns a deliverer; timeout <= 0 uses the default.
func NewActivityDeliverer(identity gateway.Identity, timeout time.Duration) *ActivityDeliverer {
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &ActivityDeliverer{identity: identity, timeout: timeout}
}

func (d *ActivityDeliverer) Deliver(ctx context.Context, e model.ActivityEvent) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	var errs []error
	if e.RaiseHighest {
		if err := call(ctx, "set_highest_score", func(ctx context.Context) error {
			return d.identity.SetUserHighestScore(ctx, e.UserID, e.Score)
		}); err != nil {
			errs = append(errs, err)
		}
	}
	if err := call(ctx, "touch_activity", func(ctx context.Context) error {
		return d.identity.TouchUserActivity(ctx, e.UserID, e.At)
	}); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		metrics.RecordNotification(notifyFailed)
		return err
	}
	metrics.RecordNotification(notifyDelivered)
	return nil
}

// call retries transient gateway failures. A missing user is final.
func call(ctx context.Context, op string, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(gatewayRetries, retry.NewExponential(gatewayRetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || errors.Is(err, model.ErrUserNotFound) {
			return err
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		metrics.RecordGatewayError(op)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SyncNotifier delivers inline, after the table mutation, within the request.
type SyncNotifier struct {
	deliverer worker.Deliverer
	logger    logger.Logger
}

func NewSyncNotifier(d worker.Deliverer) *SyncNotifier {
	return &SyncNotifier{deliverer: d, logger: logger.Get().Named("notifier")}
}

func (n *SyncNotifier) Notify(ctx context.Context, e model.ActivityEvent) {
	if err := n.deliverer.Deliver(ctx, e); err != nil {
		n.logger.Warn(ctx, "activity update failed",
			logger.String("userId", e.UserID),
			logger.Error(err),
		)
	}
}

// QueuedNotifier hands events to a worker pool. When the queue rejects an
// event it is delivered inline instead of being dropped.
type QueuedNotifier struct {
	queue  queue.Queue
	pool   *worker.Pool
	inline *SyncNotifier
	logger logger.Logger
}

// NewQueuedNotifier builds the queue and pool; call Start before Notify.
func NewQueuedNotifier(d worker.Deliverer, capacity, workers int) *QueuedNotifier {
	q := queue.NewInMemoryQueue(queue.WithCapacity(capacity))
	return &QueuedNotifier{
		queue:  q,
		pool:   worker.NewPool(workers, q, d),
		inline: NewSyncNotifier(d),
		logger: logger.Get().Named("notifier"),
	}
}

func (n *QueuedNotifier) Start(ctx context.Context) {
	n.pool.Start(ctx)
}

// Shutdown stops intake and drains buffered events until ctx expires.
func (n *QueuedNotifier) Shutdown(ctx context.Context) error {
	return n.pool.Shutdown(ctx)
}

func (n *QueuedNotifier) Len() int {
	return n.queue.Len()
}

func (n *QueuedNotifier) Notify(ctx context.Context, e model.ActivityEvent) {
	err := n.queue.TryEnqueue(context.WithoutCancel(ctx), e)
	if err == nil {
		return
	}
	n.logger.Debug(ctx, "activity queue rejected event, delivering inline",
		logger.String("userId", e.UserID),
		logger.Error(err),
	)
	metrics.RecordNotification(notifyInline)
	n.inline.Notify(ctx, e)
}
