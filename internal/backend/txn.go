package backend

import (
	"context"

	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/obaidx/internal/logging"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/tx"
)

// TransactedOperation is one unit of work run by RunTransacted. Invoke may
// be called several times, each time in a fresh transaction, so it must
// not change state that outlives the transaction. IDs and other values
// chosen for the operation are computed once by the caller and reused on
// every attempt.
type TransactedOperation struct {
	// Name labels log lines and metrics.
	Name string
	// Begin runs before every attempt. Optional.
	Begin func()
	// Invoke does the work inside txn.
	Invoke func(txn *tx.Transaction) error
	// PostCommit runs once after a successful commit. Optional.
	PostCommit func()
}

// RunTransacted runs op, retrying it after deadlocks. The operation is
// attempted at most DeadlockRetryLimit+1 times. Any other error aborts the
// transaction and is returned as is.
func (ec *EntryContainer) RunTransacted(ctx context.Context, op TransactedOperation) error {
	logger := ec.logger.WithOperationID(logging.NewOperationID()).WithFields("op", op.Name)
	retries := ec.cfg.DeadlockRetryLimit
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			Operations.WithLabelValues(op.Name, "canceled").Inc()
			return err
		}
		if op.Begin != nil {
			op.Begin()
		}
		txn := ec.txm.Begin()
		err := op.Invoke(txn)
		if err == nil {
			if err = txn.Commit(); err == nil {
				if op.PostCommit != nil {
					op.PostCommit()
				}
				Operations.WithLabelValues(op.Name, "success").Inc()
				if attempt > 1 {
					logger.Debug("operation committed after retry", "attempts", attempt)
				}
				return nil
			}
		}
		txn.Abort()

		if !errors.Is(err, tx.ErrDeadlock) {
			Operations.WithLabelValues(op.Name, "error").Inc()
			return err
		}
		if retries <= 0 {
			Operations.WithLabelValues(op.Name, "deadlock").Inc()
			logger.Warn("operation abandoned after deadlocks", "attempts", attempt)
			return errors.Wrapf(err, "backend: %s gave up after %d attempts", op.Name, attempt)
		}
		retries--
		DeadlockRetries.WithLabelValues(op.Name).Inc()
		logger.Debug("deadlock, retrying", "attempt", attempt)
	}
}
