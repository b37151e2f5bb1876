package supervisor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/facile-ops/queuerunner/internal/metrics"
	"github.com/facile-ops/queuerunner/internal/registry"
)

// ClientResult is the final outcome of RunClient.
type ClientResult int

const (
	Stopped ClientResult = iota
	StoppedWithError
)

// RunClient drives the outer state machine described in spec 4.8:
//
//	Run -> Restart -> Run -> ...
//	    -> Killed  -> STOP
//	    -> Exit    -> STOP
//	    -> Error(e) -> Waiter.IsToClose()? STOP(e) : sleep(wait) -> Run
//
// It loops calling sup.Run until a Killed/Exit status is reached or the
// Waiter's reconnect budget is exhausted. Registry errors (ErrUnavailable,
// ErrEmptyQueueList) stop the loop at once without consulting the Waiter.
func RunClient(ctx context.Context, sup *Supervisor, logger *zap.Logger) (ClientResult, error) {
	for {
		status, err := sup.Run(ctx)
		if err != nil {
			if errors.Is(err, ErrEmptyQueueList) || errors.Is(err, registry.ErrUnavailable) {
				logger.Error("fatal registry error, stopping", zap.Error(err))
				return StoppedWithError, err
			}

			sup.Waiter.OnError()
			metrics.ReconnectsTotal.Inc()

			if sup.Waiter.IsToClose() {
				logger.Error("reconnect budget exhausted, stopping", zap.Error(err))
				return StoppedWithError, err
			}

			waitMs := sup.Waiter.WaitMs()
			logger.Error("supervisor error, waiting before retry",
				zap.Error(err),
				zap.Int64("wait_ms", int64(waitMs)),
			)

			select {
			case <-time.After(time.Duration(waitMs) * time.Millisecond):
				continue
			case <-ctx.Done():
				return Stopped, nil
			}
		}

		switch status {
		case Killed:
			logger.Info("received shutdown signal, stopping")
			return Stopped, nil
		case Exit:
			logger.Info("supervisor exited cleanly, stopping")
			return Stopped, nil
		case Restart:
			logger.Info("hot reconfiguration detected, restarting supervisor")
			continue
		}
	}
}
