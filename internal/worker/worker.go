// Package worker implements the Worker Loop (spec C6): one long-lived
// consumer bound to a single channel, polling enabled/changed on every
// delivery and draining the consumer on hot reconfiguration.
package worker

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/facile-ops/queuerunner/internal/broker"
	"github.com/facile-ops/queuerunner/internal/dispatch"
	"github.com/facile-ops/queuerunner/internal/domain"
	"github.com/facile-ops/queuerunner/internal/metrics"
	"github.com/facile-ops/queuerunner/internal/registry"
)

// Status is the terminal outcome of one Worker Loop run.
type Status int

const (
	GenericOk Status = iota
	ConsumerChanged
	CountChanged
	Killed
)

func (s Status) String() string {
	switch s {
	case ConsumerChanged:
		return "ConsumerChanged"
	case CountChanged:
		return "CountChanged"
	case Killed:
		return "Killed"
	default:
		return "GenericOk"
	}
}

// gateWaitInterval is the sleep between enabled-checks while a worker is
// dormant waiting for its queue to turn on (spec 4.6 step 2).
const gateWaitInterval = 60 * time.Second

// recoverWaitInterval is the pause between basic_cancel and basic_recover
// on disable (spec 4.6 step 4c).
const recoverWaitInterval = 1 * time.Second

// Worker runs one consumer loop for a single (queue, worker_index) pair.
type Worker struct {
	Registry   registry.Registry
	Dispatcher *dispatch.Dispatcher
	Logger     *zap.Logger
}

// Run implements spec 4.6.
func (w *Worker) Run(ctx context.Context, workerIndex int, def domain.QueueDefinition, ch broker.Channel, queueName string) (Status, error) {
	consumerTag := def.ConsumerTag(workerIndex)

	if err := w.gateWait(ctx, def); err != nil {
		return Killed, nil
	}

	deliveries, err := ch.Consume(queueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		return GenericOk, &broker.BrokerError{Err: err}
	}

	metrics.WorkersActive.Inc()
	defer metrics.WorkersActive.Dec()

	for {
		select {
		case <-ctx.Done():
			return Killed, nil
		case delivery, ok := <-deliveries:
			if !ok {
				return GenericOk, nil
			}

			status, terminal, err := w.handleDelivery(ctx, workerIndex, def, ch, consumerTag, delivery)
			if err != nil {
				return GenericOk, err
			}
			if terminal {
				return status, nil
			}
		}
	}
}

// gateWait blocks, logging once, while the queue is disabled.
func (w *Worker) gateWait(ctx context.Context, def domain.QueueDefinition) error {
	if registry.Enabled(w.Registry, def.ID) {
		return nil
	}

	w.Logger.Info("consumer dormant, queue disabled",
		zap.String("queue", def.QueueName),
	)

	ticker := time.NewTicker(gateWaitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if registry.Enabled(w.Registry, def.ID) {
				return nil
			}
		}
	}
}

// handleDelivery implements spec 4.6 step 4: returns (status, terminal,
// error) where terminal means the worker loop must stop and return status.
func (w *Worker) handleDelivery(ctx context.Context, workerIndex int, def domain.QueueDefinition, ch broker.Channel, consumerTag string, delivery amqp.Delivery) (Status, bool, error) {
	isChanged := registry.Changed(w.Registry, def.ID, def.Count)
	isEnabled := registry.Enabled(w.Registry, def.ID)

	if !isChanged && isEnabled {
		d := dispatch.Delivery{Body: delivery.Body, Tag: delivery.DeliveryTag}
		enabled := func() bool { return registry.Enabled(w.Registry, def.ID) }
		if err := w.Dispatcher.Dispatch(ctx, workerIndex, def, ch, d, enabled); err != nil {
			return GenericOk, true, err
		}
	}

	if !isEnabled {
		if !isChanged {
			status := w.drainAndRecover(ch, consumerTag)
			return status, true, nil
		}
		return CountChanged, true, nil
	}

	if isChanged {
		return CountChanged, true, nil
	}

	return GenericOk, false, nil
}

// drainAndRecover implements spec 4.6 step 4c: cancel the consumer, pause,
// then recover with requeue so in-flight deliveries go back to the broker.
func (w *Worker) drainAndRecover(ch broker.Channel, consumerTag string) Status {
	if err := ch.Cancel(consumerTag, false); err != nil {
		w.Logger.Error("basic_cancel failed", zap.String("consumer", consumerTag), zap.Error(err))
		return GenericOk
	}

	time.Sleep(recoverWaitInterval)

	if err := ch.Recover(true); err != nil {
		w.Logger.Error("basic_recover failed", zap.String("consumer", consumerTag), zap.Error(err))
		return GenericOk
	}

	return ConsumerChanged
}
