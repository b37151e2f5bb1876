// Package dispatch implements the Message Dispatcher (spec C5): payload
// rendering, command construction, the execution-vs-timeout race, and the
// exit-code-to-broker-action mapping, including the retry-wait drive.
package dispatch

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/facile-ops/queuerunner/internal/broker"
	"github.com/facile-ops/queuerunner/internal/domain"
	"github.com/facile-ops/queuerunner/internal/metrics"
	"github.com/facile-ops/queuerunner/internal/wait"
)

const (
	outcomeAck           = "ack"
	outcomeRejectRequeue = "reject_requeue"
	outcomeRejectDrop    = "reject_drop"
)

// exit-code sentinels from the source's ACKNOWLEDGEMENT/NEGATIVE_* constants.
const (
	exitAck            = 0
	exitNackRequeue    = 1
	exitNackDropOther  = 2
	defaultSpawnFailRC = 2 // rc used when the process terminates without a usable status
)

// Delivery is the minimal view of a broker delivery the dispatcher needs,
// decoupling it from the amqp091 wire types for testability.
type Delivery struct {
	Body []byte
	Tag  uint64
}

// Dispatcher renders a command from a delivery, races it against its
// queue's configured timeout, and settles the delivery according to the
// outcome.
type Dispatcher struct {
	Scheduler *wait.Scheduler
	Runner    Runner
	Logger    *zap.Logger
}

// NewDispatcher builds a Dispatcher with the production ProcessRunner.
func NewDispatcher(scheduler *wait.Scheduler, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{Scheduler: scheduler, Runner: ProcessRunner{}, Logger: logger}
}

// Dispatch implements spec 4.5 end to end.
func (d *Dispatcher) Dispatch(ctx context.Context, workerIndex int, def domain.QueueDefinition, ch broker.Channel, delivery Delivery, enabled func() bool) error {
	correlationID := uuid.New().String()
	msg := renderPayload(delivery.Body, def.Base64)

	program, args, human := buildCommand(def.Command, msg, def.Base64)

	d.Logger.Info("executing command",
		zap.String("queue", def.QueueName),
		zap.Int("worker_index", workerIndex),
		zap.String("command", human),
		zap.String("correlation_id", correlationID),
	)

	timeout := time.Duration(def.CommandTimeoutMS()) * time.Millisecond
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	exitCode, err := d.Runner.Run(runCtx, program, args)
	elapsed := time.Since(start)
	metrics.DispatchDuration.WithLabelValues(def.QueueName).Observe(elapsed.Seconds())

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		return d.settleTimeout(def, ch, delivery, human, workerIndex)
	case err != nil:
		return d.settleRunnerError(def, ch, delivery, human, workerIndex, err)
	default:
		return d.settleExit(ctx, def, ch, delivery, human, workerIndex, exitCode, enabled)
	}
}

func (d *Dispatcher) settleTimeout(def domain.QueueDefinition, ch broker.Channel, delivery Delivery, human string, workerIndex int) error {
	d.Logger.Info("timeout executing command, command killed, message rejected and requeued",
		zap.String("queue", def.QueueName),
		zap.Int("worker_index", workerIndex),
		zap.String("command", human),
	)
	metrics.DispatchesTotal.WithLabelValues(def.QueueName, outcomeRejectRequeue).Inc()
	return wrapBrokerErr(ch.Reject(delivery.Tag, true))
}

func (d *Dispatcher) settleRunnerError(def domain.QueueDefinition, ch broker.Channel, delivery Delivery, human string, workerIndex int, runErr error) error {
	d.Logger.Info("error executing command, message rejected",
		zap.String("queue", def.QueueName),
		zap.Int("worker_index", workerIndex),
		zap.String("command", human),
		zap.Error(runErr),
	)
	metrics.DispatchesTotal.WithLabelValues(def.QueueName, outcomeRejectDrop).Inc()
	return wrapBrokerErr(ch.Reject(delivery.Tag, false))
}

func (d *Dispatcher) settleExit(ctx context.Context, def domain.QueueDefinition, ch broker.Channel, delivery Delivery, human string, workerIndex, exitCode int, enabled func() bool) error {
	if def.RetryMode == domain.RetryIgnored {
		d.Logger.Info("command result ignored, message removed",
			zap.String("queue", def.QueueName),
			zap.Int("worker_index", workerIndex),
			zap.String("command", human),
		)
		metrics.DispatchesTotal.WithLabelValues(def.QueueName, outcomeAck).Inc()
		return wrapBrokerErr(ch.Ack(delivery.Tag, false))
	}

	rc := coerceExitCode(exitCode, def.NackCode)
	key := wait.Key{QueueID: def.ID, WorkerIndex: int32(workerIndex)}

	switch rc {
	case exitAck:
		d.Logger.Info("command succeeded, message removed",
			zap.String("queue", def.QueueName),
			zap.Int("worker_index", workerIndex),
			zap.String("command", human),
		)
		metrics.DispatchesTotal.WithLabelValues(def.QueueName, outcomeAck).Inc()
		if err := ch.Ack(delivery.Tag, false); err != nil {
			return wrapBrokerErr(err)
		}
		d.Scheduler.Set(key, wait.Normal, def.RetryWaitSecond, def.RetryMode)
		return nil

	case exitNackRequeue:
		d.Logger.Info("command failed, message rejected and requeued",
			zap.String("queue", def.QueueName),
			zap.Int("worker_index", workerIndex),
			zap.String("command", human),
		)
		metrics.DispatchesTotal.WithLabelValues(def.QueueName, outcomeRejectRequeue).Inc()
		if err := ch.Reject(delivery.Tag, true); err != nil {
			return wrapBrokerErr(err)
		}

		ms := d.Scheduler.Get(key, def.RetryWaitSecond)
		d.Scheduler.CountdownDrain(ctx, key, def.RetryWaitSecond, enabled)
		d.Scheduler.Set(key, wait.Retry, ms, def.RetryMode)
		return nil

	default:
		d.Logger.Info("command failed, message rejected",
			zap.String("queue", def.QueueName),
			zap.Int("worker_index", workerIndex),
			zap.String("command", human),
		)
		metrics.DispatchesTotal.WithLabelValues(def.QueueName, outcomeRejectDrop).Inc()
		return wrapBrokerErr(ch.Reject(delivery.Tag, false))
	}
}

// coerceExitCode applies the nack_code sentinel rule adopted in
// SPEC_FULL.md's REDESIGN FLAGS: equality with nack_code forces a drop;
// any other non-zero code forces a requeue; zero is always left alone.
func coerceExitCode(rc int, nackCode *int32) int {
	if rc == 0 || nackCode == nil {
		return rc
	}
	if int32(rc) == *nackCode {
		return exitNackDropOther
	}
	return exitNackRequeue
}

// renderPayload implements spec 4.5 Step 1.
func renderPayload(body []byte, base64Mode bool) string {
	var msg string
	if utf8.Valid(body) {
		msg = string(body)
	}
	if base64Mode {
		return base64.StdEncoding.EncodeToString([]byte(msg))
	}
	return strings.ReplaceAll(msg, "\"", "")
}

// buildCommand implements spec 4.5 Step 2: split def.Command on spaces into
// [prog, ...argv0], then append either "--body <rendered>" or the rendered
// string split on spaces.
func buildCommand(defCommand, rendered string, base64Mode bool) (program string, args []string, human string) {
	tokens := strings.Split(defCommand, " ")
	program = tokens[0]
	args = append([]string{}, tokens[1:]...)

	if base64Mode {
		args = append(args, "--body", rendered)
		human = defCommand + " --body " + rendered
	} else {
		args = append(args, strings.Split(rendered, " ")...)
		human = defCommand + " " + rendered
	}
	return program, args, human
}

func wrapBrokerErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("dispatch: broker settle: %w", err)
}
