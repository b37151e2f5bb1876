// Package supervisor implements the Supervisor (spec C7) and the outer
// client state machine described in spec 4.8, composing the Connection
// Manager, Worker Loop, and Reconnect Waiter.
package supervisor

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/facile-ops/queuerunner/internal/broker"
	"github.com/facile-ops/queuerunner/internal/dispatch"
	"github.com/facile-ops/queuerunner/internal/domain"
	"github.com/facile-ops/queuerunner/internal/registry"
	"github.com/facile-ops/queuerunner/internal/worker"
)

// ErrEmptyQueueList is returned when the registry reports no queues to
// consume — spec.md §7 treats this as a fatal programmer/ops error.
var ErrEmptyQueueList = errors.New("supervisor: empty queue list")

// Status is the Supervisor's terminal result.
type Status int

const (
	Exit Status = iota
	Restart
	Killed
)

func (s Status) String() string {
	switch s {
	case Restart:
		return "Restart"
	case Killed:
		return "Killed"
	default:
		return "Exit"
	}
}

// Supervisor composes the Connection Manager, the Channel Factory, and the
// Worker Loop fan-out, racing them against OS signal receivers.
type Supervisor struct {
	Conn        *broker.ConnectionManager
	Registry    registry.Registry
	Dispatcher  *dispatch.Dispatcher
	Logger      *zap.Logger
	QueuePrefix string
	Waiter      *Waiter
}

type workerResult struct {
	status Status
	err    error
}

// Run implements spec 4.7: obtain a connection, notify the Waiter, fan out
// one Worker Loop per (queue, worker_index), and race them against signal
// receivers. The first completion determines the return value.
func (s *Supervisor) Run(ctx context.Context) (Status, error) {
	conn, err := s.Conn.Get()
	if err != nil {
		return Exit, err
	}
	s.Waiter.OnConnect()
	s.Logger.Info("connected to broker")

	defs, err := s.Registry.List()
	if err != nil {
		return Exit, err
	}
	if len(defs) == 0 {
		return Exit, ErrEmptyQueueList
	}

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan workerResult, 1)
	publish := func(r workerResult) {
		select {
		case results <- r:
		default:
		}
	}

	var wg sync.WaitGroup
	for _, def := range defs {
		def := def
		for i := 0; i < int(def.Count); i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				publish(s.runWorker(workerCtx, conn, def, i))
			}()
		}
	}

	sigCh := make(chan os.Signal, 3)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			publish(workerResult{status: Killed})
		case <-workerCtx.Done():
		}
	}()

	res := <-results
	cancel()
	wg.Wait()
	return res.status, res.err
}

// runWorker opens this worker's channel and runs its loop to completion,
// translating the Worker Loop's status vocabulary into the Supervisor's.
func (s *Supervisor) runWorker(ctx context.Context, conn *amqp.Connection, def domain.QueueDefinition, workerIndex int) workerResult {
	ch, queueName, err := broker.OpenChannel(conn, def, s.QueuePrefix)
	if err != nil {
		return workerResult{status: Exit, err: err}
	}
	defer ch.Close()

	w := &worker.Worker{Registry: s.Registry, Dispatcher: s.Dispatcher, Logger: s.Logger}
	status, err := w.Run(ctx, workerIndex, def, ch, queueName)
	if err != nil {
		return workerResult{status: Exit, err: err}
	}

	switch status {
	case worker.Killed:
		return workerResult{status: Killed}
	case worker.ConsumerChanged, worker.CountChanged:
		return workerResult{status: Restart}
	default:
		return workerResult{status: Exit}
	}
}
