package worker

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/facile-ops/queuerunner/internal/dispatch"
	"github.com/facile-ops/queuerunner/internal/domain"
	"github.com/facile-ops/queuerunner/internal/wait"
)

type mockRegistry struct {
	def domain.QueueDefinition
	ok  bool
}

func (m *mockRegistry) List() ([]domain.QueueDefinition, error) { return []domain.QueueDefinition{m.def}, nil }
func (m *mockRegistry) Lookup(id int32) (domain.QueueDefinition, bool) {
	return m.def, m.ok
}

type mockChannel struct {
	cancelCalled  bool
	recoverCalled bool
	cancelErr     error
	recoverErr    error
	ackd          []uint64
	rejected      []uint64
}

func (m *mockChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return nil, nil
}
func (m *mockChannel) Ack(tag uint64, multiple bool) error {
	m.ackd = append(m.ackd, tag)
	return nil
}
func (m *mockChannel) Reject(tag uint64, requeue bool) error {
	m.rejected = append(m.rejected, tag)
	return nil
}
func (m *mockChannel) Cancel(consumer string, noWait bool) error {
	m.cancelCalled = true
	return m.cancelErr
}
func (m *mockChannel) Recover(requeue bool) error {
	m.recoverCalled = true
	return m.recoverErr
}

func baseDef() domain.QueueDefinition {
	return domain.QueueDefinition{ID: 1, QueueName: "orders", ConsumerName: "orders", Command: "/bin/true", Count: 2, Enabled: true, RetryMode: domain.RetryIgnored}
}

func newTestWorker(reg *mockRegistry) *Worker {
	logger := zap.NewNop()
	d := dispatch.NewDispatcher(wait.NewScheduler(), logger)
	return &Worker{Registry: reg, Dispatcher: d, Logger: logger}
}

// Scenario G: queue disabled mid-stream and count unchanged drains and recovers.
func TestHandleDelivery_DisabledUnchangedCount_DrainsAndRecovers(t *testing.T) {
	def := baseDef()
	reg := &mockRegistry{def: func() domain.QueueDefinition { d := def; d.Enabled = false; return d }(), ok: true}
	w := newTestWorker(reg)
	ch := &mockChannel{}

	status, terminal, err := w.handleDelivery(context.Background(), 0, def, ch, "orders_consumer_0", amqp.Delivery{Body: []byte("x")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !terminal {
		t.Fatal("expected terminal=true")
	}
	if status != ConsumerChanged {
		t.Fatalf("expected ConsumerChanged after successful drain+recover, got %s", status)
	}
	if !ch.cancelCalled || !ch.recoverCalled {
		t.Fatal("expected both Cancel and Recover to be called")
	}
}

// Scenario H: queue count changed returns CountChanged regardless of enabled state.
func TestHandleDelivery_CountChanged_ReturnsCountChanged(t *testing.T) {
	def := baseDef()
	changed := def
	changed.Count = 5 // registry now reports a different count than observed
	reg := &mockRegistry{def: changed, ok: true}
	w := newTestWorker(reg)
	ch := &mockChannel{}

	status, terminal, err := w.handleDelivery(context.Background(), 0, def, ch, "orders_consumer_0", amqp.Delivery{Body: []byte("x")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !terminal || status != CountChanged {
		t.Fatalf("expected terminal CountChanged, got terminal=%v status=%s", terminal, status)
	}
	if ch.cancelCalled {
		t.Fatal("expected no drain attempt when count changed while still enabled")
	}
}

// Unchanged + enabled dispatches the delivery and continues the loop.
func TestHandleDelivery_UnchangedEnabled_DispatchesAndContinues(t *testing.T) {
	def := baseDef()
	reg := &mockRegistry{def: def, ok: true}
	w := newTestWorker(reg)
	ch := &mockChannel{}

	status, terminal, err := w.handleDelivery(context.Background(), 0, def, ch, "orders_consumer_0", amqp.Delivery{Body: []byte("x"), DeliveryTag: 9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if terminal {
		t.Fatalf("expected non-terminal, got status=%s", status)
	}
	if len(ch.ackd) != 1 || ch.ackd[0] != 9 {
		t.Fatalf("expected dispatch to ack tag 9 under ignored retry mode, got %+v", ch.ackd)
	}
}

// Queue disappearing from the registry entirely counts as changed.
func TestHandleDelivery_QueueGone_CountsAsChanged(t *testing.T) {
	def := baseDef()
	reg := &mockRegistry{ok: false}
	w := newTestWorker(reg)
	ch := &mockChannel{}

	status, terminal, err := w.handleDelivery(context.Background(), 0, def, ch, "orders_consumer_0", amqp.Delivery{Body: []byte("x")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !terminal || status != CountChanged {
		t.Fatalf("expected terminal CountChanged when queue vanished, got terminal=%v status=%s", terminal, status)
	}
}

func TestDrainAndRecover_CancelFailure_ReturnsGenericOk(t *testing.T) {
	w := newTestWorker(&mockRegistry{})
	ch := &mockChannel{cancelErr: context.DeadlineExceeded}

	if status := w.drainAndRecover(ch, "tag"); status != GenericOk {
		t.Fatalf("expected GenericOk on cancel failure, got %s", status)
	}
	if ch.recoverCalled {
		t.Fatal("expected Recover not to be called after Cancel failed")
	}
}
