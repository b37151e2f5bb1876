package broker

import amqp "github.com/rabbitmq/amqp091-go"

// Channel is the subset of *amqp.Channel the dispatcher and worker loop
// depend on. *amqp.Channel satisfies it without modification; tests supply
// a hand-written fake (see internal/dispatch and internal/worker tests),
// following the override-function mock style used throughout this module.
type Channel interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Ack(tag uint64, multiple bool) error
	Reject(tag uint64, requeue bool) error
	Cancel(consumer string, noWait bool) error
	Recover(requeue bool) error
}

var _ Channel = (*amqp.Channel)(nil)
