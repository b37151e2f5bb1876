// Package broker wraps the amqp091-go client with the lazy, idempotent
// Connection Manager (spec C3) and the per-worker Channel Factory (C4).
package broker

import (
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/facile-ops/queuerunner/internal/domain"
)

// ErrNotConnected classifies a connection error that never got as far as
// attempting the wire handshake — distinguished from BrokerError per spec §4.3.
var ErrNotConnected = errors.New("broker: not connected")

// BrokerError wraps a wire-level failure reported by the client library.
type BrokerError struct {
	Err error
}

func (e *BrokerError) Error() string { return fmt.Sprintf("broker: %v", e.Err) }
func (e *BrokerError) Unwrap() error { return e.Err }

// Endpoint describes how to reach the broker.
type Endpoint struct {
	Host     string
	Port     int
	Username string
	Password string
	Vhost    string
}

// URL renders the amqp091 connection URI.
func (e Endpoint) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s", e.Username, e.Password, e.Host, e.Port, e.Vhost)
}

// ConnectionManager lazily opens a single shared *amqp.Connection and
// re-establishes it whenever the cached handle reports itself closed.
type ConnectionManager struct {
	endpoint Endpoint

	mu   sync.Mutex
	conn *amqp.Connection
}

// NewConnectionManager builds a ConnectionManager; it does not connect
// eagerly.
func NewConnectionManager(endpoint Endpoint) *ConnectionManager {
	return &ConnectionManager{endpoint: endpoint}
}

// Get returns the cached connection if it is healthy, or dials a fresh one.
func (c *ConnectionManager) Get() (*amqp.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn, nil
	}

	conn, err := amqp.Dial(c.endpoint.URL())
	if err != nil {
		return nil, &BrokerError{Err: err}
	}
	c.conn = conn
	return conn, nil
}

// Close releases the cached connection, if any.
func (c *ConnectionManager) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// OpenChannel implements the Channel Factory (C4): a fresh channel with
// QoS set to the definition's prefetch count, declaring the prefixed
// durable queue. Returns the channel and the fully-qualified queue name.
func OpenChannel(conn *amqp.Connection, def domain.QueueDefinition, prefix string) (*amqp.Channel, string, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, "", &BrokerError{Err: err}
	}

	if err := ch.Qos(int(def.Prefetch()), 0, false); err != nil {
		ch.Close()
		return nil, "", &BrokerError{Err: err}
	}

	queueName := prefix + def.QueueName
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, "", &BrokerError{Err: err}
	}

	return ch, queueName, nil
}
