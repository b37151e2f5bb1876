// Package domain holds the shared types describing a queue definition and
// its retry policy. Nothing in this package talks to the broker, the
// database, or a subprocess — it is pure data plus the small predicates the
// rest of the system is built around.
package domain

import (
	"strconv"
	"time"
)

// RetryMode selects the inter-retry delay policy applied after a
// reject-requeue outcome.
type RetryMode string

const (
	RetryStatic      RetryMode = "static"
	RetryIncremental RetryMode = "incremental"
	RetryIgnored     RetryMode = "ignored"
)

// ParseRetryMode maps a free-form string (as read from TOML or a queues
// table) onto a RetryMode, defaulting to Static for anything unrecognized —
// the same default the original config reader applied.
func ParseRetryMode(s string) RetryMode {
	switch RetryMode(s) {
	case RetryIncremental:
		return RetryIncremental
	case RetryIgnored:
		return RetryIgnored
	default:
		return RetryStatic
	}
}

const (
	// DefaultCommandTimeoutSeconds is applied when a queue definition omits
	// command_timeout.
	DefaultCommandTimeoutSeconds uint64 = 30
	// DefaultPrefetchCount is applied when a queue definition omits
	// prefetch_count.
	DefaultPrefetchCount uint16 = 1

	// timeMinuteMultiplier and timeMillisMultiplier reproduce the source's
	// "seconds are actually minutes" unit quirk for command_timeout: the
	// configured value is multiplied by 60 and then by 1000 to obtain a
	// millisecond duration. The quirk is preserved rather than silently
	// corrected.
	timeMinuteMultiplier = 60
	timeMillisMultiplier = 1000
)

// QueueDefinition is an immutable snapshot of one configured queue, as read
// from either the TOML file or the queues table.
type QueueDefinition struct {
	ID              int32
	QueueName       string
	ConsumerName    string
	Command         string
	CommandTimeout  *uint64 // seconds; nil means DefaultCommandTimeoutSeconds
	Base64          bool
	StartMinute     *int // minutes since local midnight, inclusive
	EndMinute       *int // minutes since local midnight, inclusive
	Count           int32
	NackCode        *int32
	PrefetchCount   *uint16
	RetryWaitSecond uint64
	RetryMode       RetryMode
	Enabled         bool
}

// CommandTimeoutMS returns the command's execution timeout, reproducing the
// source's minutes-as-seconds multiplication: timeout_seconds * 60 * 1000.
func (d QueueDefinition) CommandTimeoutMS() uint64 {
	secs := DefaultCommandTimeoutSeconds
	if d.CommandTimeout != nil {
		secs = *d.CommandTimeout
	}
	return secs * timeMinuteMultiplier * timeMillisMultiplier
}

// Prefetch returns the channel QoS prefetch count, defaulting to 1.
func (d QueueDefinition) Prefetch() uint16 {
	if d.PrefetchCount != nil {
		return *d.PrefetchCount
	}
	return DefaultPrefetchCount
}

// EnabledAt reports whether the definition is currently enabled, applying
// the hour-window gate when both bounds are configured.
func (d QueueDefinition) EnabledAt(now time.Time) bool {
	if !d.Enabled {
		return false
	}
	if d.StartMinute == nil || d.EndMinute == nil {
		return true
	}
	minute := now.Hour()*60 + now.Minute()
	return *d.StartMinute <= minute && minute <= *d.EndMinute
}

// ConsumerTag builds the broker-visible consumer tag for a given worker
// index, e.g. "orders_consumer_0".
func (d QueueDefinition) ConsumerTag(workerIndex int) string {
	return d.ConsumerName + "_consumer_" + strconv.Itoa(workerIndex)
}
