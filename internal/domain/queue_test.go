package domain_test

import (
	"testing"
	"time"

	"github.com/facile-ops/queuerunner/internal/domain"
)

func ptrU64(v uint64) *uint64 { return &v }
func ptrInt(v int) *int       { return &v }
func ptrU16(v uint16) *uint16 { return &v }

func TestCommandTimeoutMS_Default(t *testing.T) {
	d := domain.QueueDefinition{}
	want := domain.DefaultCommandTimeoutSeconds * 60 * 1000
	if got := d.CommandTimeoutMS(); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestCommandTimeoutMS_Configured(t *testing.T) {
	d := domain.QueueDefinition{CommandTimeout: ptrU64(2)}
	if got := d.CommandTimeoutMS(); got != 2*60*1000 {
		t.Fatalf("expected %d, got %d", 2*60*1000, got)
	}
}

func TestPrefetch_DefaultsToOne(t *testing.T) {
	d := domain.QueueDefinition{}
	if got := d.Prefetch(); got != 1 {
		t.Fatalf("expected default prefetch 1, got %d", got)
	}
}

func TestPrefetch_Configured(t *testing.T) {
	d := domain.QueueDefinition{PrefetchCount: ptrU16(5)}
	if got := d.Prefetch(); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
}

func TestEnabledAt_DisabledAlwaysFalse(t *testing.T) {
	d := domain.QueueDefinition{Enabled: false}
	if d.EnabledAt(time.Now()) {
		t.Fatal("expected disabled definition to report not enabled regardless of time")
	}
}

func TestEnabledAt_NoWindowMeansAlwaysOn(t *testing.T) {
	d := domain.QueueDefinition{Enabled: true}
	if !d.EnabledAt(time.Now()) {
		t.Fatal("expected enabled definition with no hour window to be always on")
	}
}

func TestEnabledAt_WindowBoundaries(t *testing.T) {
	d := domain.QueueDefinition{Enabled: true, StartMinute: ptrInt(9 * 60), EndMinute: ptrInt(17 * 60)}

	at := func(hour, minute int) time.Time {
		return time.Date(2026, 7, 31, hour, minute, 0, 0, time.Local)
	}

	if !d.EnabledAt(at(9, 0)) {
		t.Fatal("expected start boundary (inclusive) to be enabled")
	}
	if !d.EnabledAt(at(17, 0)) {
		t.Fatal("expected end boundary (inclusive) to be enabled")
	}
	if d.EnabledAt(at(8, 59)) {
		t.Fatal("expected one minute before window to be disabled")
	}
	if d.EnabledAt(at(17, 1)) {
		t.Fatal("expected one minute after window to be disabled")
	}
}

func TestConsumerTag(t *testing.T) {
	d := domain.QueueDefinition{ConsumerName: "orders"}
	if got := d.ConsumerTag(3); got != "orders_consumer_3" {
		t.Fatalf("unexpected consumer tag: %s", got)
	}
}

func TestParseRetryMode(t *testing.T) {
	cases := map[string]domain.RetryMode{
		"static":      domain.RetryStatic,
		"incremental": domain.RetryIncremental,
		"ignored":     domain.RetryIgnored,
		"bogus":       domain.RetryStatic,
		"":            domain.RetryStatic,
	}
	for in, want := range cases {
		if got := domain.ParseRetryMode(in); got != want {
			t.Fatalf("ParseRetryMode(%q) = %q, want %q", in, got, want)
		}
	}
}
