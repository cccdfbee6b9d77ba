package lifecycle

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type fakeComponent struct {
	name     string
	startErr error
	stopErr  error
	trace    *[]string
	stops    int
}

func (c *fakeComponent) Start(_ context.Context) error {
	*c.trace = append(*c.trace, "start:"+c.name)
	return c.startErr
}

func (c *fakeComponent) Stop(_ context.Context) error {
	c.stops++
	*c.trace = append(*c.trace, "stop:"+c.name)
	return c.stopErr
}

func TestRuntimeStopsInReverseStartOrder(t *testing.T) {
	t.Parallel()

	trace := make([]string, 0, 6)
	r := NewRuntime(
		&fakeComponent{name: "db", trace: &trace},
		&fakeComponent{name: "dispatcher", trace: &trace},
		&fakeComponent{name: "gateway", trace: &trace},
	)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{
		"start:db", "start:dispatcher", "start:gateway",
		"stop:gateway", "stop:dispatcher", "stop:db",
	}
	if !reflect.DeepEqual(trace, want) {
		t.Fatalf("order: got %v want %v", trace, want)
	}
}

func TestRuntimeRollsBackOnStartFailure(t *testing.T) {
	t.Parallel()

	trace := make([]string, 0, 4)
	boom := errors.New("boom")
	first := &fakeComponent{name: "first", trace: &trace}
	broken := &fakeComponent{name: "broken", trace: &trace, startErr: boom}
	never := &fakeComponent{name: "never", trace: &trace}

	r := NewRuntime(first, broken, never)
	err := r.Start(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("start error: %v", err)
	}
	if first.stops != 1 {
		t.Fatalf("first stops: %d", first.stops)
	}
	if broken.stops != 0 || never.stops != 0 {
		t.Fatalf("unexpected stops: broken=%d never=%d", broken.stops, never.stops)
	}
}

func TestRuntimeCollectsStopErrors(t *testing.T) {
	t.Parallel()

	trace := make([]string, 0, 4)
	stopErr := errors.New("wedged")
	r := NewRuntime(
		&fakeComponent{name: "ok", trace: &trace},
		&fakeComponent{name: "bad", trace: &trace, stopErr: stopErr},
	)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	err := r.Stop(context.Background())
	if !errors.Is(err, stopErr) {
		t.Fatalf("stop error: %v", err)
	}
}
