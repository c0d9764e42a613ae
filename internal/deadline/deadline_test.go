package deadline

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

func TestScheduleFiresOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := NewService(clock, zerolog.Nop())

	fired := make(chan struct{}, 2)
	svc.Schedule("s1", 10*time.Second, func() { fired <- struct{}{} })

	clock.BlockUntil(1)
	clock.Advance(10 * time.Second)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("deadline did not fire")
	}

	clock.Advance(time.Minute)
	select {
	case <-fired:
		t.Fatal("deadline fired twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelSuppressesCallback(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := NewService(clock, zerolog.Nop())

	fired := make(chan struct{}, 1)
	svc.Schedule("s1", 10*time.Second, func() { fired <- struct{}{} })
	clock.BlockUntil(1)
	svc.Cancel("s1")

	clock.Advance(time.Minute)
	select {
	case <-fired:
		t.Fatal("cancelled deadline fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := NewService(clock, zerolog.Nop())

	svc.Schedule("s1", time.Second, func() {})
	clock.BlockUntil(1)
	svc.Cancel("s1")
	svc.Cancel("s1")
	svc.Cancel("never-scheduled")
}

func TestRescheduleReplacesDeadline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := NewService(clock, zerolog.Nop())

	fired := make(chan string, 2)
	svc.Schedule("s1", 5*time.Second, func() { fired <- "first" })
	clock.BlockUntil(1)
	svc.Schedule("s1", 20*time.Second, func() { fired <- "second" })
	clock.BlockUntil(1)

	// Past the first deadline: the replaced callback must stay silent.
	clock.Advance(10 * time.Second)
	select {
	case who := <-fired:
		t.Fatalf("unexpected fire from %s", who)
	case <-time.After(50 * time.Millisecond):
	}

	clock.Advance(10 * time.Second)
	select {
	case who := <-fired:
		if who != "second" {
			t.Fatalf("expected second deadline, got %s", who)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("replacement deadline did not fire")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := NewService(clock, zerolog.Nop())

	fired := make(chan string, 2)
	svc.Schedule("a", 5*time.Second, func() { fired <- "a" })
	svc.Schedule("b", 5*time.Second, func() { fired <- "b" })
	clock.BlockUntil(2)
	svc.Cancel("a")

	clock.Advance(5 * time.Second)
	select {
	case who := <-fired:
		if who != "b" {
			t.Fatalf("expected only b to fire, got %s", who)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("deadline for b did not fire")
	}
}
