package events_test

import (
	"testing"

	"github.com/ardanlabs/forkchain/foundation/events"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Events(t *testing.T) {
	t.Log("Given the need to fan out events to registered receivers.")
	{
		evts := events.New()

		ch1 := evts.Acquire("1")
		ch2 := evts.Acquire("2")
		if evts.Acquire("1") != ch1 {
			t.Fatalf("\t%s\tShould get the same channel for the same id.", failed)
		}
		t.Logf("\t%s\tShould get the same channel for the same id.", success)

		var logged []string
		ev := evts.Handler(func(s string) { logged = append(logged, s) })
		ev("block %d: %s", 1, "canonical")

		for i, ch := range []chan string{ch1, ch2} {
			if got := <-ch; got != "block 1: canonical" {
				t.Fatalf("\t%s\tShould receive the event on receiver %d: got %q", failed, i, got)
			}
		}
		t.Logf("\t%s\tShould receive the event on every receiver.", success)

		if len(logged) != 1 || logged[0] != "block 1: canonical" {
			t.Fatalf("\t%s\tShould log the formatted event: got %v", failed, logged)
		}
		t.Logf("\t%s\tShould log the formatted event.", success)

		for range 200 {
			evts.Send("flood")
		}
		t.Logf("\t%s\tShould not block when a receiver falls behind.", success)

		if err := evts.Release("1"); err != nil {
			t.Fatalf("\t%s\tShould be able to release a receiver: %v", failed, err)
		}
		if err := evts.Release("1"); err == nil {
			t.Fatalf("\t%s\tShould not be able to release a receiver twice.", failed)
		}
		t.Logf("\t%s\tShould be able to release a receiver once.", success)

		evts.Shutdown()
		if evts.Len() != 0 {
			t.Fatalf("\t%s\tShould have no receivers after shutdown: got %d", failed, evts.Len())
		}

		for range ch2 {
		}
		t.Logf("\t%s\tShould close every receiver on shutdown.", success)
	}
}
