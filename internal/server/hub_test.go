package server

import (
	"testing"
	"time"
)

func TestHub_AddDeliverRemove(t *testing.T) {
	h := NewHub()

	ch, remove := h.Add("s1")
	defer remove()

	// Unknown session is a silent no-op.
	h.Deliver("ghost", []byte("nobody home"))
	select {
	case <-ch:
		t.Fatalf("unexpected delivery for unknown session")
	case <-time.After(50 * time.Millisecond):
		// ok
	}

	h.Deliver("s1", []byte("hello"))
	select {
	case got := <-ch:
		if string(got) != "hello" {
			t.Fatalf("unexpected payload: got=%q want=%q", got, "hello")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timed out waiting for delivery")
	}

	// Remove should close the channel.
	remove()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected channel to be closed after remove")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timed out waiting for channel close")
	}

	if h.Count() != 0 {
		t.Fatalf("expected empty hub, got %d", h.Count())
	}
}

func TestHub_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub()
	ch, remove := h.Add("s1")
	defer remove()

	// Overfill the queue with nobody draining; delivery must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Deliver("s1", []byte("x"))
		}
		close(done)
	}()
	select {
	case <-done:
		// ok
	case <-time.After(2 * time.Second):
		t.Fatalf("delivery blocked on a full queue")
	}

	// The queued prefix is still intact.
	select {
	case got := <-ch:
		if string(got) != "x" {
			t.Fatalf("unexpected payload %q", got)
		}
	default:
		t.Fatalf("expected at least one queued payload")
	}
}

func TestHub_ReaddAfterRemoveGetsFreshQueue(t *testing.T) {
	h := NewHub()

	_, remove := h.Add("s1")
	remove()

	ch2, remove2 := h.Add("s1")
	defer remove2()

	// A stale remove from the first registration must not tear down
	// the second one.
	remove()

	h.Deliver("s1", []byte("still here"))
	select {
	case got := <-ch2:
		if string(got) != "still here" {
			t.Fatalf("unexpected payload %q", got)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timed out waiting for delivery on re-added session")
	}
}

func TestHub_DeliverDuringRemoveDoesNotPanic(t *testing.T) {
	for i := 0; i < 50; i++ {
		h := NewHub()
		ch, remove := h.Add("s1")

		// Drain so deliveries keep flowing until the close.
		go func() {
			for range ch {
			}
		}()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 200; j++ {
				h.Deliver("s1", []byte("x"))
			}
		}()
		remove()

		select {
		case <-done:
			// ok
		case <-time.After(2 * time.Second):
			t.Fatalf("delivery did not finish after remove")
		}
	}
}
