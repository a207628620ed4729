package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestQueue_PreservesOrder(t *testing.T) {
	q := New[int]()

	// Put must not block even though nobody is reading yet.
	for i := 0; i < 1000; i++ {
		if err := q.Put(i); err != nil {
			t.Fatalf("Put(%d) error = %v", i, err)
		}
	}
	q.Close()

	want := 0
	for v := range q.Out() {
		if v != want {
			t.Fatalf("got %d, want %d", v, want)
		}
		want++
		q.Done()
	}
	if want != 1000 {
		t.Errorf("received %d items, want 1000", want)
	}
}

func TestQueue_PutAfterClose(t *testing.T) {
	q := New[string]()
	q.Close()
	q.Close()

	if err := q.Put("x"); !errors.Is(err, ErrClosed) {
		t.Errorf("Put after Close error = %v, want ErrClosed", err)
	}
	if _, ok := <-q.Out(); ok {
		t.Error("Out should be closed on an empty closed queue")
	}
}

func TestQueue_Join(t *testing.T) {
	q := New[int]()
	defer q.Close()

	// Join on an empty queue returns immediately.
	if err := q.Join(context.Background()); err != nil {
		t.Fatalf("Join on empty queue: %v", err)
	}

	for i := 0; i < 3; i++ {
		q.Put(i)
	}

	joined := make(chan error, 1)
	go func() {
		joined <- q.Join(context.Background())
	}()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, ok := q.Get(ctx); !ok {
			t.Fatal("Get returned !ok")
		}
		select {
		case <-joined:
			t.Fatalf("Join returned with %d items outstanding", 3-i)
		case <-time.After(10 * time.Millisecond):
		}
		q.Done()
	}

	select {
	case err := <-joined:
		if err != nil {
			t.Errorf("Join error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Join did not return after all items were acknowledged")
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

func TestQueue_JoinContext(t *testing.T) {
	q := New[int]()
	defer q.Close()
	q.Put(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Join(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Join error = %v, want deadline exceeded", err)
	}
}

func TestQueue_GetContext(t *testing.T) {
	q := New[int]()
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := q.Get(ctx); ok {
		t.Error("Get on cancelled context should return !ok")
	}
}

func TestQueue_DonePanicsWhenUnbalanced(t *testing.T) {
	q := New[int]()
	defer q.Close()
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	q.Done()
}

func TestQueue_Discard(t *testing.T) {
	q := New[int]()
	for i := 0; i < 5; i++ {
		if err := q.Put(i); err != nil {
			t.Fatal(err)
		}
	}

	v, ok := q.Get(context.Background())
	if !ok || v != 0 {
		t.Fatalf("Get() = %d, %v", v, ok)
	}

	q.Discard()
	q.Done() // acknowledging after Discard is harmless

	for range q.Out() {
		// the pump may still hand over a few items before it stops
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := q.Join(ctx); err != nil {
		t.Errorf("Join() after Discard = %v", err)
	}
	if err := q.Put(9); !errors.Is(err, ErrClosed) {
		t.Errorf("Put() after Discard = %v, want ErrClosed", err)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

func TestQueue_Observe(t *testing.T) {
	q := New[int]()
	defer q.Discard()

	var depths []int
	q.Observe(func(depth int) { depths = append(depths, depth) })

	for i := 0; i < 3; i++ {
		if err := q.Put(i); err != nil {
			t.Fatalf("Put(%d) error = %v", i, err)
		}
	}
	<-q.Out()
	q.Done()

	want := []int{0, 1, 2, 3, 2}
	if len(depths) != len(want) {
		t.Fatalf("observed %v, want %v", depths, want)
	}
	for i := range want {
		if depths[i] != want[i] {
			t.Fatalf("observed %v, want %v", depths, want)
		}
	}

	q.Discard()
	if got := depths[len(depths)-1]; got != 0 {
		t.Errorf("depth after Discard = %d, want 0", got)
	}
}
