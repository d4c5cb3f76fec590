package worker

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
)

func TestMapPreservesOrder(t *testing.T) {
	items := []int{5, 3, 8, 1, 9, 2, 7}

	got, err := Map(context.Background(), 3, items, func(_ context.Context, n int) (string, error) {
		return strconv.Itoa(n * 10), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(items) {
		t.Fatalf("got %d results, want %d", len(got), len(items))
	}
	for i, n := range items {
		if want := strconv.Itoa(n * 10); got[i] != want {
			t.Errorf("result %d = %q, want %q", i, got[i], want)
		}
	}
}

func TestMapFirstErrorWins(t *testing.T) {
	boom := errors.New("boom")
	items := []int{1, 2, 3, 4, 5}

	var calls int32
	_, err := Map(context.Background(), 2, items, func(_ context.Context, n int) (int, error) {
		atomic.AddInt32(&calls, 1)
		if n == 3 {
			return 0, boom
		}
		return n, nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if atomic.LoadInt32(&calls) > int32(len(items)) {
		t.Errorf("fn called %d times for %d items", calls, len(items))
	}
}

func TestMapEmptyAndWorkerClamp(t *testing.T) {
	got, err := Map(context.Background(), 0, nil, func(_ context.Context, n int) (int, error) {
		return n, nil
	})
	if err != nil || got != nil {
		t.Errorf("empty input: %v, %v", got, err)
	}

	// More workers than items is fine.
	got, err = Map(context.Background(), 16, []int{1}, func(_ context.Context, n int) (int, error) {
		return n + 1, nil
	})
	if err != nil || len(got) != 1 || got[0] != 2 {
		t.Errorf("clamped run: %v, %v", got, err)
	}
}

func TestMapHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Map(ctx, 2, []int{1, 2, 3}, func(ctx context.Context, n int) (int, error) {
		return n, ctx.Err()
	})
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
