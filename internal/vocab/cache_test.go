package vocab

import (
	"context"
	"testing"
	"time"
)

// countingStore counts how many lookups reach the backing store.
type countingStore struct {
	inner ConceptStore
	calls int
}

func (c *countingStore) LookupByCode(ctx context.Context, vocabulary, code string) (int64, bool, error) {
	c.calls++
	return c.inner.LookupByCode(ctx, vocabulary, code)
}

func (c *countingStore) LookupByName(ctx context.Context, vocabulary, name string) (int64, bool, error) {
	c.calls++
	return c.inner.LookupByName(ctx, vocabulary, name)
}

func (c *countingStore) MapsTo(ctx context.Context, sourceConceptID int64) (int64, bool, error) {
	c.calls++
	return c.inner.MapsTo(ctx, sourceConceptID)
}

func TestCachedStore_MemoizesHitsAndMisses(t *testing.T) {
	counting := &countingStore{inner: testStore()}
	cached := NewCachedStore(counting, time.Minute, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, found, err := cached.LookupByCode(ctx, "ICD10CM", "I10")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !found || id != 1001 {
			t.Fatalf("expected concept 1001, got %d (found=%v)", id, found)
		}
	}
	if counting.calls != 1 {
		t.Errorf("expected 1 backing call after repeats, got %d", counting.calls)
	}

	// A miss is memoized too.
	for i := 0; i < 3; i++ {
		if _, found, err := cached.LookupByCode(ctx, "ICD10CM", "nope"); err != nil || found {
			t.Fatalf("expected clean miss, got found=%v err=%v", found, err)
		}
	}
	if counting.calls != 2 {
		t.Errorf("expected 2 backing calls total, got %d", counting.calls)
	}
}

func TestCachedStore_KeysDoNotCollide(t *testing.T) {
	cached := NewCachedStore(testStore(), time.Minute, time.Minute)
	ctx := context.Background()

	// Same value through code and name lookups must stay independent.
	if _, found, _ := cached.LookupByCode(ctx, "BPS", "hipertension arterial"); found {
		t.Error("code lookup must not match a concept name")
	}
	id, found, err := cached.LookupByName(ctx, "BPS", "hipertension arterial")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || id != 2001 {
		t.Errorf("expected concept 2001 by name, got %d (found=%v)", id, found)
	}
}
