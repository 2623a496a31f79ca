package store

import (
	"context"
	"testing"
	"time"
)

func TestNullableTime(t *testing.T) {
	if got := nullableTime(time.Time{}); got != nil {
		t.Errorf("nullableTime(zero) = %v, want nil", got)
	}

	ts := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	got := nullableTime(ts)
	if got == nil {
		t.Fatal("nullableTime(non-zero) = nil")
	}
	if !got.(time.Time).Equal(ts) {
		t.Errorf("nullableTime = %v, want %v", got, ts)
	}
}

func TestTimeOrZero(t *testing.T) {
	if got := timeOrZero(nil); !got.IsZero() {
		t.Errorf("timeOrZero(nil) = %v, want zero", got)
	}

	ts := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	if got := timeOrZero(&ts); !got.Equal(ts) {
		t.Errorf("timeOrZero = %v, want %v", got, ts)
	}
}

func TestPostgresStoreSaveEmptyIsNoOp(t *testing.T) {
	// An empty snapshot must not touch the database at all.
	s := NewPostgresStore(nil, nil)
	if err := s.Save(context.Background(), nil); err != nil {
		t.Errorf("Save(nil) = %v, want nil", err)
	}
}
