package ids

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestNewIsSortable(t *testing.T) {
	a := New()
	b := New()
	if a == "" || b == "" {
		t.Fatal("expected non-empty ids")
	}
	if a >= b {
		t.Fatalf("expected %s < %s", a, b)
	}
}

func TestNewAtEncodesTime(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id := NewAt(at)
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		t.Fatalf("expected parsable id %q: %v", id, err)
	}
	if got := ulid.Time(parsed.Time()); !got.Equal(at) {
		t.Fatalf("time = %v, want %v", got, at)
	}
}
