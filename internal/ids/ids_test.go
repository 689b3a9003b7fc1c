package ids

import (
	"testing"
	"time"
)

func TestNewIsSortableAndValid(t *testing.T) {
	a := New()
	b := New()
	if a >= b {
		t.Fatalf("expected monotonic ids, got %s then %s", a, b)
	}
	if !Valid(a) || !Valid(b) {
		t.Fatalf("generated ids should be valid: %s %s", a, b)
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "not-a-ulid-not-a-ulid-not-a", "ZZZZZZZZZZZZZZZZZZZZZZZZZZ"} {
		if Valid(in) {
			t.Fatalf("expected %q to be rejected", in)
		}
	}
}

func TestTimeRoundTrip(t *testing.T) {
	before := time.Now().Add(-time.Second)
	id := New()
	ts, ok := Time(id)
	if !ok {
		t.Fatalf("expected timestamp for %s", id)
	}
	if ts.Before(before) {
		t.Fatalf("timestamp %v is older than %v", ts, before)
	}
}
