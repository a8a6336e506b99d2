package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestUUIDv7(t *testing.T) {
	gen := UUIDv7()
	a, b := gen(), gen()
	if a == b {
		t.Fatal("duplicate ids")
	}
	u, err := uuid.Parse(a)
	if err != nil {
		t.Fatalf("not a uuid: %v", err)
	}
	if u.Version() != 7 {
		t.Errorf("version: got %d, want 7", u.Version())
	}
	if a >= b {
		t.Errorf("not time-sortable: %s >= %s", a, b)
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("sess_", UUIDv7())()
	if !strings.HasPrefix(id, "sess_") {
		t.Errorf("got %q", id)
	}
}

func TestSequence(t *testing.T) {
	gen := Sequence("s")
	if gen() != "s1" || gen() != "s2" {
		t.Error("sequence out of order")
	}
}
