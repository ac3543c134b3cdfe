package session

import "testing"

// Coverage here is limited to the pure key-building logic (spec §4.6 key
// layout): exercising the read/write methods needs a live Redis server.

func TestKeyLayout(t *testing.T) {
	s := &Store{prefix: "biomaj"}

	cases := []struct {
		name string
		got  string
		want string
	}{
		{"alive", s.aliveKey("bank1", "sid1"), "biomaj:bank1:session:sid1"},
		{"progress", s.progressKey("bank1", "sid1"), "biomaj:bank1:session:sid1:progress"},
		{"error", s.errorKey("bank1", "sid1"), "biomaj:bank1:session:sid1:error"},
		{"error info", s.errorInfoKey("bank1", "sid1"), "biomaj:bank1:session:sid1:error:info"},
		{"files", s.filesKey("bank1", "sid1"), "biomaj:bank1:session:sid1:files"},
		{"cancel", s.cancelKey("bank1"), "biomaj:bank1:action:cancel"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s key = %q, want %q", c.name, c.got, c.want)
		}
	}
}

func TestKeysScopedByBankAndSession(t *testing.T) {
	s := &Store{prefix: "biomaj"}

	if s.aliveKey("bankA", "sid1") == s.aliveKey("bankB", "sid1") {
		t.Error("aliveKey should differ across banks")
	}
	if s.aliveKey("bankA", "sid1") == s.aliveKey("bankA", "sid2") {
		t.Error("aliveKey should differ across sessions")
	}
}
