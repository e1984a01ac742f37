package internal

import "testing"

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

func TestUniqueToken(t *testing.T) {
	token, err := UniqueToken(1, "seed")
	if err != nil {
		t.Fatalf("unique token: %v", err)
	}
	if len(token) != 64 || !isHex(token) {
		t.Errorf("token = %q, want 64 lowercase hex chars", token)
	}
}

func TestUniqueTokenNeverRepeats(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 256; i++ {
		// Identical serial and seed on purpose: uniqueness must come
		// from the random block alone.
		token, err := UniqueToken(7, "same")
		if err != nil {
			t.Fatalf("unique token: %v", err)
		}
		if seen[token] {
			t.Fatalf("token %q repeated", token)
		}
		seen[token] = true
	}
}

func TestSessionID(t *testing.T) {
	id := SessionID("some token")
	if len(id) != 32 || !isHex(id) {
		t.Errorf("session id = %q, want 32 lowercase hex chars", id)
	}
	if SessionID("some token") != id {
		t.Error("session id not deterministic for the same token")
	}
	if SessionID("other token") == id {
		t.Error("distinct tokens mapped to the same session id")
	}
}

func TestKeyHash(t *testing.T) {
	hash := KeyHash("plaintext key")
	if len(hash) != 64 || !isHex(hash) {
		t.Errorf("key hash = %q, want 64 lowercase hex chars", hash)
	}
	if KeyHash("plaintext key") != hash {
		t.Error("key hash not deterministic")
	}
	if KeyHash("plaintext key") == KeyHash("other key") {
		t.Error("distinct plaintexts mapped to the same hash")
	}
}
