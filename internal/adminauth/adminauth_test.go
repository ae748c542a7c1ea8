package adminauth

import "testing"

func TestHashAndCheckRoundTrip(t *testing.T) {
	hash, err := HashToken("s3cret")
	if err != nil {
		t.Fatalf("HashToken: %v", err)
	}
	if !CheckToken(hash, "s3cret") {
		t.Fatalf("expected matching token to check out")
	}
	if CheckToken(hash, "wrong") {
		t.Fatalf("expected mismatched token to fail")
	}
}

func TestGateClosedWithoutConfiguredToken(t *testing.T) {
	g := NewGate("")
	if g.Enabled() {
		t.Fatalf("expected gate to be disabled with no hash configured")
	}
	if g.Authorize("anything") {
		t.Fatalf("expected Authorize to deny when disabled")
	}
}

func TestGateAuthorizesConfiguredToken(t *testing.T) {
	hash, _ := HashToken("opentoken")
	g := NewGate(hash)
	if !g.Enabled() {
		t.Fatalf("expected gate to be enabled")
	}
	if !g.Authorize("opentoken") {
		t.Fatalf("expected matching token to authorize")
	}
	if g.Authorize("nope") {
		t.Fatalf("expected mismatched token to be denied")
	}
}
