package auth

import "testing"

const testSecret = "test-secret"

func TestIssueAndValidateToken(t *testing.T) {
	tok, err := IssueToken(testSecret, "Ada")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	claims, err := ValidateToken(testSecret, tok)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.DisplayName != "Ada" {
		t.Errorf("DisplayName = %q, want Ada", claims.DisplayName)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	tok, _ := IssueToken(testSecret, "Ada")
	if _, err := ValidateToken("other-secret", tok); err == nil {
		t.Fatal("expected validation error with wrong secret")
	}
}

func TestResolvePeerAnonymousByDefault(t *testing.T) {
	peer := ResolvePeer(testSecret, "")
	if !peer.Anonymous || peer.ID == "" {
		t.Errorf("expected anonymous peer with an id, got %+v", peer)
	}
}

func TestResolvePeerWithValidToken(t *testing.T) {
	tok, _ := IssueToken(testSecret, "Grace")
	peer := ResolvePeer(testSecret, tok)
	if peer.Anonymous || peer.DisplayName != "Grace" {
		t.Errorf("expected named peer Grace, got %+v", peer)
	}
}

func TestResolvePeerWithInvalidTokenFallsBackToAnonymous(t *testing.T) {
	peer := ResolvePeer(testSecret, "not-a-real-token")
	if !peer.Anonymous {
		t.Errorf("expected fallback to anonymous peer, got %+v", peer)
	}
}

func TestOriginAllowed(t *testing.T) {
	if !OriginAllowed("https://example.com", []string{"*"}) {
		t.Error("wildcard allow-list should permit any origin")
	}
	if !OriginAllowed("https://app.example.com", []string{"app.example.com"}) {
		t.Error("expected exact host match to be allowed")
	}
	if OriginAllowed("https://evil.com", []string{"app.example.com"}) {
		t.Error("expected non-matching origin to be rejected")
	}
	if !OriginAllowed("", []string{"app.example.com"}) {
		t.Error("empty origin (non-browser client) should be permitted")
	}
}
