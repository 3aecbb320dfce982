package sandbox

import "testing"

func TestDefaultAllowlist_AllowsKnownIntegrations(t *testing.T) {
	a := DefaultAllowlist()
	for _, url := range []string{
		"https://api.stripe.com/v1/charges",
		"https://api.twilio.com/2010-04-01/Messages",
	} {
		if !a.IsAllowed(url) {
			t.Fatalf("expected %s to be allowed by default", url)
		}
	}
}

func TestAllowlist_RejectsUnlistedDestination(t *testing.T) {
	a := DefaultAllowlist()
	if a.IsAllowed("https://evil.example.com/steal") {
		t.Fatal("expected unlisted destination to be rejected")
	}
}

func TestAllowlist_AllowAddsNewPrefix(t *testing.T) {
	a := &Allowlist{}
	if a.IsAllowed("https://internal.example.com/webhook") {
		t.Fatal("expected empty allowlist to reject everything")
	}
	a.Allow("https://internal.example.com")
	if !a.IsAllowed("https://internal.example.com/webhook") {
		t.Fatal("expected newly allowed prefix to match")
	}
}
