package sandbox

import "strings"

// Allowlist is a configurable set of URL prefixes a plugin's http_fetch
// capability may target. Unlisted destinations fail ForbiddenDestination
// (spec §4.I).
type Allowlist struct {
	prefixes []string
}

// DefaultAllowlist matches the first-party integrations the original
// plugin host shipped with (payments, messaging, social).
func DefaultAllowlist() *Allowlist {
	return &Allowlist{prefixes: []string{
		"https://api.stripe.com",
		"https://api.twilio.com",
		"https://api.sendgrid.com",
		"https://graph.facebook.com",
	}}
}

func (a *Allowlist) Allow(prefix string) {
	a.prefixes = append(a.prefixes, prefix)
}

func (a *Allowlist) IsAllowed(url string) bool {
	for _, prefix := range a.prefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}
