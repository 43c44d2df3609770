// Package cli validates operator-supplied input before it reaches the
// engine.
package cli

import (
	"errors"
	"fmt"
	"regexp"
)

// reservedPaths are site paths that can never name a seller storefront.
var reservedPaths = map[string]struct{}{
	"referrals": {}, "portal": {}, "pricing": {}, "features": {}, "blog": {}, "help": {},
	"testimonials": {}, "company": {}, "login": {}, "signup": {}, "not-found": {},
	"terms": {}, "privacy": {}, "about": {}, "contact": {}, "faq": {}, "support": {},
	"learn": {}, "api": {}, "docs": {}, "settings": {}, "events": {}, "admin": {},
}

var slugPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// ValidateSellerSlug checks that a slug is a plausible storefront name:
// lowercase url-safe characters, longer than two characters, and not a
// reserved site path.
func ValidateSellerSlug(slug string) error {
	if slug == "" {
		return errors.New("seller slug is empty")
	}
	if len(slug) <= 2 {
		return fmt.Errorf("seller slug %q is too short", slug)
	}
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("seller slug %q contains invalid characters", slug)
	}
	if _, reserved := reservedPaths[slug]; reserved {
		return fmt.Errorf("%q is a reserved site path, not a storefront", slug)
	}
	return nil
}
