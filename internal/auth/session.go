// Package auth resolves and applies the vendor session credential.
package auth

import (
	"fmt"
	"net/http"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "dropbot"
	sessionEnvVar  = "DROPBOT_SESSION"
)

// SessionSource resolves a session token and signs outgoing requests with
// it. Resolution order: OS keyring, environment, configured fallback.
type SessionSource struct {
	seller   string
	fallback string

	token string
}

// NewSessionSource resolves the session token for a seller. The fallback is
// the config-file token and may be empty.
func NewSessionSource(seller, fallback string) (*SessionSource, error) {
	s := &SessionSource{seller: seller, fallback: fallback}

	if token, err := keyring.Get(keyringService, seller); err == nil && token != "" {
		s.token = token
		return s, nil
	}
	if token := os.Getenv(sessionEnvVar); token != "" {
		s.token = token
		return s, nil
	}
	if fallback != "" {
		s.token = fallback
		return s, nil
	}
	return nil, fmt.Errorf("no session token found for seller %q (checked keyring, %s, config)", seller, sessionEnvVar)
}

// Store saves the token in the OS keyring for future runs.
func (s *SessionSource) Store(token string) error {
	if err := keyring.Set(keyringService, s.seller, token); err != nil {
		return fmt.Errorf("failed to store session token: %w", err)
	}
	s.token = token
	return nil
}

// SignRequest attaches the session cookie expected by the vendor API.
func (s *SessionSource) SignRequest(req *http.Request) error {
	if s.token == "" {
		return fmt.Errorf("session token is empty")
	}
	req.AddCookie(&http.Cookie{Name: "hp_session", Value: s.token})
	return nil
}
