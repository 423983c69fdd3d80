package main

import (
	"log/slog"

	"github.com/piholestack/pihole-exporter/exporter/internal/config"
)

// tokenState remembers the last resolved API token so that config reloads
// only log when the token or its readability actually changes.
type tokenState struct {
	current string
	failing bool
	seen    bool
}

// update resolves auth and reports whether the token differs from the last
// one resolved. The first call always reports a change.
func (s *tokenState) update(auth config.AuthConfig) (string, bool) {
	token, err := auth.Resolve()
	if err != nil {
		if !s.failing {
			slog.Warn("no api token, requests will be unauthenticated",
				"token_file", auth.TokenFile, "err", err)
		}
		s.failing = true
	} else {
		s.failing = false
	}

	if s.seen && token == s.current {
		return token, false
	}
	if s.seen {
		slog.Info("api token changed", "authenticated", token != "")
	}
	s.seen = true
	s.current = token
	return token, true
}
