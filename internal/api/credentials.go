package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/garage-bridge/internal/myq"
)

// Credential headers sent by hubs in credential-bearing mode.
const (
	headerEmail    = "X-MyQ-Email"
	headerPassword = "X-MyQ-Password"
)

// credentialsFromRequest reads the caller's account from headers, falling
// back to the email and password query parameters.
func credentialsFromRequest(r *http.Request) myq.Credentials {
	creds := myq.Credentials{
		Email:    r.Header.Get(headerEmail),
		Password: r.Header.Get(headerPassword),
	}
	if creds.Empty() {
		q := r.URL.Query()
		creds = myq.Credentials{Email: q.Get("email"), Password: q.Get("password")}
	}
	return creds
}

// requireCredentials returns the caller's credentials when the server runs
// in credential-bearing mode. It writes a 401 and returns false when they
// are missing. In the default mode it returns empty credentials and true.
func (s *Server) requireCredentials(w http.ResponseWriter, r *http.Request) (myq.Credentials, bool) {
	if !s.cfg.RequireCredentials {
		return myq.Credentials{}, true
	}
	creds := credentialsFromRequest(r)
	if creds.Empty() {
		writeUnauthorized(w, "cloud account credentials are required")
		return myq.Credentials{}, false
	}
	return creds, true
}

// authorizeListing makes sure the active session matches the caller before
// devices are listed. It writes the error response and returns false on
// failure.
func (s *Server) authorizeListing(w http.ResponseWriter, r *http.Request) bool {
	creds, ok := s.requireCredentials(w, r)
	if !ok {
		return false
	}
	if !s.cfg.RequireCredentials {
		return true
	}

	if err := s.bridge.Authorize(r.Context(), creds); err != nil {
		if errors.Is(err, myq.ErrUnauthorized) {
			writeUnauthorized(w, "cloud account rejected the credentials")
			return false
		}
		writeBridgeError(w, err)
		return false
	}
	return true
}
