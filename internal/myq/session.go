package myq

import (
	"sync"
)

// Factory builds a client for one account and region.
type Factory func(creds Credentials, region Region) Client

// HTTPFactory returns a Factory producing HTTPClients with opts.
func HTTPFactory(opts HTTPOptions) Factory {
	return func(creds Credentials, region Region) Client {
		return NewHTTPClient(creds, region, opts)
	}
}

// SessionOptions configures a Session.
type SessionOptions struct {
	// Regions in fallback order. At least one is required.
	Regions []Region

	// MaxFailures is the number of consecutive failures after which the
	// session moves to the next region. Default: 3
	MaxFailures int

	// Factory builds clients. Default: HTTPFactory with zero options.
	Factory Factory

	Logger Logger
}

// Session owns the single active Client for the process.
//
// Callers take the current client with Current or Candidate and use it without
// holding any session lock. Swapping the client never affects calls already
// in flight on the previous instance.
type Session struct {
	mu          sync.RWMutex
	regions     []Region
	regionIdx   int
	maxFailures int
	failures    int
	switches    int
	creds       Credentials
	client      Client
	factory     Factory
	logger      Logger
}

// NewSession creates a session. When creds are non-empty the first client is
// built immediately; otherwise the session waits for Install.
func NewSession(creds Credentials, opts SessionOptions) (*Session, error) {
	if len(opts.Regions) == 0 {
		return nil, ErrNoRegions
	}
	if opts.MaxFailures < 1 {
		opts.MaxFailures = 3
	}
	if opts.Factory == nil {
		opts.Factory = HTTPFactory(HTTPOptions{})
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	s := &Session{
		regions:     opts.Regions,
		maxFailures: opts.MaxFailures,
		factory:     opts.Factory,
		logger:      opts.Logger,
	}
	if !creds.Empty() {
		s.creds = creds
		s.client = s.factory(creds, s.regions[0])
	}
	return s, nil
}

// Current returns the active client.
// Returns ErrUnauthorized if no credentials have been supplied yet.
func (s *Session) Current() (Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, ErrUnauthorized
	}
	return s.client, nil
}

// Candidate returns the active client when creds match the active account.
// Otherwise it builds a client for creds in the active region without
// installing it, and active is false. Callers verify the candidate and pass
// it to Install.
//
// Empty credentials return ErrUnauthorized.
func (s *Session) Candidate(creds Credentials) (client Client, active bool, err error) {
	if creds.Empty() {
		return nil, false, ErrUnauthorized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client != nil && s.creds == creds {
		return s.client, true, nil
	}
	return s.factory(creds, s.regions[s.regionIdx]), false, nil
}

// Install makes client the active client for creds. If creds are already
// active (another caller installed them first) the existing client is kept
// and returned.
func (s *Session) Install(creds Credentials, client Client) Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil && s.creds == creds {
		return s.client
	}

	previous := s.creds
	s.creds = creds
	s.failures = 0
	s.client = client
	s.logger.Info("session re-initialised for new credentials",
		"account", creds, "previous_account", previous, "region", s.regions[s.regionIdx].Name)
	return s.client
}

// ReportFailure records a failed refresh. After MaxFailures consecutive
// failures the session moves to the next region with a fresh client and the
// count starts over. With a single region the client is rebuilt in place.
//
// Returns true if the region changed.
func (s *Session) ReportFailure(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures++
	if s.failures < s.maxFailures {
		s.logger.Debug("cloud refresh failed", "error", err, "consecutive_failures", s.failures)
		return false
	}

	s.failures = 0
	from := s.regions[s.regionIdx]
	s.regionIdx = (s.regionIdx + 1) % len(s.regions)
	to := s.regions[s.regionIdx]
	if s.client != nil {
		s.client = s.factory(s.creds, to)
	}

	if len(s.regions) == 1 {
		s.logger.Warn("resetting cloud session after repeated failures", "error", err, "region", to.Name)
		return false
	}

	s.switches++
	s.logger.Warn("switching cloud region after repeated failures",
		"error", err, "from", from.Name, "to", to.Name, "max_failures", s.maxFailures)
	return true
}

// ReportSuccess clears the consecutive failure count.
func (s *Session) ReportSuccess() {
	s.mu.Lock()
	s.failures = 0
	s.mu.Unlock()
}

// Region returns the active region.
func (s *Session) Region() Region {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.regions[s.regionIdx]
}

// Switches returns how many times the session has changed region.
func (s *Session) Switches() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.switches
}

// Failures returns the current consecutive failure count.
func (s *Session) Failures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failures
}
