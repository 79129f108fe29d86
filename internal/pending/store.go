package pending

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"authbot/internal/address"
	"authbot/internal/identity"
	"authbot/internal/metrics"
	"authbot/pkg/logging"
	"authbot/pkg/oauth"

	"github.com/google/uuid"
)

const (
	// DefaultTTL is how long a magic code stays valid.
	DefaultTTL = 10 * time.Minute

	// DefaultSweepInterval is how often expired attempts are reclaimed.
	DefaultSweepInterval = time.Minute

	// DefaultMaxFailures is how many wrong codes revoke an attempt.
	DefaultMaxFailures = 5

	// maxCodeTries bounds regeneration on collision.
	maxCodeTries = 8

	// codeBytes is the entropy of a magic code; rendered as twice as many hex characters.
	codeBytes = 4
)

// CodeGenerator produces candidate magic codes.
type CodeGenerator func() (string, error)

// RandomCode returns 4 bytes from crypto/rand as 8 lowercase hex characters.
func RandomCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Store provides thread-safe storage for pending sign-in attempts.
// A single mutex guards every index, so Issue and Consume are linearizable.
type Store struct {
	mu       sync.Mutex
	attempts map[string]*Attempt // by attempt id
	current  map[string]string   // address key -> id of the Issued attempt
	byCode   map[string]string   // magic code -> attempt id, any status

	ttl           time.Duration
	sweepInterval time.Duration
	maxFailures   int
	now           func() time.Time
	newCode       CodeGenerator

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the attempt lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSweepInterval sets how often the background sweep runs.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithMaxFailures sets how many wrong codes an attempt tolerates before it
// is revoked.
func WithMaxFailures(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxFailures = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithCodeGenerator overrides magic code generation.
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(s *Store) {
		s.newCode = gen
	}
}

// NewStore creates a pending attempt store and starts its background sweep.
// Call Stop to end the sweep.
func NewStore(opts ...Option) *Store {
	s := &Store{
		attempts:      make(map[string]*Attempt),
		current:       make(map[string]string),
		byCode:        make(map[string]string),
		ttl:           DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		maxFailures:   DefaultMaxFailures,
		now:           time.Now,
		newCode:       RandomCode,
		stopCleanup:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// Issue records a new attempt for addr and returns a copy of it. Any Issued
// attempt already waiting for addr is superseded and becomes Expired.
func (s *Store) Issue(addr address.Address, profile identity.Profile, token *oauth.Token) (*Attempt, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	code, err := s.uniqueCodeLocked()
	if err != nil {
		return nil, err
	}

	key := addr.Key()
	if prevID, ok := s.current[key]; ok {
		if prev := s.attempts[prevID]; prev != nil && prev.Status == StatusIssued {
			prev.Status = StatusExpired
			metrics.AttemptsSuperseded.Inc()
			logging.Debug("Pending", "Superseded attempt %s for conversation %s",
				logging.TruncateID(prevID), logging.TruncateID(addr.ConversationID))
		}
	}

	now := s.now()
	attempt := &Attempt{
		ID:        uuid.NewString(),
		Address:   addr,
		MagicCode: code,
		Profile:   profile,
		Token:     token.Clone(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		Status:    StatusIssued,
	}

	s.attempts[attempt.ID] = attempt
	s.current[key] = attempt.ID
	s.byCode[code] = attempt.ID

	metrics.AttemptsIssued.Inc()
	metrics.PendingAttempts.Set(float64(len(s.attempts)))
	logging.Debug("Pending", "Issued attempt %s for conversation %s",
		logging.TruncateID(attempt.ID), logging.TruncateID(addr.ConversationID))

	return attempt.clone(), nil
}

// Consume verifies code against the Issued attempt for addr. On a match the
// attempt becomes Consumed and a copy is returned. A mismatch counts against
// the attempt: it returns an *InvalidCodeError while the attempt stays
// Issued, and ErrTooManyFailures once the failure limit revokes it. A
// superseded code still returns ErrExpired but is counted too.
func (s *Store) Consume(addr address.Address, code string) (*Attempt, error) {
	code = normalizeCode(code)

	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, err := s.consumeLocked(addr, code)
	metrics.ConsumeResults.WithLabelValues(consumeResult(err)).Inc()
	return attempt, err
}

func (s *Store) consumeLocked(addr address.Address, code string) (*Attempt, error) {
	key := addr.Key()
	now := s.now()

	id, ok := s.current[key]
	if !ok {
		// A superseded code for this address is reported as expired.
		if s.supersededCodeLocked(key, code) {
			return nil, ErrExpired
		}
		return nil, ErrNotFound
	}

	attempt := s.attempts[id]
	if attempt == nil || attempt.Status != StatusIssued {
		delete(s.current, key)
		return nil, ErrNotFound
	}

	if attempt.expiredAt(now) {
		attempt.Status = StatusExpired
		delete(s.current, key)
		return nil, ErrExpired
	}

	if subtle.ConstantTimeCompare([]byte(code), []byte(attempt.MagicCode)) != 1 {
		attempt.Failures++
		if attempt.Failures >= s.maxFailures {
			attempt.Status = StatusExpired
			delete(s.current, key)
			logging.Debug("Pending", "Revoked attempt %s for conversation %s after %d invalid codes",
				logging.TruncateID(attempt.ID), logging.TruncateID(addr.ConversationID), attempt.Failures)
			return nil, ErrTooManyFailures
		}
		if s.supersededCodeLocked(key, code) {
			return nil, ErrExpired
		}
		return nil, &InvalidCodeError{Remaining: s.maxFailures - attempt.Failures}
	}

	attempt.Status = StatusConsumed
	delete(s.current, key)

	logging.Debug("Pending", "Consumed attempt %s for conversation %s",
		logging.TruncateID(attempt.ID), logging.TruncateID(addr.ConversationID))

	return attempt.clone(), nil
}

// supersededCodeLocked reports whether code belongs to an attempt for the same
// address that expired before being consumed.
func (s *Store) supersededCodeLocked(key, code string) bool {
	id, ok := s.byCode[code]
	if !ok {
		return false
	}
	a := s.attempts[id]
	return a != nil && a.Status == StatusExpired && a.Address.Key() == key
}

// Revoke expires the Issued attempt for addr, if any, and reports whether
// there was one. Used when a conversation abandons its sign-in.
func (s *Store) Revoke(addr address.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := addr.Key()
	id, ok := s.current[key]
	if !ok {
		return false
	}
	delete(s.current, key)
	if a := s.attempts[id]; a != nil && a.Status == StatusIssued {
		a.Status = StatusExpired
		return true
	}
	return false
}

// HasIssued reports whether an unexpired Issued attempt is waiting for addr.
func (s *Store) HasIssued(addr address.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.current[addr.Key()]
	if !ok {
		return false
	}
	a := s.attempts[id]
	return a != nil && a.Status == StatusIssued && !a.expiredAt(s.now())
}

// Count returns the number of retained attempts, any status.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

// Stop stops the background cleanup goroutine. It is safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// cleanupLoop periodically removes expired attempts from the store.
func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopCleanup:
			return
		}
	}
}

// Sweep removes every attempt whose ExpiresAt has passed, regardless of
// status, and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for id, a := range s.attempts {
		if !a.expiredAt(now) {
			continue
		}
		key := a.Address.Key()
		if s.current[key] == id {
			delete(s.current, key)
		}
		if s.byCode[a.MagicCode] == id {
			delete(s.byCode, a.MagicCode)
		}
		delete(s.attempts, id)
		count++
	}

	if count > 0 {
		metrics.AttemptsSwept.Add(float64(count))
		metrics.PendingAttempts.Set(float64(len(s.attempts)))
		logging.Debug("Pending", "Cleaned up %d expired attempts", count)
	}
	return count
}

// uniqueCodeLocked generates a code not held by any retained attempt.
func (s *Store) uniqueCodeLocked() (string, error) {
	for i := 0; i < maxCodeTries; i++ {
		code, err := s.newCode()
		if err != nil {
			return "", err
		}
		code = normalizeCode(code)
		if _, taken := s.byCode[code]; !taken && code != "" {
			return code, nil
		}
	}
	logging.Warn("Pending", "Magic code generation collided %d times", maxCodeTries)
	return "", ErrCodeSpace
}

// normalizeCode tolerates the whitespace and casing chat clients add when pasting.
func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

func consumeResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, ErrTooManyFailures):
		return "too_many_failures"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
