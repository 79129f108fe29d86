package pending

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"authbot/internal/address"
	"authbot/internal/identity"
	"authbot/pkg/oauth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sequenceCodes returns the given codes in order, then repeats the last one.
func sequenceCodes(codes ...string) CodeGenerator {
	var i int32 = -1
	return func() (string, error) {
		n := int(atomic.AddInt32(&i, 1))
		if n >= len(codes) {
			n = len(codes) - 1
		}
		return codes[n], nil
	}
}

var (
	testAddr    = address.New("wa", "c1", "u1")
	testProfile = identity.Profile{PrincipalID: "p-1", DisplayName: "Ada"}
	testToken   = &oauth.Token{AccessToken: "at", RefreshToken: "rt"}
)

func newTestStore(t *testing.T, clock *fakeClock, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(clock.Now), WithTTL(10 * time.Minute), WithSweepInterval(time.Hour)}, opts...)
	s := NewStore(opts...)
	t.Cleanup(s.Stop)
	return s
}

func TestStore_IssueAndConsumeScenario(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock, WithCodeGenerator(sequenceCodes("a1b2c3d4")))

	attempt, err := s.Issue(testAddr, testProfile, testToken)
	require.NoError(t, err)
	assert.Equal(t, "a1b2c3d4", attempt.MagicCode)
	assert.Equal(t, StatusIssued, attempt.Status)
	assert.Equal(t, clock.Now().Add(10*time.Minute), attempt.ExpiresAt)

	_, err = s.Consume(testAddr, "wrong")
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.True(t, s.HasIssued(testAddr), "attempt must remain Issued after a wrong code")

	got, err := s.Consume(testAddr, "a1b2c3d4")
	require.NoError(t, err)
	assert.Equal(t, StatusConsumed, got.Status)
	assert.Equal(t, testProfile, got.Profile)
	assert.Equal(t, "at", got.Token.AccessToken)
	assert.False(t, s.HasIssued(testAddr))
}

func TestStore_SecondConsumeAfterSuccess(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock, WithCodeGenerator(sequenceCodes("a1b2c3d4")))

	_, err := s.Issue(testAddr, testProfile, testToken)
	require.NoError(t, err)

	_, err = s.Consume(testAddr, "a1b2c3d4")
	require.NoError(t, err)

	_, err = s.Consume(testAddr, "a1b2c3d4")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_IssueSupersedes(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock, WithCodeGenerator(sequenceCodes("11111111", "22222222")))

	first, err := s.Issue(testAddr, testProfile, testToken)
	require.NoError(t, err)
	second, err := s.Issue(testAddr, testProfile, testToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	_, err = s.Consume(testAddr, first.MagicCode)
	assert.ErrorIs(t, err, ErrExpired)

	// The superseded code must not have burned the current attempt.
	got, err := s.Consume(testAddr, second.MagicCode)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = s.Consume(testAddr, first.MagicCode)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestStore_ExpiryBoundaryIsExclusive(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock, WithCodeGenerator(sequenceCodes("aaaaaaaa", "bbbbbbbb")))

	_, err := s.Issue(testAddr, testProfile, testToken)
	require.NoError(t, err)

	clock.Advance(10*time.Minute - time.Nanosecond)
	assert.True(t, s.HasIssued(testAddr))

	clock.Advance(time.Nanosecond)
	assert.False(t, s.HasIssued(testAddr))

	_, err = s.Consume(testAddr, "aaaaaaaa")
	assert.ErrorIs(t, err, ErrExpired)

	_, err = s.Consume(testAddr, "aaaaaaaa")
	assert.True(t, errors.Is(err, ErrExpired) || errors.Is(err, ErrNotFound))

	// One nanosecond before expiry still succeeds.
	_, err = s.Issue(testAddr, testProfile, testToken)
	require.NoError(t, err)
	clock.Advance(10*time.Minute - time.Nanosecond)
	_, err = s.Consume(testAddr, "bbbbbbbb")
	assert.NoError(t, err)
}

func TestStore_FailureLimitRevokesAttempt(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock, WithCodeGenerator(sequenceCodes("a1b2c3d4")), WithMaxFailures(3))

	_, err := s.Issue(testAddr, testProfile, testToken)
	require.NoError(t, err)

	for remaining := 2; remaining > 0; remaining-- {
		_, err = s.Consume(testAddr, "deadbeef")
		var invalid *InvalidCodeError
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, remaining, invalid.Remaining)
		assert.ErrorIs(t, err, ErrInvalidCode)
	}

	_, err = s.Consume(testAddr, "deadbeef")
	assert.ErrorIs(t, err, ErrTooManyFailures)
	assert.False(t, s.HasIssued(testAddr))

	// The right code no longer works once the attempt is revoked.
	a, err := s.Consume(testAddr, "a1b2c3d4")
	assert.Nil(t, a)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestStore_SupersededCodeCountsAsFailure(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock, WithCodeGenerator(sequenceCodes("11111111", "22222222")), WithMaxFailures(2))

	_, err := s.Issue(testAddr, testProfile, testToken)
	require.NoError(t, err)
	_, err = s.Issue(testAddr, testProfile, testToken)
	require.NoError(t, err)

	_, err = s.Consume(testAddr, "11111111")
	assert.ErrorIs(t, err, ErrExpired)
	assert.True(t, s.HasIssued(testAddr))

	_, err = s.Consume(testAddr, "11111111")
	assert.ErrorIs(t, err, ErrTooManyFailures)
	assert.False(t, s.HasIssued(testAddr))
}

func TestStore_ConsumeUnknownAddress(t *testing.T) {
	s := newTestStore(t, newFakeClock())

	_, err := s.Consume(address.New("wa", "nobody", "u9"), "a1b2c3d4")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CodeIsBoundToAddress(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock, WithCodeGenerator(sequenceCodes("11111111", "22222222")))

	other := address.New("wa", "c2", "u2")
	_, err := s.Issue(testAddr, testProfile, testToken)
	require.NoError(t, err)
	_, err = s.Issue(other, testProfile, testToken)
	require.NoError(t, err)

	_, err = s.Consume(other, "11111111")
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.True(t, s.HasIssued(testAddr))
}

func TestStore_CollisionRegenerates(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock, WithCodeGenerator(sequenceCodes("11111111", "11111111", "33333333")))

	first, err := s.Issue(testAddr, testProfile, testToken)
	require.NoError(t, err)
	second, err := s.Issue(address.New("wa", "c2", "u2"), testProfile, testToken)
	require.NoError(t, err)

	assert.Equal(t, "11111111", first.MagicCode)
	assert.Equal(t, "33333333", second.MagicCode)
}

func TestStore_CollisionExhaustion(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock, WithCodeGenerator(sequenceCodes("11111111")))

	_, err := s.Issue(testAddr, testProfile, testToken)
	require.NoError(t, err)

	_, err = s.Issue(address.New("wa", "c2", "u2"), testProfile, testToken)
	assert.ErrorIs(t, err, ErrCodeSpace)
}

func TestStore_IssueRejectsInvalidAddress(t *testing.T) {
	s := newTestStore(t, newFakeClock())

	_, err := s.Issue(address.New("", "c1", "u1"), testProfile, testToken)
	assert.ErrorIs(t, err, address.ErrInvalidAddress)
}

func TestStore_ConsumeNormalizesInput(t *testing.T) {
	s := newTestStore(t, newFakeClock(), WithCodeGenerator(sequenceCodes("a1b2c3d4")))

	_, err := s.Issue(testAddr, testProfile, testToken)
	require.NoError(t, err)

	_, err = s.Consume(testAddr, "  A1B2C3D4\n")
	assert.NoError(t, err)
}

func TestStore_ReturnedAttemptIsACopy(t *testing.T) {
	s := newTestStore(t, newFakeClock(), WithCodeGenerator(sequenceCodes("a1b2c3d4")))

	attempt, err := s.Issue(testAddr, testProfile, testToken)
	require.NoError(t, err)
	attempt.MagicCode = "tampered"
	attempt.Token.AccessToken = "tampered"

	got, err := s.Consume(testAddr, "a1b2c3d4")
	require.NoError(t, err)
	assert.Equal(t, "at", got.Token.AccessToken)
}

func TestStore_Sweep(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock, WithCodeGenerator(sequenceCodes("11111111", "22222222", "33333333")))

	_, err := s.Issue(testAddr, testProfile, testToken)
	require.NoError(t, err)
	_, err = s.Issue(testAddr, testProfile, testToken) // supersedes the first
	require.NoError(t, err)
	_, err = s.Issue(address.New("wa", "c2", "u2"), testProfile, testToken)
	require.NoError(t, err)
	_, err = s.Consume(address.New("wa", "c2", "u2"), "33333333")
	require.NoError(t, err)

	assert.Equal(t, 3, s.Count())
	assert.Equal(t, 0, s.Sweep(), "nothing has reached its expiry yet")

	clock.Advance(10 * time.Minute)
	assert.Equal(t, 3, s.Sweep())
	assert.Equal(t, 0, s.Count())

	// Codes of reclaimed attempts are unknown now.
	_, err = s.Consume(testAddr, "22222222")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_BackgroundSweep(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(WithClock(clock.Now), WithTTL(time.Minute), WithSweepInterval(5*time.Millisecond))
	defer s.Stop()

	_, err := s.Issue(testAddr, testProfile, testToken)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	assert.Eventually(t, func() bool { return s.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestStore_Revoke(t *testing.T) {
	s := newTestStore(t, newFakeClock(), WithCodeGenerator(sequenceCodes("a1b2c3d4")))

	assert.False(t, s.Revoke(testAddr))

	_, err := s.Issue(testAddr, testProfile, testToken)
	require.NoError(t, err)
	assert.True(t, s.Revoke(testAddr))
	assert.False(t, s.HasIssued(testAddr))

	_, err = s.Consume(testAddr, "a1b2c3d4")
	assert.ErrorIs(t, err, ErrExpired)
}

func TestStore_StopIsIdempotent(t *testing.T) {
	s := NewStore()
	s.Stop()
	s.Stop()
}

func TestStore_ConcurrentConsume(t *testing.T) {
	for run := 0; run < 50; run++ {
		s := newTestStore(t, newFakeClock(), WithCodeGenerator(sequenceCodes("a1b2c3d4")))
		_, err := s.Issue(testAddr, testProfile, testToken)
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			successes int32
			notFound  int32
			start     = make(chan struct{})
		)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := s.Consume(testAddr, "a1b2c3d4")
				switch {
				case err == nil:
					atomic.AddInt32(&successes, 1)
				case errors.Is(err, ErrNotFound):
					atomic.AddInt32(&notFound, 1)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), successes)
		assert.Equal(t, int32(1), notFound)
	}
}

func TestStore_ConcurrentIssueKeepsOneIssued(t *testing.T) {
	s := newTestStore(t, newFakeClock())

	var wg sync.WaitGroup
	codes := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := s.Issue(testAddr, testProfile, testToken)
			if err == nil {
				codes <- a.MagicCode
			}
		}()
	}
	wg.Wait()
	close(codes)

	valid := 0
	for code := range codes {
		if _, err := s.Consume(testAddr, code); err == nil {
			valid++
		}
	}
	assert.Equal(t, 1, valid, "exactly one issued code may succeed")
}

func TestRandomCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := RandomCode()
		require.NoError(t, err)
		assert.Regexp(t, "^[0-9a-f]{8}$", code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 95)
}
