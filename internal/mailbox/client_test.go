package mailbox

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"authbot/pkg/oauth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/v2.0/", 5*time.Second, 2)
}

func TestLatestSubject(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2.0/me/MailFolders/Inbox/messages", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("$top"))
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":[{"Subject":"Quarterly report"}]}`))
	})

	subject, err := c.LatestSubject(context.Background(), "at-1")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly report", subject)

	out, err := c.Action().Run(context.Background(), "at-1")
	require.NoError(t, err)
	assert.Equal(t, `Your latest email is: "Quarterly report"`, out)
}

func TestAction_ClipsSubject(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":[{"Subject":"Line one\nline two"}]}`))
	})

	out, err := c.Action().Run(context.Background(), "at")
	require.NoError(t, err)
	assert.Equal(t, `Your latest email is: "Line one line two"`, out)
}

func TestLatestSubject_Unauthorized(t *testing.T) {
	var calls int32
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.LatestSubject(context.Background(), "expired")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.True(t, errors.Is(err, oauth.ErrTokenRejected))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "401 is not retried")
}

func TestLatestSubject_InsufficientScope(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="Mail.Read"`)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.LatestSubject(context.Background(), "at")
	assert.ErrorIs(t, err, ErrInsufficientScope)
	assert.Contains(t, err.Error(), "Mail.Read")
	assert.False(t, errors.Is(err, oauth.ErrTokenRejected))
}

func TestLatestSubject_InvalidTokenChallenge(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.LatestSubject(context.Background(), "at")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLatestSubject_EmptyInbox(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":[]}`))
	})

	_, err := c.LatestSubject(context.Background(), "at")
	assert.ErrorIs(t, err, ErrEmptyInbox)

	out, err := c.Action().Run(context.Background(), "at")
	require.NoError(t, err)
	assert.Equal(t, "Your inbox is empty.", out)
}

func TestLatestSubject_APIError(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(` {"error":{"code":"ErrorAccessDenied","message":"Access is denied."}}`))
	})

	_, err := c.LatestSubject(context.Background(), "at")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ErrorAccessDenied")
	assert.False(t, errors.Is(err, oauth.ErrTokenRejected))
}

func TestLatestSubject_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"value":[{"Subject":"after retry"}]}`))
	})

	subject, err := c.LatestSubject(context.Background(), "at")
	require.NoError(t, err)
	assert.Equal(t, "after retry", subject)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
