package refresh

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rt-1", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(url string) *OAuth2Provider {
	return NewOAuth2Provider("client-id", "client-secret", url, []string{"openid", "offline_access"}, &http.Client{Timeout: 5 * time.Second})
}

func TestOAuth2Provider_Success(t *testing.T) {
	srv := tokenServer(t, http.StatusOK, `{"access_token":"at-2","refresh_token":"rt-2","token_type":"Bearer","expires_in":3600}`)

	before := time.Now()
	token, err := newTestProvider(srv.URL).Refresh(context.Background(), "rt-1")
	require.NoError(t, err)
	assert.Equal(t, "at-2", token.AccessToken)
	assert.Equal(t, "rt-2", token.RefreshToken)
	assert.True(t, token.ExpiresAt.After(before.Add(59*time.Minute)))
}

func TestOAuth2Provider_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"invalid grant", http.StatusBadRequest, `{"error":"invalid_grant","error_description":"AADSTS70008: expired"}`, ErrInvalidGrant},
		{"invalid client", http.StatusUnauthorized, `{"error":"invalid_client"}`, ErrClientRejected},
		{"unauthorized client", http.StatusBadRequest, `{"error":"unauthorized_client"}`, ErrClientRejected},
		{"invalid scope", http.StatusBadRequest, `{"error":"invalid_scope"}`, ErrClientRejected},
		{"bad request without code", http.StatusBadRequest, `{}`, ErrClientRejected},
		{"server error", http.StatusInternalServerError, `{"error":"server_error"}`, ErrTransient},
		{"unavailable", http.StatusServiceUnavailable, `oops`, ErrTransient},
		{"throttled", http.StatusTooManyRequests, `{"error":"slow_down"}`, ErrTransient},
		{"temporarily unavailable code", http.StatusBadRequest, `{"error":"temporarily_unavailable"}`, ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := tokenServer(t, tt.status, tt.body)
			_, err := newTestProvider(srv.URL).Refresh(context.Background(), "rt-1")
			assert.ErrorIs(t, err, tt.want)
			if tt.want != ErrInvalidGrant {
				assert.NotErrorIs(t, err, ErrInvalidGrant, "only invalid_grant ends the session")
			}
		})
	}
}

func TestOAuth2Provider_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestProvider(url).Refresh(context.Background(), "rt-1")
	assert.ErrorIs(t, err, ErrTransient)
}

func TestOAuth2Provider_EmptyRefreshToken(t *testing.T) {
	_, err := newTestProvider("http://127.0.0.1:0").Refresh(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidGrant)
}
