package oauth

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWWWAuthenticate(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    *AuthChallenge
		wantErr bool
	}{
		{
			name:   "bare scheme",
			header: "Bearer",
			want:   &AuthChallenge{Scheme: "Bearer"},
		},
		{
			name:   "realm",
			header: `Bearer realm="https://outlook.office.com"`,
			want:   &AuthChallenge{Scheme: "Bearer", Realm: "https://outlook.office.com"},
		},
		{
			name:   "insufficient scope",
			header: `Bearer error="insufficient_scope", scope="Mail.Read"`,
			want:   &AuthChallenge{Scheme: "Bearer", Error: "insufficient_scope", Scope: "Mail.Read"},
		},
		{
			name:   "invalid token with description",
			header: ` Bearer ERROR="invalid_token", error_description="The token has expired"`,
			want: &AuthChallenge{
				Scheme:           "Bearer",
				Error:            "invalid_token",
				ErrorDescription: "The token has expired",
			},
		},
		{
			name:    "empty",
			header:  "   ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWWWAuthenticate(tt.header)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthChallenge_InsufficientScope(t *testing.T) {
	var nilChallenge *AuthChallenge
	assert.False(t, nilChallenge.InsufficientScope())
	assert.False(t, (&AuthChallenge{Error: BearerErrorInvalidToken}).InsufficientScope())
	assert.True(t, (&AuthChallenge{Error: BearerErrorInsufficientScope}).InsufficientScope())
}

func TestParseWWWAuthenticateFromResponse(t *testing.T) {
	t.Run("401 with header", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusUnauthorized, Header: http.Header{}}
		resp.Header.Set("WWW-Authenticate", `Bearer error="invalid_token"`)

		c := ParseWWWAuthenticateFromResponse(resp)
		require.NotNil(t, c)
		assert.Equal(t, BearerErrorInvalidToken, c.Error)
	})

	t.Run("401 without header", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusUnauthorized, Header: http.Header{}}
		assert.Nil(t, ParseWWWAuthenticateFromResponse(resp))
	})

	t.Run("other status", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusForbidden, Header: http.Header{}}
		resp.Header.Set("WWW-Authenticate", "Bearer")
		assert.Nil(t, ParseWWWAuthenticateFromResponse(resp))
	})

	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, ParseWWWAuthenticateFromResponse(nil))
	})
}
