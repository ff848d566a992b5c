package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kazak5205/mebelplace-sub009/internal/config"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestJWTAuthenticator(t *testing.T) {
	ctx := context.Background()
	a := NewJWTAuthenticator([]byte("secret"), "mebelplace")

	good, err := a.IssueToken(42, "master", time.Hour)
	require.NoError(t, err)
	expired, err := a.IssueToken(42, "master", -time.Minute)
	require.NoError(t, err)
	foreign, err := NewJWTAuthenticator([]byte("other"), "mebelplace").IssueToken(42, "master", time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := NewJWTAuthenticator([]byte("secret"), "elsewhere").IssueToken(42, "master", time.Hour)
	require.NoError(t, err)
	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "anna",
			Issuer:    "mebelplace",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		want    *Identity
		wantErr bool
	}{
		{name: "valid", token: good, want: &Identity{UserID: 42, Role: "master"}},
		{name: "empty", token: "", wantErr: true},
		{name: "garbage", token: "not.a.jwt", wantErr: true},
		{name: "expired", token: expired, wantErr: true},
		{name: "foreign signature", token: foreign, wantErr: true},
		{name: "wrong issuer", token: wrongIssuer, wantErr: true},
		{name: "non numeric subject", token: badSubject, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := a.Authenticate(ctx, tt.token)
			if tt.wantErr {
				assert.True(t, errors.Is(err, service.ErrAuth), "got %v", err)
				assert.Nil(t, id)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestRemoteAuthenticator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/auth/introspect", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		body, _ := io.ReadAll(r.Body)
		switch string(body) {
		case `{"token":"good"}`:
			_, _ = w.Write([]byte(`{"active":true,"userId":7,"role":"client"}`))
		case `{"token":"inactive"}`:
			_, _ = w.Write([]byte(`{"active":false}`))
		case `{"token":"revoked"}`:
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.Auth.Mode = "remote"
	cfg.Auth.RemoteURL = srv.URL
	a, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	id, err := a.Authenticate(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, &Identity{UserID: 7, Role: "client"}, id)

	_, err = a.Authenticate(ctx, "inactive")
	assert.True(t, errors.Is(err, service.ErrAuth))

	_, err = a.Authenticate(ctx, "revoked")
	assert.True(t, errors.Is(err, service.ErrAuth))

	_, err = a.Authenticate(ctx, "boom")
	require.Error(t, err)
	assert.False(t, errors.Is(err, service.ErrAuth), "server failures are not auth failures")
}

func TestNew_UnknownMode(t *testing.T) {
	cfg := &config.Config{}
	cfg.Auth.Mode = "ldap"
	_, err := New(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unknown auth mode")
}
