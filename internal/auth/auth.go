// Package auth resolves bearer tokens into user identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/kazak5205/mebelplace-sub009/internal/config"
	"github.com/kazak5205/mebelplace-sub009/internal/infra/httpclient"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/service"
	"go.uber.org/zap"
)

type Identity struct {
	UserID int64  `json:"userId"`
	Role   string `json:"role"`
}

type Authenticator interface {
	// Authenticate returns an error wrapping service.ErrAuth for a bad token.
	Authenticate(ctx context.Context, token string) (*Identity, error)
}

func authErr(msg string) error {
	return &service.DomainError{Kind: service.ErrAuth, Msg: msg}
}

// New picks the authenticator configured in cfg.Auth.Mode.
func New(cfg *config.Config, log *zap.Logger) (Authenticator, error) {
	switch cfg.Auth.Mode {
	case "jwt":
		return NewJWTAuthenticator([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer), nil
	case "remote":
		return NewRemoteAuthenticator(httpclient.NewAuthClient(cfg, log)), nil
	}
	return nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
}

type remoteAuthenticator struct {
	client *httpclient.AuthClient
}

// NewRemoteAuthenticator validates tokens against the account service.
func NewRemoteAuthenticator(client *httpclient.AuthClient) Authenticator {
	return &remoteAuthenticator{client: client}
}

func (a *remoteAuthenticator) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, authErr("missing token")
	}
	res, err := a.client.Introspect(ctx, token)
	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden) {
			return nil, authErr("token rejected")
		}
		return nil, fmt.Errorf("introspect token: %w", err)
	}
	if !res.Active || res.UserID <= 0 {
		return nil, authErr("token is not active")
	}
	return &Identity{UserID: res.UserID, Role: res.Role}, nil
}
