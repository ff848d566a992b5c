package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/kazak5205/mebelplace-sub009/internal/auth"
	"github.com/kazak5205/mebelplace-sub009/internal/config"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/repo"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/serializer"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/service"
	"github.com/kazak5205/mebelplace-sub009/internal/pkg/keys"
)

const (
	identityKey = "identity"
	// ActorHeader names the user a service key acts for.
	ActorHeader = "X-Actor-Id"
)

// IdentityFrom returns the caller set by Auth.
func IdentityFrom(c *gin.Context) (*auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*auth.Identity)
	return id, ok
}

func SetIdentity(c *gin.Context, id *auth.Identity) {
	c.Set(identityKey, id)
}

// BearerToken returns the bearer credential of the request, if any.
func BearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// Auth authenticates API requests. A bearer that carries the service key
// prefix is checked against stored service keys and must name the acting
// user in X-Actor-Id; anything else is a user token for authn.
func Auth(cfg *config.Config, authn auth.Authenticator, serviceKeys repo.ServiceKeyRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ctx, authSpan := otel.Tracer("middleware").Start(ctx, "auth",
			trace.WithAttributes(attribute.String("middleware", "auth")))

		deny := func(msg string) {
			authSpan.SetAttributes(attribute.Bool("authenticated", false))
			authSpan.End()
			c.AbortWithStatusJSON(http.StatusUnauthorized, serializer.AuthErr(msg))
		}

		raw := BearerToken(c)
		if raw == "" {
			deny("Unauthorized")
			return
		}

		var id *auth.Identity
		if secret, ok := keys.Parse(raw, cfg.Auth.ServiceKeyPrefix); ok {
			key, err := serviceKeys.GetByHMAC(ctx, keys.Lookup(cfg.Auth.SecretPepper, secret))
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					deny("Unauthorized")
					return
				}
				authSpan.RecordError(err)
				authSpan.End()
				c.AbortWithStatusJSON(http.StatusInternalServerError, serializer.DBErr("", err))
				return
			}

			if cfg.Auth.EnableArgon2Verification {
				_, verifySpan := otel.Tracer("middleware").Start(ctx, "auth.verify_secret")
				pass, err := keys.Verify(secret, cfg.Auth.SecretPepper, key.SecretKeyHashPHC)
				verifySpan.End()
				if err != nil || !pass {
					deny("Unauthorized")
					return
				}
			}

			actor, err := strconv.ParseInt(c.GetHeader(ActorHeader), 10, 64)
			if err != nil || actor <= 0 {
				deny("service key requests must set " + ActorHeader)
				return
			}
			authSpan.SetAttributes(attribute.Int64("service_key_id", key.ID))
			id = &auth.Identity{UserID: actor}
		} else {
			var err error
			id, err = authn.Authenticate(ctx, raw)
			if err != nil {
				if errors.Is(err, service.ErrAuth) {
					deny(err.Error())
					return
				}
				authSpan.RecordError(err)
				authSpan.End()
				c.AbortWithStatusJSON(http.StatusBadGateway, serializer.Err(http.StatusBadGateway, "authentication unavailable", err))
				return
			}
		}

		// Set user_id attribute on the current span for telemetry filtering
		rootSpan := trace.SpanFromContext(c.Request.Context())
		if rootSpan.SpanContext().IsValid() {
			rootSpan.SetAttributes(attribute.Int64("user_id", id.UserID))
		}

		authSpan.SetAttributes(
			attribute.Int64("user_id", id.UserID),
			attribute.Bool("authenticated", true),
		)
		authSpan.End()

		SetIdentity(c, id)
		c.Next()
	}
}
