package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/huddle/internal/config"
	"github.com/mbeoliero/huddle/pkg/errcode"
	"github.com/mbeoliero/huddle/pkg/jwt"
	"github.com/mbeoliero/huddle/pkg/response"
)

const (
	// AuthorizationHeader is the header key for authorization
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer token
	BearerPrefix = "Bearer "
	// UserIdKey is the context key for user Id
	UserIdKey = "user_id"
	// PlatformIdKey is the context key for platform Id
	PlatformIdKey = "platform_id"
)

// JWTAuth is the JWT authentication middleware
func JWTAuth(cfg *config.Config) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		authHeader := string(c.GetHeader(AuthorizationHeader))
		if authHeader == "" {
			response.Unauthorized(ctx, c, errcode.ErrTokenMissing)
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			response.Unauthorized(ctx, c, errcode.ErrTokenInvalid)
			c.Abort()
			return
		}

		claims, err := ParseTokenWithFallback(strings.TrimPrefix(authHeader, BearerPrefix), cfg)
		if err != nil {
			log.CtxDebug(ctx, "token rejected: path=%s, error=%v", c.Path(), err)
			e := errcode.ErrTokenInvalid
			if errors.Is(err, errcode.ErrTokenExpired) {
				e = errcode.ErrTokenExpired
			}
			response.Unauthorized(ctx, c, e)
			c.Abort()
			return
		}

		c.Set(UserIdKey, claims.UserId)
		c.Set(PlatformIdKey, claims.PlatformId)

		c.Next(ctx)
	}
}

// ParseTokenWithFallback tries a token signed by this service first, then
// a portal token when external tokens are enabled
func ParseTokenWithFallback(tokenString string, cfg *config.Config) (*jwt.Claims, error) {
	var (
		claims *jwt.Claims
		err    error
	)
	if cfg.JWT.Secret != "" {
		if claims, err = jwt.ParseToken(tokenString, cfg.JWT.Secret); err == nil {
			return claims, nil
		}
	}

	if cfg.ExternalJWT.Enabled {
		return jwt.ParseExternalToken(
			tokenString,
			cfg.ExternalJWT.Secret,
			cfg.ExternalJWT.DefaultRole,
			cfg.ExternalJWT.DefaultPlatformId,
		)
	}

	if err == nil {
		err = errcode.ErrTokenInvalid
	}
	return nil, err
}

// GetUserId gets user Id from context
func GetUserId(c *app.RequestContext) string {
	return c.GetString(UserIdKey)
}

// GetPlatformId gets platform Id from context
func GetPlatformId(c *app.RequestContext) int {
	return c.GetInt(PlatformIdKey)
}
