package jwt

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/mbeoliero/huddle/common"
	"github.com/mbeoliero/huddle/pkg/errcode"
)

// ExternalClaims are the claims of a token issued by the university portal.
// The portal identifies accounts by a numeric id plus a role; the chat user
// id is derived from both via common.Actor.
type ExternalClaims struct {
	UserId int64  `json:"user_id"`
	Role   string `json:"role,omitempty"` // "student" or "staff"; falls back to the configured default
	jwt.RegisteredClaims
}

// ParseExternalToken parses a portal token and converts it to Claims
func ParseExternalToken(tokenString, secret, defaultRole string, defaultPlatformId int) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ExternalClaims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}

	extClaims, ok := token.Claims.(*ExternalClaims)
	if !ok || !token.Valid {
		return nil, errcode.ErrTokenInvalid
	}

	role := common.RoleType(extClaims.Role)
	if extClaims.Role == "" {
		role = common.RoleType(defaultRole)
	}

	actor := common.Actor{Id: extClaims.UserId, Role: role}
	imUserId, err := actor.ToIMUserId()
	if err != nil {
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}

	return &Claims{
		UserId:           imUserId,
		PlatformId:       defaultPlatformId,
		RegisteredClaims: extClaims.RegisteredClaims,
	}, nil
}
