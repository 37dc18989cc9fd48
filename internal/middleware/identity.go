package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	apperrors "bookticket/internal/errors"
	"bookticket/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	userIDKey = "user_id"
	roleKey   = "role"

	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// IdentityConfig selects how callers are identified. With a JWT secret a
// Bearer HS256 token is required; without one the X-User-Id and X-User-Role
// headers set by the gateway are trusted.
type IdentityConfig struct {
	JWTSecret string
}

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Identity rejects requests without a user id
func Identity(cfg IdentityConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			userID int64
			role   string
			err    error
		)

		if cfg.JWTSecret != "" {
			userID, role, err = fromBearer(c.GetHeader("Authorization"), cfg.JWTSecret)
		} else {
			userID, role, err = fromHeaders(c)
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(userIDKey, userID)
		c.Set(roleKey, role)
		c.Request = c.Request.WithContext(logger.ContextWithUserID(c.Request.Context(), userID))

		c.Next()
	}
}

// RequireRole must run after Identity
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.EqualFold(c.GetString(roleKey), role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": apperrors.ErrForbidden.Error()})
			return
		}
		c.Next()
	}
}

func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

func IsAdmin(c *gin.Context) bool {
	return strings.EqualFold(c.GetString(roleKey), RoleAdmin)
}

func fromBearer(header, secret string) (int64, string, error) {
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found || raw == "" {
		return 0, "", errors.New("missing bearer token")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return 0, "", errors.New("invalid token")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, "", errors.New("invalid subject claim")
	}

	role := claims.Role
	if role == "" {
		role = RoleUser
	}
	return userID, strings.ToUpper(role), nil
}

func fromHeaders(c *gin.Context) (int64, string, error) {
	raw := c.GetHeader("X-User-Id")
	if raw == "" {
		return 0, "", apperrors.ErrUnauthorized
	}

	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return 0, "", fmt.Errorf("invalid X-User-Id header %q", raw)
	}

	role := c.GetHeader("X-User-Role")
	if role == "" {
		role = RoleUser
	}
	return userID, strings.ToUpper(role), nil
}
