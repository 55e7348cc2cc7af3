package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"ricemill/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"
)

// AdminRole bypasses permission checks.
const AdminRole = "admin"

// PermissionLookup resolves the permission codes granted to a role.
type PermissionLookup interface {
	GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error)
}

var (
	authMu     sync.RWMutex
	jwtSecret  []byte
	permLookup PermissionLookup
	permCache  = cache.New(5*time.Minute, 10*time.Minute)
)

// InitAuth sets the signing secret and the permission source used by
// RequireRole and RequirePermission. A zero ttl keeps the default of 5 minutes.
func InitAuth(secret string, lookup PermissionLookup, ttl time.Duration) {
	authMu.Lock()
	defer authMu.Unlock()
	jwtSecret = []byte(secret)
	permLookup = lookup
	if ttl > 0 {
		permCache = cache.New(ttl, 2*ttl)
	}
}

func GetJWTSecret() []byte {
	authMu.RLock()
	defer authMu.RUnlock()
	return jwtSecret
}

// Identity is the caller extracted from a validated token.
type Identity struct {
	UserID string
	Role   string
}

var errMissingRole = errors.New("role not found in token")

// ParseToken validates an HMAC signed token and returns its subject and role.
func ParseToken(tokenString string) (Identity, error) {
	secret := GetJWTSecret()
	if len(secret) == 0 {
		return Identity{}, errors.New("auth middleware not initialized")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return Identity{}, err
	}
	if !token.Valid {
		return Identity{}, jwt.ErrTokenInvalidClaims
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, jwt.ErrTokenInvalidClaims
	}
	role, ok := claims["role"].(string)
	if !ok || role == "" {
		return Identity{}, errMissingRole
	}
	sub, _ := claims.GetSubject()
	return Identity{UserID: sub, Role: role}, nil
}

// tokenFromRequest reads the access_token cookie and falls back to the
// Authorization header.
func tokenFromRequest(c *gin.Context) (string, string) {
	if tokenString, err := c.Cookie("access_token"); err == nil && tokenString != "" {
		return tokenString, ""
	}
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", "Authorization is missing"
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", "Invalid authorization format. Expected 'Bearer <token>'"
	}
	return parts[1], ""
}

// authenticate validates the request token and stores userID and userRole on
// the context. It aborts and returns false on failure.
func authenticate(c *gin.Context) (Identity, bool) {
	tokenString, problem := tokenFromRequest(c)
	if problem != "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, problem))
		return Identity{}, false
	}

	identity, err := ParseToken(tokenString)
	switch {
	case errors.Is(err, errMissingRole):
		c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Role not found in token"))
		return Identity{}, false
	case err != nil:
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token: "+err.Error()))
		return Identity{}, false
	}

	c.Set("userID", identity.UserID)
	c.Set("userRole", identity.Role)
	return identity, true
}

// RequireRole validates the JWT token and checks if the user's role exists in the allowedRoles list
func RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := authenticate(c)
		if !ok {
			return
		}

		for _, role := range allowedRoles {
			if identity.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
	}
}

// --- Permission-based middleware ---

// RequirePermission validates the JWT and checks that the user's role holds
// every required permission code. The admin role always passes.
func RequirePermission(requiredPerms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := authenticate(c)
		if !ok {
			return
		}
		if identity.Role == AdminRole {
			c.Next()
			return
		}

		userPerms, err := getPermissionsForRole(c.Request.Context(), identity.Role)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to verify permissions"))
			return
		}

		permSet := make(map[string]bool, len(userPerms))
		for _, p := range userPerms {
			permSet[p] = true
		}
		for _, required := range requiredPerms {
			if !permSet[required] {
				c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: missing permission '"+required+"'"))
				return
			}
		}

		c.Next()
	}
}

// getPermissionsForRole returns cached or freshly loaded permission codes for a role name
func getPermissionsForRole(ctx context.Context, roleName string) ([]string, error) {
	authMu.RLock()
	store, lookup := permCache, permLookup
	authMu.RUnlock()

	if cached, found := store.Get(roleName); found {
		return cached.([]string), nil
	}
	if lookup == nil {
		return nil, errors.New("permission middleware not initialized")
	}

	codes, err := lookup.GetPermissionsByRoleName(ctx, roleName)
	if err != nil {
		return nil, err
	}
	store.Set(roleName, codes, cache.DefaultExpiration)
	return codes, nil
}

// ClearPermissionCache removes cached permissions for a specific role (or all roles if empty)
func ClearPermissionCache(roleName string) {
	authMu.RLock()
	store := permCache
	authMu.RUnlock()

	if roleName == "" {
		store.Flush()
		return
	}
	store.Delete(roleName)
}
