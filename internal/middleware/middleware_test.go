package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type fakeLookup struct {
	perms map[string][]string
	calls atomic.Int32
}

func (f *fakeLookup) GetPermissionsByRoleName(_ context.Context, role string) ([]string, error) {
	f.calls.Add(1)
	return f.perms[role], nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, sub, role string, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func serve(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequirePermission(t *testing.T) {
	lookup := &fakeLookup{perms: map[string][]string{
		"operator": {"production.read"},
	}}
	InitAuth(testSecret, lookup, time.Minute)

	r := gin.New()
	r.GET("/x", RequirePermission("production.write"), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("userID"))
	})

	assert.Equal(t, http.StatusUnauthorized, serve(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, signToken(t, "u1", "operator", "other-secret")).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, signToken(t, "u1", "operator", testSecret)).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, signToken(t, "u1", "", testSecret)).Code)

	w := serve(r, signToken(t, "u-admin", AdminRole, testSecret))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-admin", w.Body.String())

	lookup.perms["operator"] = []string{"production.read", "production.write"}
	assert.Equal(t, http.StatusForbidden, serve(r, signToken(t, "u1", "operator", testSecret)).Code, "stale cache until cleared")
	ClearPermissionCache("operator")
	assert.Equal(t, http.StatusOK, serve(r, signToken(t, "u1", "operator", testSecret)).Code)
	assert.Equal(t, int32(2), lookup.calls.Load())
}

func TestRequireRole(t *testing.T) {
	InitAuth(testSecret, &fakeLookup{}, time.Minute)

	r := gin.New()
	r.GET("/x", RequireRole("admin", "manager"), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("userRole"))
	})

	w := serve(r, signToken(t, "u1", "manager", testSecret))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "manager", w.Body.String())
	assert.Equal(t, http.StatusForbidden, serve(r, signToken(t, "u1", "operator", testSecret)).Code)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.GET("/x", RateLimiter(1, 2), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, "").Code)
	assert.Equal(t, http.StatusOK, serve(r, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, "").Code)
}

func TestCacheServesRepeatedGets(t *testing.T) {
	var hits atomic.Int32
	r := gin.New()
	r.GET("/x", Cache(cache.New(time.Minute, time.Minute), time.Minute), func(c *gin.Context) {
		hits.Add(1)
		c.JSON(http.StatusOK, gin.H{"n": hits.Load()})
	})

	first := serve(r, "")
	second := serve(r, "")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, int32(1), hits.Load())
}
