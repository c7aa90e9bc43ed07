package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sccms-api/internal/models"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
	token  string
}

func (v *validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	v.token = token
	if v.claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

func newAuthRouter(v TokenValidator, guards ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{JWT(v)}, guards...)
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": CurrentClaims(c).UserID})
	})
	r.GET("/users/:id", handlers...)
	return r
}

func serve(r *gin.Engine, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTRejectsMissingOrMalformedHeader(t *testing.T) {
	r := newAuthRouter(&validatorStub{claims: &models.JWTClaims{UserID: "u1"}})

	assert.Equal(t, http.StatusUnauthorized, serve(r, "/users/u1", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/users/u1", "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/users/u1", "Bearer ").Code)
}

func TestJWTRejectsInvalidToken(t *testing.T) {
	v := &validatorStub{}
	w := serve(newAuthRouter(v), "/users/u1", "Bearer expired")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "expired", v.token)
}

func TestJWTAttachesClaims(t *testing.T) {
	w := serve(newAuthRouter(&validatorStub{claims: &models.JWTClaims{UserID: "u1", Role: models.RoleStaff}}), "/users/u1", "bearer good")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"u1"}`, w.Body.String())
}

func TestRBAC(t *testing.T) {
	staff := &validatorStub{claims: &models.JWTClaims{UserID: "u1", Role: models.RoleStaff}}
	manager := &validatorStub{claims: &models.JWTClaims{UserID: "m1", Role: models.RoleManager}}

	t.Run("role allowed", func(t *testing.T) {
		r := newAuthRouter(manager, RequireRoles(models.RoleAdmin, models.RoleManager))
		assert.Equal(t, http.StatusOK, serve(r, "/users/u1", "Bearer x").Code)
	})

	t.Run("role denied", func(t *testing.T) {
		r := newAuthRouter(staff, RequireRoles(models.RoleAdmin, models.RoleManager))
		assert.Equal(t, http.StatusForbidden, serve(r, "/users/u1", "Bearer x").Code)
	})

	t.Run("self allowed only on own id", func(t *testing.T) {
		r := newAuthRouter(staff, RBAC(string(models.RoleAdmin), Self))
		assert.Equal(t, http.StatusOK, serve(r, "/users/u1", "Bearer x").Code)
		assert.Equal(t, http.StatusForbidden, serve(r, "/users/u2", "Bearer x").Code)
	})
}

func TestRBACWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	RequireRoles(models.RoleAdmin)(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.True(t, c.IsAborted())
}

func TestCacheMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	assert.Nil(t, ExtractMeta(c))
	SetCacheHit(c, true)
	assert.Equal(t, true, ExtractMeta(c)["cache_hit"])
}
