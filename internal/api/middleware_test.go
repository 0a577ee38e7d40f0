package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZJUSCT/slotgarage/internal/auth"
	"github.com/ZJUSCT/slotgarage/internal/config"
)

func TestAuthMiddlewareSetsIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware("secret"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": UserID(c), "username": Username(c)})
	})

	token, err := auth.GenerateJWT("u1", "anna", "secret", 1)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Token " + token, http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusOK {
				assert.JSONEq(t, `{"id":"u1","username":"anna"}`, w.Body.String())
			}
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	newRouter := func(origins ...string) *gin.Engine {
		r := gin.New()
		r.Use(CORSMiddleware(config.CORS{AllowedOrigins: origins}))
		r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
		return r
	}
	request := func(r *gin.Engine, method, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/ping", nil)
		req.Header.Set("Origin", origin)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	r := newRouter("http://garage.test")
	w := request(r, http.MethodGet, "http://garage.test")
	assert.Equal(t, "http://garage.test", w.Header().Get("Access-Control-Allow-Origin"))
	w = request(r, http.MethodGet, "http://evil.test")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusNoContent, request(r, http.MethodOptions, "http://garage.test").Code)

	w = request(newRouter("*"), http.MethodGet, "http://anywhere.test")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
