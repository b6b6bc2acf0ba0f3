package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/kartshart/kartshart-backend/internal/errors"
	"github.com/kartshart/kartshart-backend/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-jwt-secret-for-middleware"

func setupMiddlewareTest() (*gin.Engine, *AuthMiddleware) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(LoggingMiddleware())
	return router, NewAuthMiddleware(testJWTSecret)
}

func generateTestTokens(t *testing.T, userID uint) *util.TokenPair {
	tokens, err := util.GenerateTokenPair(userID, "shopper@example.com", "customer", testJWTSecret, 15*time.Minute, time.Hour)
	require.NoError(t, err)
	return tokens
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apperrors.ErrorResponse {
	var body apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthMiddleware_Authenticate_Success(t *testing.T) {
	router, auth := setupMiddlewareTest()
	token := generateTestTokens(t, 9).AccessToken

	router.GET("/test", auth.Authenticate(), func(c *gin.Context) {
		userID, ok := GetUserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "ok": ok})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id": 9, "ok": true}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestAuthMiddleware_Authenticate_Rejections(t *testing.T) {
	router, auth := setupMiddlewareTest()
	router.GET("/test", auth.Authenticate(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	expired, err := util.GenerateToken(1, "", "", util.TokenTypeAccess, testJWTSecret, -time.Minute)
	require.NoError(t, err)
	refresh := generateTestTokens(t, 1).RefreshToken

	tests := []struct {
		name     string
		header   string
		wantCode string
	}{
		{"missing header", "", apperrors.AuthUnauthorized},
		{"wrong scheme", "Basic abc", apperrors.AuthTokenInvalid},
		{"no token", "Bearer", apperrors.AuthTokenInvalid},
		{"garbage token", "Bearer not-a-jwt", apperrors.AuthTokenInvalid},
		{"expired token", "Bearer " + expired, apperrors.AuthTokenExpired},
		{"refresh token", "Bearer " + refresh, apperrors.AuthTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, w).Error)
		})
	}
}

func TestAuthMiddleware_OptionalAuthenticate(t *testing.T) {
	router, auth := setupMiddlewareTest()
	router.GET("/test", auth.OptionalAuthenticate(), func(c *gin.Context) {
		_, ok := GetUserID(c)
		c.JSON(http.StatusOK, gin.H{"authenticated": ok})
	})

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"guest", "", false},
		{"invalid token", "Bearer nope", false},
		{"valid token", "Bearer " + generateTestTokens(t, 3).AccessToken, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			var body map[string]bool
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body["authenticated"])
		})
	}
}

func TestLoggingMiddleware_KeepsIncomingRequestID(t *testing.T) {
	router, _ := setupMiddlewareTest()
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(RequestIDKey))
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Body.String())
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
}
