package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kartshart/kartshart-backend/internal/app/model"
	apperrors "github.com/kartshart/kartshart-backend/internal/errors"
)

const SessionTokenKey = "session_token"

// SessionStore issues and refreshes anonymous session tokens.
type SessionStore interface {
	Issue(ctx context.Context) (string, error)
	Touch(ctx context.Context, token string) (bool, error)
}

type SessionMiddleware struct {
	store      SessionStore
	headerName string
	cookieName string
	ttl        time.Duration
	secure     bool
}

func NewSessionMiddleware(store SessionStore, headerName, cookieName string, ttl time.Duration, secure bool) *SessionMiddleware {
	return &SessionMiddleware{
		store:      store,
		headerName: headerName,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
	}
}

// Resolve attaches a session token to the request. A known token is
// refreshed; an unknown or missing one is replaced by a new token, except
// for authenticated users who already have an owner.
func (m *SessionMiddleware) Resolve() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := GetLoggerFromContext(c)
		ctx := c.Request.Context()
		_, authenticated := GetUserID(c)

		token := c.GetHeader(m.headerName)
		if token == "" {
			token, _ = c.Cookie(m.cookieName)
		}

		if token != "" {
			known, err := m.store.Touch(ctx, token)
			if err != nil {
				// Store outage: keep the caller's token so the cart stays reachable.
				log.Warn("Session store unavailable, trusting presented token", map[string]interface{}{
					"error": err.Error(),
				})
				m.attach(c, token)
				c.Next()
				return
			}
			if known || authenticated {
				m.attach(c, token)
				c.Next()
				return
			}
			log.Debug("Unknown session token, issuing a new one")
		}

		if authenticated {
			c.Next()
			return
		}

		issued, err := m.store.Issue(ctx)
		if err != nil {
			log.Error("Failed to issue session token", err)
			apperrors.AbortWithError(c, http.StatusServiceUnavailable, apperrors.AuthSessionUnavailable,
				"Could not start a shopping session. Please try again later")
			return
		}
		m.attach(c, issued)
		c.Next()
	}
}

func (m *SessionMiddleware) attach(c *gin.Context, token string) {
	c.Set(SessionTokenKey, token)
	c.Header(m.headerName, token)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, token, int(m.ttl.Seconds()), "/", "", m.secure, true)
}

// GetSessionToken returns the token attached by Resolve.
func GetSessionToken(c *gin.Context) string {
	return c.GetString(SessionTokenKey)
}

// GetOwner resolves the cart owner: the authenticated user wins over the
// session.
func GetOwner(c *gin.Context) model.Owner {
	if userID, ok := GetUserID(c); ok {
		return model.UserOwner(userID)
	}
	return model.SessionOwner(GetSessionToken(c))
}
