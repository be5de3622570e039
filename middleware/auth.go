package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/acbikash13/NepalPermit/pkg/logger"
	"github.com/acbikash13/NepalPermit/service"
	"github.com/gin-gonic/gin"
)

// SessionCookieName is the cookie holding the signed admin session token.
const SessionCookieName = "admin_session"

const usernameKey = "username"

// SessionVerifier resolves a session token to the admin it was issued to.
type SessionVerifier interface {
	Verify(token string) (string, error)
}

// SetSessionCookie stores token in an HttpOnly, SameSite=Strict cookie.
func SetSessionCookie(c *gin.Context, token string, lifetime time.Duration, secure bool) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(lifetime / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearSessionCookie expires the session cookie (Max-Age=0).
func ClearSessionCookie(c *gin.Context, secure bool) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Authenticate verifies the session cookie. On success the admin's name is stored
// in the gin and request contexts. Invalid or expired sessions get their cookie cleared.
func Authenticate(c *gin.Context, sessions SessionVerifier, secure bool) (string, error) {
	token, err := c.Cookie(SessionCookieName)
	if err != nil || token == "" {
		return "", service.ErrSessionMissing
	}

	username, err := sessions.Verify(token)
	if err != nil {
		ClearSessionCookie(c, secure)
		return "", err
	}

	c.Set(usernameKey, username)
	ctx := context.WithValue(c.Request.Context(), logger.UsernameKey, username)
	c.Request = c.Request.WithContext(ctx)
	return username, nil
}

// SessionAuth rejects requests without a valid admin session with 401.
func SessionAuth(sessions SessionVerifier, secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := Authenticate(c, sessions, secure); err != nil {
			logger.Debug(c.Request.Context(), "session rejected", "error", err)
			AbortWithError(c, http.StatusUnauthorized, SessionErrorMessage(err))
			return
		}

		c.Next()
	}
}

// SessionErrorMessage is the client message for a rejected session.
func SessionErrorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrSessionMissing):
		return "Not authenticated"
	case errors.Is(err, service.ErrSessionExpired):
		return "Session expired"
	default:
		return "Invalid session"
	}
}

// GetUsername gets the username from context
func GetUsername(c *gin.Context) string {
	return c.GetString(usernameKey)
}
