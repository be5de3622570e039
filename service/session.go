package service

import (
	"errors"
	"time"

	"github.com/acbikash13/NepalPermit/config"
	"github.com/golang-jwt/jwt/v5"
)

const sessionIssuer = "nepal-permit-admin"

// SessionClaims are carried in the admin session token.
type SessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// SessionManager authenticates admins and issues signed session tokens.
type SessionManager struct {
	config *config.Config
	now    func() time.Time
}

func NewSessionManager(cfg *config.Config) *SessionManager {
	return &SessionManager{config: cfg, now: time.Now}
}

// Lifetime is how long an issued session stays valid.
func (m *SessionManager) Lifetime() time.Duration {
	return time.Duration(m.config.Auth.TokenExpireHours) * time.Hour
}

// Login checks the credentials and issues a session token for the admin.
func (m *SessionManager) Login(username, password string) (string, time.Time, error) {
	user := m.config.FindUser(username)
	if user == nil || !user.CheckPassword(password) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return m.Issue(user.Username)
}

// Issue signs a session token for username.
func (m *SessionManager) Issue(username string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.Lifetime())

	claims := SessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(m.config.Auth.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// Verify returns the admin named in a valid token.
func (m *SessionManager) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrSessionInvalid
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(m.config.Auth.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrSessionExpired
		}
		return "", ErrSessionInvalid
	}
	if !token.Valid || claims.Username == "" {
		return "", ErrSessionInvalid
	}

	return claims.Username, nil
}
