package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionCookieName is the cookie holding the signed session token.
const SessionCookieName = "recipebox_session"

const sessionIssuer = "recipebox"

// SessionClaims are the claims carried by a session token. The subject is
// the user id.
type SessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Sessions issues and validates session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	secure bool
}

func NewSessions(secret string, ttl time.Duration, secure bool) *Sessions {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, secure: secure}
}

// Issue returns a signed token for the user and its expiry.
func (s *Sessions) Issue(userID uuid.UUID, email string) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(s.ttl)
	claims := SessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, expires, nil
}

// Parse validates a token and returns the user id it was issued for.
func (s *Sessions) Parse(token string) (uuid.UUID, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(sessionIssuer))
	if err != nil || !parsed.Valid {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", ErrInvalidSession)
	}
	return id, nil
}

// SetCookie writes the session cookie.
func (s *Sessions) SetCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (s *Sessions) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest returns the session token carried by r, if any.
func FromRequest(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
