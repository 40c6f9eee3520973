package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const adminSubject = "admin"

var ErrInvalidCredentials = errors.New("invalid credentials")

// AdminAuthenticator exchanges the admin password for short-lived HS256
// tokens and guards admin routes with them.
type AdminAuthenticator struct {
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
	now          func() time.Time
}

func NewAdminAuthenticator(passwordHash, jwtSecret string, ttl time.Duration) *AdminAuthenticator {
	return &AdminAuthenticator{
		passwordHash: []byte(passwordHash),
		secret:       []byte(jwtSecret),
		ttl:          ttl,
		now:          time.Now,
	}
}

func (a *AdminAuthenticator) Login(password string) (string, time.Time, error) {
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}

	now := a.now().UTC()
	expiresAt := now.Add(a.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   adminSubject,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign admin token: %w", err)
	}
	return signed, expiresAt, nil
}

func (a *AdminAuthenticator) ParseToken(tokenStr string) error {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return err
	}
	if !token.Valid || claims.Subject != adminSubject {
		return ErrInvalidCredentials
	}
	return nil
}

func (a *AdminAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			respondWithError(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if err := a.ParseToken(strings.TrimPrefix(auth, "Bearer ")); err != nil {
			log.Warn().Err(err).Str("path", r.URL.Path).Msg("Rejected admin request")
			respondWithError(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
