package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"student-records/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

var errInvalidToken = errors.New("invalid or expired token")

// TokenIssuer produces the bearer token returned by a successful login.
type TokenIssuer interface {
	Issue(studentID int, username string) (string, error)
}

// UsernameIssuer returns the username itself as the token.
// It is not a credential: anyone who knows a username can present it.
// Kept as the default so existing clients keep working; set
// auth.token_mode=jwt to issue signed tokens instead.
type UsernameIssuer struct{}

func (UsernameIssuer) Issue(_ int, username string) (string, error) {
	return username, nil
}

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTIssuer signs HS256 tokens that expire after ttl.
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTIssuer(secret string, ttl time.Duration) *JWTIssuer {
	return &JWTIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (j *JWTIssuer) Issue(studentID int, username string) (string, error) {
	now := j.now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(studentID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// parse validates a token issued by j and returns its claims.
func (j *JWTIssuer) parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

// NewTokenIssuer picks the issuer for cfg.TokenMode.
func NewTokenIssuer(cfg config.AuthConfig) (TokenIssuer, error) {
	switch cfg.TokenMode {
	case "", config.TokenModeUsername:
		return UsernameIssuer{}, nil
	case config.TokenModeJWT:
		if cfg.JWTSecret == "" {
			return nil, errors.New("jwt secret is not configured")
		}
		ttl := time.Duration(cfg.TokenTTLMinutes) * time.Minute
		if ttl <= 0 {
			ttl = time.Hour
		}
		return NewJWTIssuer(cfg.JWTSecret, ttl), nil
	default:
		return nil, fmt.Errorf("unknown token mode %q", cfg.TokenMode)
	}
}
