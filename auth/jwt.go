package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
)

// Config configures bearer token verification.
type Config struct {
	// HMACSecret verifies HS256/HS384/HS512 signatures.
	HMACSecret string
	// Issuer and Audience are enforced when set.
	Issuer   string
	Audience string
	// Leeway tolerates clock skew on exp, nbf and iat.
	Leeway time.Duration
}

// Claims are the token claims the backend reads.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier implements interfaces.SubjectVerifier for HMAC-signed JWTs.
// The subject claim becomes the user id.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTVerifier(cfg Config) (*JWTVerifier, error) {
	secret := []byte(strings.TrimSpace(cfg.HMACSecret))
	if len(secret) < 32 {
		return nil, interfaces.NewError(interfaces.KindConfiguration, "jwt secret must be at least 32 bytes", nil)
	}
	if cfg.Leeway <= 0 {
		cfg.Leeway = 30 * time.Second
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &JWTVerifier{secret: secret, parser: jwt.NewParser(opts...)}, nil
}

// Verify checks token and returns the subject it was issued to.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (interfaces.AuthenticatedSubject, error) {
	if token == "" {
		return interfaces.AuthenticatedSubject{}, interfaces.NewError(interfaces.KindUnauthorized, "missing bearer token", nil)
	}

	var claims Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		msg := "invalid token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			msg = "token expired"
		}
		return interfaces.AuthenticatedSubject{}, interfaces.NewError(interfaces.KindUnauthorized, msg, err)
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" || subject == interfaces.OperatorUserID {
		return interfaces.AuthenticatedSubject{}, interfaces.NewError(interfaces.KindUnauthorized, "token has no usable subject", nil)
	}
	return interfaces.AuthenticatedSubject{UserID: subject, Email: claims.Email}, nil
}

// IssueToken signs an HS256 token for subject, valid for ttl. It serves
// local development and tests; production tokens come from the identity
// provider sharing the secret.
func IssueToken(cfg Config, subject interfaces.AuthenticatedSubject, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: subject.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.UserID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(cfg.HMACSecret)))
}
