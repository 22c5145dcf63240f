package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shugur-Network/roomchat/internal/config"
	"github.com/Shugur-Network/roomchat/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken means the request carried no bearer token.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken wraps every verification failure.
	ErrInvalidToken = errors.New("invalid token")
)

// claims is the token payload. sub carries the username.
type claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// Verifier checks bearer tokens signed with the shared HMAC secret and mints
// new ones for development.
type Verifier struct {
	key    []byte
	method jwt.SigningMethod
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewVerifier builds a Verifier from the auth config section.
func NewVerifier(cfg config.AuthConfig) (*Verifier, error) {
	method, ok := jwt.GetSigningMethod(cfg.Algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth secret is empty")
	}
	return &Verifier{
		key:    []byte(cfg.Secret),
		method: method,
		issuer: cfg.Issuer,
		ttl:    cfg.TokenTTL,
		now:    time.Now,
	}, nil
}

// Verify parses token and returns the identity it names.
func (v *Verifier) Verify(token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	subject := strings.TrimSpace(c.Subject)
	if subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return domain.Identity{Subject: subject, DisplayName: c.Name}, nil
}

// Mint signs a token for subject valid for the configured TTL.
func (v *Verifier) Mint(subject, name string) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("subject is required")
	}
	now := v.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
		Name: name,
	}
	return jwt.NewWithClaims(v.method, c).SignedString(v.key)
}
