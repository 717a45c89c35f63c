package authz

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSubject is returned for a token without a subject claim.
var ErrNoSubject = errors.New("token has no subject")

// JWTConfig configures bearer token principals.
type JWTConfig struct {
	// PublicKeyPath is the PEM-encoded RSA public key for RS256 verification.
	// If empty, tokens are parsed but NOT verified (trusted proxy mode).
	PublicKeyPath string
	// Issuer is the expected iss claim. Empty skips the check.
	Issuer string
	// Audience is the expected aud claim. Empty skips the check.
	Audience string
}

// TokenVerifier extracts the principal name (the sub claim) from bearer
// tokens. Token issuance happens elsewhere.
type TokenVerifier struct {
	cfg       JWTConfig
	publicKey *rsa.PublicKey
}

// NewTokenVerifier loads the configured public key.
func NewTokenVerifier(cfg JWTConfig, logger *slog.Logger) (*TokenVerifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v := &TokenVerifier{cfg: cfg}
	if cfg.PublicKeyPath == "" {
		logger.Warn("no JWT public key configured, bearer tokens are parsed without verification")
		return v, nil
	}
	keyData, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read JWT public key from %s: %w", cfg.PublicKeyPath, err)
	}
	key, err := ParseRSAPublicKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.PublicKeyPath, err)
	}
	v.publicKey = key
	logger.Info("bearer tokens verified with RS256", "keyPath", cfg.PublicKeyPath)
	return v, nil
}

// ParseRSAPublicKey decodes a PEM-encoded PKIX RSA public key.
func ParseRSAPublicKey(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA (got %T)", parsed)
	}
	return key, nil
}

// Subject validates tokenString and returns its sub claim.
func (v *TokenVerifier) Subject(tokenString string) (string, error) {
	var opts []jwt.ParserOption
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	claims := jwt.MapClaims{}
	var err error
	if v.publicKey != nil {
		_, err = jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return v.publicKey, nil
		}, opts...)
	} else {
		_, _, err = jwt.NewParser(opts...).ParseUnverified(tokenString, claims)
	}
	if err != nil {
		return "", fmt.Errorf("JWT parse error: %w", err)
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", ErrNoSubject
	}
	return sub, nil
}

// extractBearerToken extracts the token from "Authorization: Bearer <token>".
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
