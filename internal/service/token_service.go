package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/feellog-api/internal/models"
)

// Token parsing failures. Callers map all of them to an unauthorized response.
var (
	ErrTokenMalformed        = errors.New("token is malformed")
	ErrTokenInvalidSignature = errors.New("token signature is invalid")
	ErrTokenExpired          = errors.New("token has expired")
	ErrTokenWrongType        = errors.New("token type mismatch")
)

// TokenConfig defines signing material and lifetimes for issued tokens.
// HMAC algorithms use Secret; RSA and ECDSA algorithms use the PEM key pair.
type TokenConfig struct {
	Algorithm     string
	Secret        string
	PrivateKeyPEM []byte
	PublicKeyPEM  []byte
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenService issues and verifies signed access and refresh tokens.
type TokenService struct {
	method     jwt.SigningMethod
	signKey    interface{}
	verifyKey  interface{}
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService validates cfg and loads its keys.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	alg := strings.ToUpper(cfg.Algorithm)
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method := jwt.GetSigningMethod(alg)
	if method == nil || alg == "NONE" {
		return nil, fmt.Errorf("unsupported jwt algorithm %q", cfg.Algorithm)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}

	svc := &TokenService{
		method:     method,
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}

	var err error
	switch method.(type) {
	case *jwt.SigningMethodHMAC:
		if cfg.Secret == "" {
			return nil, errors.New("jwt secret is required for HMAC algorithms")
		}
		svc.signKey = []byte(cfg.Secret)
		svc.verifyKey = svc.signKey
	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
		if svc.signKey, err = jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKeyPEM); err != nil {
			return nil, fmt.Errorf("parse rsa private key: %w", err)
		}
		if svc.verifyKey, err = jwt.ParseRSAPublicKeyFromPEM(cfg.PublicKeyPEM); err != nil {
			return nil, fmt.Errorf("parse rsa public key: %w", err)
		}
	case *jwt.SigningMethodECDSA:
		if svc.signKey, err = jwt.ParseECPrivateKeyFromPEM(cfg.PrivateKeyPEM); err != nil {
			return nil, fmt.Errorf("parse ecdsa private key: %w", err)
		}
		if svc.verifyKey, err = jwt.ParseECPublicKeyFromPEM(cfg.PublicKeyPEM); err != nil {
			return nil, fmt.Errorf("parse ecdsa public key: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported jwt algorithm %q", alg)
	}

	return svc, nil
}

// RefreshTTL returns the configured refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccess signs a short-lived access token for subject.
func (s *TokenService) IssueAccess(subject string) (string, time.Time, error) {
	return s.issue(subject, models.TokenTypeAccess, s.accessTTL)
}

// IssueRefresh signs a long-lived refresh token for subject.
func (s *TokenService) IssueRefresh(subject string) (string, time.Time, error) {
	return s.issue(subject, models.TokenTypeRefresh, s.refreshTTL)
}

func (s *TokenService) issue(subject string, typ models.TokenType, ttl time.Duration) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("token subject is required")
	}
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(ttl)
	claims := &models.Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, expiresAt, nil
}

// Parse verifies signature and expiry and returns the decoded claims.
// It does not check the token type; use ParseAs where a specific type is required.
// An expired token with a valid signature yields both its claims and ErrTokenExpired.
func (s *TokenService) Parse(tokenString string) (*models.TokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims, err := s.parse(tokenString, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return s.parseExpired(tokenString)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrTokenInvalidSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}

	decoded := decode(claims)
	if decoded == nil {
		return nil, ErrTokenMalformed
	}
	return decoded, nil
}

// ParseAs parses the token and rejects it unless it carries the expected type.
// Expired tokens of the expected type are returned together with ErrTokenExpired.
func (s *TokenService) ParseAs(tokenString string, expected models.TokenType) (*models.TokenClaims, error) {
	claims, err := s.Parse(tokenString)
	if claims == nil {
		return nil, err
	}
	if claims.Type != expected {
		return nil, ErrTokenWrongType
	}
	return claims, err
}

// parseExpired verifies an expired token without time checks. Issuer and claim shape
// are still enforced so the expired path rejects the same tokens the live path does.
func (s *TokenService) parseExpired(tokenString string) (*models.TokenClaims, error) {
	expired, err := s.parse(tokenString, jwt.WithValidMethods([]string{s.method.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, ErrTokenInvalidSignature
	}
	if s.issuer != "" && expired.Issuer != s.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrTokenMalformed)
	}
	decoded := decode(expired)
	if decoded == nil {
		return nil, ErrTokenMalformed
	}
	return decoded, ErrTokenExpired
}

func (s *TokenService) parse(tokenString string, opts ...jwt.ParserOption) (*models.Claims, error) {
	claims := &models.Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.verifyKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func decode(claims *models.Claims) *models.TokenClaims {
	if claims == nil || claims.Subject == "" || claims.Type == "" || claims.ExpiresAt == nil {
		return nil
	}
	return &models.TokenClaims{
		Subject:   claims.Subject,
		Type:      claims.Type,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
		ID:        claims.ID,
	}
}
