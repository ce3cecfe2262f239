package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cwrk-planet/collab-service/internal/domain"

	"github.com/golang-jwt/jwt"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired or not yet valid")
	ErrInvalidIssuer   = errors.New("invalid token issuer")
	ErrInvalidAudience = errors.New("invalid token audience")
	ErrInvalidSubject  = errors.New("invalid token subject")
)

type AccessClaims struct {
	jwt.StandardClaims
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// Verifier: RS256, verify only
type Verifier struct {
	public    *rsa.PublicKey
	issuer    string
	audience  string
	clockSkew time.Duration
	now       func() time.Time
}

func NewVerifier(public *rsa.PublicKey, issuer, audience string, clockSkew time.Duration) *Verifier {
	return &Verifier{
		public:    public,
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
		now:       time.Now,
	}
}

func (v *Verifier) ParseAndValidate(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parser := &jwt.Parser{SkipClaimsValidation: true} // exp/nbf checked below with skew
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok || t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, ErrInvalidToken
		}
		return v.public, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if !claims.VerifyIssuer(v.issuer, true) {
		return nil, ErrInvalidIssuer
	}
	if v.audience != "" && !claims.VerifyAudience(v.audience, true) {
		return nil, ErrInvalidAudience
	}

	now := v.now()
	if claims.ExpiresAt == 0 {
		return nil, ErrTokenExpired
	}
	exp := time.Unix(claims.ExpiresAt, 0).Add(v.clockSkew)
	nbf := time.Unix(claims.NotBefore, 0).Add(-v.clockSkew)
	if now.After(exp) || now.Before(nbf) {
		return nil, ErrTokenExpired
	}

	return claims, nil
}

func (v *Verifier) Verify(tokenStr string) (domain.Principal, error) {
	claims, err := v.ParseAndValidate(tokenStr)
	if err != nil {
		return domain.Principal{}, err
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" || domain.IsAnonymousUserID(sub) {
		return domain.Principal{}, ErrInvalidSubject
	}

	return domain.Principal{
		UserID: sub,
		Name:   claims.Name,
		Email:  claims.Email,
		Image:  claims.Picture,
	}, nil
}

func LoadRSAPublicKeyFromPEM(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(b)
	if err != nil {
		return nil, fmt.Errorf("parse public key %s: %w", path, err)
	}

	return pub, nil
}
