package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

const (
	// TokenUseAccess marks short-lived tokens accepted by protected routes.
	TokenUseAccess = "access"
	// TokenUseRefresh marks tokens accepted only by the refresh endpoint.
	TokenUseRefresh = "refresh"

	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
)

var (
	// ErrTokenInvalid indicates the token failed signature or claim validation.
	ErrTokenInvalid = errors.New("jwt: invalid token")
	// ErrTokenExpired indicates the token is past its expiry.
	ErrTokenExpired = errors.New("jwt: token expired")
	// ErrTokenWrongUse indicates an access token was presented where a
	// refresh token is required, or vice versa.
	ErrTokenWrongUse = errors.New("jwt: wrong token use")
)

// StaffClaims augments registered claims with account context.
type StaffClaims struct {
	Kind        string `json:"kind"`
	IdentityKey string `json:"idk"`
	TokenUse    string `json:"token_use"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies symmetric-key staff tokens.
type TokenIssuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer. Zero TTLs fall back to the
// package defaults.
func NewTokenIssuer(secret, issuer string, accessTTL, refreshTTL time.Duration) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("jwt: signing secret is required")
	}
	if accessTTL <= 0 {
		accessTTL = defaultAccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTokenTTL
	}
	return &TokenIssuer{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// WithClock overrides the issuer time source for tests.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	t.now = now
	return t
}

// IssuePair returns an access and refresh token for the account.
func (t *TokenIssuer) IssuePair(accountID, kind, identityKey string) (access string, refresh string, err error) {
	access, err = t.issue(accountID, kind, identityKey, TokenUseAccess, t.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = t.issue(accountID, kind, identityKey, TokenUseRefresh, t.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (t *TokenIssuer) issue(accountID, kind, identityKey, use string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(accountID) == "" {
		return "", fmt.Errorf("jwt: account id is required")
	}

	now := t.now().UTC()
	claims := &StaffClaims{
		Kind:        kind,
		IdentityKey: identityKey,
		TokenUse:    use,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// Parse validates the token signature and claims and enforces the
// expected token use.
func (t *TokenIssuer) Parse(tokenString, expectedUse string) (*StaffClaims, error) {
	claims := &StaffClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrTokenInvalid, token.Header["alg"])
		}
		return t.secret, nil
	},
		jwt.WithIssuer(t.issuer),
		jwt.WithTimeFunc(func() time.Time { return t.now().UTC() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenUse != expectedUse {
		return nil, ErrTokenWrongUse
	}
	return claims, nil
}
