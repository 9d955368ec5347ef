package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService issues and verifies HS256 access tokens whose subject is
// the user id.
type TokenService struct {
	secret    []byte
	expiresIn time.Duration
	now       func() time.Time
}

// tokenClaims extends the registered claims with a microsecond issue time,
// since iat only has second precision.
type tokenClaims struct {
	jwt.RegisteredClaims
	IssuedAtMicros int64 `json:"iat_us,omitempty"`
}

// Claims is the verified content of an access token.
type Claims struct {
	UserID   string
	IssuedAt time.Time
}

func NewTokenService(secret string, expiresIn time.Duration) *TokenService {
	return &TokenService{
		secret:    []byte(secret),
		expiresIn: expiresIn,
		now:       time.Now,
	}
}

// Issue creates a token for userID using the default TTL.
func (t *TokenService) Issue(userID string) (string, error) {
	return t.IssueWithTTL(userID, t.expiresIn)
}

func (t *TokenService) IssueWithTTL(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("token subject must not be empty")
	}
	now := t.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		IssuedAtMicros: now.UnixMicro(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify validates signature and expiry and returns the claims.
func (t *TokenService) Verify(tokenStr string) (*Claims, error) {
	var tc tokenClaims
	token, err := jwt.ParseWithClaims(tokenStr, &tc, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid || tc.Subject == "" {
		return nil, jwt.ErrTokenMalformed
	}
	c := &Claims{UserID: tc.Subject}
	switch {
	case tc.IssuedAtMicros != 0:
		c.IssuedAt = time.UnixMicro(tc.IssuedAtMicros)
	case tc.IssuedAt != nil:
		c.IssuedAt = tc.IssuedAt.Time
	}
	return c, nil
}
