package verification

import (
	"fmt"
	"strings"
	"time"

	"go-liveness-verifier/challenge"

	"github.com/golang-jwt/jwt/v4"
)

const (
	TokenIssuer       = "liveness-verifier"
	tokenSuffixLength = 16
	tokenAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// TokenClaims is the decoded content of an access token.
type TokenClaims struct {
	ChallengeID string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Suffix      string
	// Always false: the suffix is random, not a signature.
	Signed bool
}

// AccessTokenIssuer encodes access tokens as unsigned JWTs ("alg": "none")
// whose third segment is a random alphanumeric suffix. The suffix is NOT a
// signature: anyone can mint or alter a token. Consumers must not treat these
// tokens as tamper-proof; a real deployment has to replace this with a keyed
// signing scheme.
type AccessTokenIssuer struct {
	source   challenge.Source
	validity time.Duration
}

func NewAccessTokenIssuer(source challenge.Source, validity time.Duration) *AccessTokenIssuer {
	return &AccessTokenIssuer{source: source, validity: validity}
}

func (ti *AccessTokenIssuer) Issue(challengeID string, now time.Time) (string, error) {
	suffix := ti.randomSuffix()
	claims := jwt.RegisteredClaims{
		Issuer:    TokenIssuer,
		Subject:   challengeID,
		ID:        suffix,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ti.validity)),
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SigningString()
	if err != nil {
		return "", fmt.Errorf("failed to encode token claims: %w", err)
	}
	return unsigned + "." + suffix, nil
}

func (ti *AccessTokenIssuer) randomSuffix() string {
	var sb strings.Builder
	sb.Grow(tokenSuffixLength)
	for i := 0; i < tokenSuffixLength; i++ {
		sb.WriteByte(tokenAlphabet[ti.source.Intn(len(tokenAlphabet))])
	}
	return sb.String()
}

// InspectToken decodes a token without any integrity check, which is the only
// kind of check these tokens support.
func InspectToken(token string) (TokenClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return TokenClaims{}, fmt.Errorf("malformed token: expected 3 segments, got %d", len(parts))
	}

	var claims jwt.RegisteredClaims
	parsed, _, err := jwt.NewParser().ParseUnverified(token, &claims)
	if err != nil {
		return TokenClaims{}, fmt.Errorf("failed to decode token: %w", err)
	}
	if parsed.Method.Alg() != jwt.SigningMethodNone.Alg() {
		return TokenClaims{}, fmt.Errorf("unexpected token algorithm %q", parsed.Method.Alg())
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return TokenClaims{}, fmt.Errorf("token is missing iat or exp")
	}
	// the jti repeats the suffix
	if claims.ID != parts[2] {
		return TokenClaims{}, fmt.Errorf("token suffix does not match jti")
	}

	return TokenClaims{
		ChallengeID: claims.Subject,
		IssuedAt:    claims.IssuedAt.Time,
		ExpiresAt:   claims.ExpiresAt.Time,
		Suffix:      parts[2],
		Signed:      false,
	}, nil
}
