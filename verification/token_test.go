package verification

import (
	"math/rand"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
)

func TestIssueAndInspectToken(t *testing.T) {
	issuer := NewAccessTokenIssuer(rand.New(rand.NewSource(5)), 5*time.Minute)
	now := time.Date(2025, time.March, 15, 10, 0, 0, 700_000_000, time.UTC)

	token, err := issuer.Issue("ABC123", now)
	require.NoError(t, err)
	require.Len(t, strings.Split(token, "."), 3)

	claims, err := InspectToken(token)
	require.NoError(t, err)
	require.Equal(t, "ABC123", claims.ChallengeID)
	require.Equal(t, 5*time.Minute, claims.ExpiresAt.Sub(claims.IssuedAt))
	require.Equal(t, now.Unix(), claims.IssuedAt.Unix())
	require.False(t, claims.Signed)
	require.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9]{16}$`), claims.Suffix)

	var raw jwt.RegisteredClaims
	_, _, err = jwt.NewParser().ParseUnverified(token, &raw)
	require.NoError(t, err)
	require.Equal(t, claims.Suffix, raw.ID)
	require.Equal(t, TokenIssuer, raw.Issuer)
}

func TestTokenSuffixesDiffer(t *testing.T) {
	issuer := NewAccessTokenIssuer(rand.New(rand.NewSource(5)), time.Minute)
	now := time.Now()

	a, err := issuer.Issue("SAME", now)
	require.NoError(t, err)
	b, err := issuer.Issue("SAME", now)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestTokenSuffixIsReproducible(t *testing.T) {
	now := time.Now()
	a, err := NewAccessTokenIssuer(rand.New(rand.NewSource(8)), time.Minute).Issue("X", now)
	require.NoError(t, err)
	b, err := NewAccessTokenIssuer(rand.New(rand.NewSource(8)), time.Minute).Issue("X", now)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestInspectTokenErrors(t *testing.T) {
	t.Run("wrong segment count", func(t *testing.T) {
		_, err := InspectToken("abc.def")
		require.ErrorContains(t, err, "malformed token")
	})

	t.Run("garbage segments", func(t *testing.T) {
		_, err := InspectToken("!!.??.xx")
		require.ErrorContains(t, err, "failed to decode token")
	})

	t.Run("signed tokens are not ours", func(t *testing.T) {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "X",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}).SignedString([]byte("secret"))
		require.NoError(t, err)

		_, err = InspectToken(signed)
		require.ErrorContains(t, err, "unexpected token algorithm")
	})

	t.Run("missing timestamps", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "X"}).SigningString()
		require.NoError(t, err)

		_, err = InspectToken(unsigned + ".suffix")
		require.ErrorContains(t, err, "missing iat or exp")
	})

	t.Run("suffix swapped after issue", func(t *testing.T) {
		token, err := NewAccessTokenIssuer(rand.New(rand.NewSource(3)), time.Minute).Issue("X", time.Now())
		require.NoError(t, err)
		parts := strings.Split(token, ".")

		_, err = InspectToken(parts[0] + "." + parts[1] + ".AAAAAAAAAAAAAAAA")
		require.ErrorContains(t, err, "does not match jti")
	})
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.Equal(t, 5*time.Minute, DefaultConfig().TokenValidity())

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"zero min frames", func(c *Config) { c.MinFrames = 0 }, "min_frames"},
		{"pass ratio above one", func(c *Config) { c.MinPassRatio = 1.5 }, "min_pass_ratio"},
		{"zero saturation", func(c *Config) { c.ScoreSaturationRatio = 0 }, "score_saturation_ratio"},
		{"negative threshold", func(c *Config) { c.SmileMouthWidth = -1 }, "classification thresholds"},
		{"zero variance", func(c *Config) { c.LivenessVariance = 0 }, "liveness_variance"},
		{"zero token validity", func(c *Config) { c.TokenValiditySeconds = 0 }, "token_validity_seconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}
