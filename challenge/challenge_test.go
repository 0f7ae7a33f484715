package challenge

import (
	"errors"
	"math/rand"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)

func TestGenerateChallenge(t *testing.T) {
	gen := NewGenerator(
		WithClock(func() time.Time { return fixedNow }),
		WithSource(rand.New(rand.NewSource(1))),
	)

	idPattern := regexp.MustCompile(`^[A-Z0-9]+$`)
	for i := 0; i < 100; i++ {
		c := gen.GenerateChallenge()
		require.True(t, c.Gesture.Valid(), "gesture %q", c.Gesture)
		require.True(t, c.Expression.Valid(), "expression %q", c.Expression)
		require.Equal(t, 45000*time.Millisecond, c.ExpiresAt.Sub(c.CreatedAt))
		require.Equal(t, fixedNow, c.CreatedAt)
		require.Regexp(t, idPattern, c.ID)
		require.Len(t, c.ID, 32)
	}
}

func TestGenerateChallengeCoversAllKinds(t *testing.T) {
	gen := NewGenerator(WithSource(rand.New(rand.NewSource(7))))

	gestures := map[Gesture]int{}
	expressions := map[Expression]int{}
	pairs := map[[2]string]bool{}
	for i := 0; i < 900; i++ {
		c := gen.GenerateChallenge()
		gestures[c.Gesture]++
		expressions[c.Expression]++
		pairs[[2]string{string(c.Gesture), string(c.Expression)}] = true
	}

	require.Len(t, gestures, 3)
	require.Len(t, expressions, 3)
	// independent draws reach every combination
	require.Len(t, pairs, 9)
	for g, n := range gestures {
		require.Greater(t, n, 200, "gesture %s drawn too rarely", g)
	}
	for e, n := range expressions {
		require.Greater(t, n, 200, "expression %s drawn too rarely", e)
	}
}

func TestGenerateChallengeIdsAreUnique(t *testing.T) {
	gen := NewGenerator()
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := gen.GenerateChallenge().ID
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestGenerateChallengeIsReproducible(t *testing.T) {
	clock := WithClock(func() time.Time { return fixedNow })
	a := NewGenerator(clock, WithSource(rand.New(rand.NewSource(42)))).GenerateChallenge()
	b := NewGenerator(clock, WithSource(rand.New(rand.NewSource(42)))).GenerateChallenge()
	require.Equal(t, a, b)
}

type failingSource struct{}

func (failingSource) Intn(int) int { return 0 }

func (failingSource) Read([]byte) (int, error) { return 0, errors.New("exhausted") }

func TestGenerateChallengeSurvivesBrokenSource(t *testing.T) {
	c := NewGenerator(WithSource(failingSource{})).GenerateChallenge()
	require.Len(t, c.ID, 32)
	require.Equal(t, GestureLeftHandRaised, c.Gesture)
	require.Equal(t, ExpressionSmile, c.Expression)
}

func TestKindListsAreCopies(t *testing.T) {
	g := Gestures()
	g[0] = "wave"
	e := Expressions()
	e[0] = "wink"

	require.Equal(t, GestureLeftHandRaised, Gestures()[0])
	require.Equal(t, ExpressionSmile, Expressions()[0])

	c := NewGenerator(WithSource(failingSource{})).GenerateChallenge()
	require.Equal(t, GestureLeftHandRaised, c.Gesture)
	require.Equal(t, ExpressionSmile, c.Expression)
}

func TestExpired(t *testing.T) {
	c := NewGenerator(WithClock(func() time.Time { return fixedNow })).GenerateChallenge()

	require.False(t, c.Expired(fixedNow))
	require.False(t, c.Expired(c.ExpiresAt))
	require.True(t, c.Expired(c.ExpiresAt.Add(time.Millisecond)))
}

func TestParseGesture(t *testing.T) {
	t.Run("known values", func(t *testing.T) {
		for _, g := range Gestures() {
			parsed, err := ParseGesture(string(g))
			require.NoError(t, err)
			require.Equal(t, g, parsed)
		}
	})

	t.Run("case and whitespace are ignored", func(t *testing.T) {
		parsed, err := ParseGesture("  Touch-Nose ")
		require.NoError(t, err)
		require.Equal(t, GestureTouchNose, parsed)
	})

	t.Run("unknown value", func(t *testing.T) {
		_, err := ParseGesture("wave")
		require.ErrorContains(t, err, "unknown gesture")
	})
}

func TestParseExpression(t *testing.T) {
	parsed, err := ParseExpression("BLINK")
	require.NoError(t, err)
	require.Equal(t, ExpressionBlink, parsed)

	_, err = ParseExpression("")
	require.ErrorContains(t, err, "unknown expression")
}

func TestLockedSourceConcurrentUse(t *testing.T) {
	gen := NewGenerator(WithSource(NewLockedSource(3)))
	done := make(chan Challenge)
	for i := 0; i < 8; i++ {
		go func() { done <- gen.GenerateChallenge() }()
	}
	for i := 0; i < 8; i++ {
		c := <-done
		require.True(t, c.Gesture.Valid())
	}
}
