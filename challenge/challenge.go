package challenge

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TTL is the length of the challenge window.
const TTL = 45 * time.Second

// Gesture is the body movement a challenge asks for.
type Gesture string

const (
	GestureLeftHandRaised  Gesture = "left-hand-raised"
	GestureRightHandRaised Gesture = "right-hand-raised"
	GestureTouchNose       Gesture = "touch-nose"
)

var gestures = []Gesture{GestureLeftHandRaised, GestureRightHandRaised, GestureTouchNose}

// Expression is the facial expression a challenge asks for.
type Expression string

const (
	ExpressionSmile Expression = "smile"
	ExpressionFrown Expression = "frown"
	ExpressionBlink Expression = "blink"
)

var expressions = []Expression{ExpressionSmile, ExpressionFrown, ExpressionBlink}

// Gestures returns every gesture kind, in draw order.
func Gestures() []Gesture {
	return append([]Gesture(nil), gestures...)
}

// Expressions returns every expression kind, in draw order.
func Expressions() []Expression {
	return append([]Expression(nil), expressions...)
}

func (g Gesture) Valid() bool {
	for _, known := range gestures {
		if g == known {
			return true
		}
	}
	return false
}

func (e Expression) Valid() bool {
	for _, known := range expressions {
		if e == known {
			return true
		}
	}
	return false
}

func ParseGesture(s string) (Gesture, error) {
	g := Gesture(strings.ToLower(strings.TrimSpace(s)))
	if !g.Valid() {
		return "", fmt.Errorf("unknown gesture: %q", s)
	}
	return g, nil
}

func ParseExpression(s string) (Expression, error) {
	e := Expression(strings.ToLower(strings.TrimSpace(s)))
	if !e.Valid() {
		return "", fmt.Errorf("unknown expression: %q", s)
	}
	return e, nil
}

// Challenge identifies one verification attempt. It is a value type and is
// never modified after GenerateChallenge returns it.
type Challenge struct {
	ID         string
	Gesture    Gesture
	Expression Expression
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Expired reports whether now is past the challenge deadline.
func (c Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Source supplies the randomness for challenge selection, identifiers and
// token suffixes. *rand.Rand satisfies it but is not safe for concurrent use;
// NewLockedSource wraps one for sharing between sessions.
type Source interface {
	io.Reader
	Intn(n int) int
}

type lockedSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewLockedSource returns a Source seeded from seed that can be shared
// across goroutines.
func NewLockedSource(seed int64) Source {
	return &lockedSource{rnd: rand.New(rand.NewSource(seed))}
}

func (s *lockedSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Intn(n)
}

func (s *lockedSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Read(p)
}

// Generator hands out challenges. It is safe for concurrent use as long as
// its Source is.
type Generator struct {
	now    func() time.Time
	source Source
}

// Option configures a Generator.
type Option func(*Generator)

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func WithSource(source Source) Option {
	return func(g *Generator) { g.source = source }
}

func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		now:    time.Now,
		source: NewLockedSource(time.Now().UnixNano()),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateChallenge draws a gesture and an expression independently and
// uniformly at random and stamps the challenge with a TTL deadline.
func (g *Generator) GenerateChallenge() Challenge {
	now := g.now()
	c := Challenge{
		ID:         g.newID(),
		Gesture:    gestures[g.source.Intn(len(gestures))],
		Expression: expressions[g.source.Intn(len(expressions))],
		CreatedAt:  now,
		ExpiresAt:  now.Add(TTL),
	}
	slog.Debug("Challenge generated", "challenge_id", c.ID, "gesture", c.Gesture, "expression", c.Expression)
	return c
}

func (g *Generator) newID() string {
	id, err := uuid.NewRandomFromReader(g.source)
	if err != nil {
		// a short read from a custom source only costs us determinism
		slog.Warn("Challenge source failed, falling back to system randomness", "error", err)
		id = uuid.New()
	}
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
}
