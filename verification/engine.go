package verification

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"go-liveness-verifier/challenge"
)

const (
	ReasonExpired      = "session expired"
	ReasonInsufficient = "insufficient biometric stream"
	ReasonAllValidated = "all factors validated"

	gesturePoints    = 40.0
	expressionPoints = 40.0
	livenessPoints   = 20.0
)

// Result is the outcome of one Verify call.
//
// Score is a confidence display value and is decoupled from Success: a
// session can score above zero and still fail, because Success requires every
// factor to pass while Score gives partial credit. Token is empty unless
// Success; see AccessTokenIssuer for what it does not guarantee.
type Result struct {
	Success bool
	Score   int
	Token   string
	Reasons []string

	GestureRatio    float64
	ExpressionRatio float64
	EyeVariance     float64
}

type Engine struct {
	cfg         Config
	gestures    map[challenge.Gesture]predicate
	expressions map[challenge.Expression]predicate
	tokens      *AccessTokenIssuer
}

func NewEngine(cfg Config, source challenge.Source) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid verification config: %w", err)
	}
	return &Engine{
		cfg:         cfg,
		gestures:    gesturePredicates(cfg),
		expressions: expressionPredicates(cfg),
		tokens:      NewAccessTokenIssuer(source, cfg.TokenValidity()),
	}, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Verify scores frames against c as of now. It never fails: every failure
// mode is a Result with Success=false and the reasons filled in.
func (e *Engine) Verify(c challenge.Challenge, frames []FrameRecord, now time.Time) Result {
	if c.Expired(now) {
		slog.Debug("Challenge expired before verification", "challenge_id", c.ID, "expires_at", c.ExpiresAt)
		return Result{Reasons: []string{ReasonExpired}}
	}
	if len(frames) < e.cfg.MinFrames {
		slog.Debug("Not enough frames to verify", "challenge_id", c.ID, "frames", len(frames), "min_frames", e.cfg.MinFrames)
		return Result{Reasons: []string{ReasonInsufficient}}
	}

	gestureOk := e.lookupGesture(c.Gesture)
	expressionOk := e.lookupExpression(c.Expression)

	var gesturePass, expressionPass int
	for _, f := range frames {
		if gestureOk(f.Landmarks) {
			gesturePass++
		}
		if expressionOk(f.Landmarks) {
			expressionPass++
		}
	}

	frameCount := float64(len(frames))
	gestureRatio := float64(gesturePass) / frameCount
	expressionRatio := float64(expressionPass) / frameCount
	variance := eyeRatioVariance(frames)

	gesturePassed := gestureRatio >= e.cfg.MinPassRatio
	expressionPassed := expressionRatio >= e.cfg.MinPassRatio
	livenessPassed := variance > e.cfg.LivenessVariance

	result := Result{
		Success:         gesturePassed && expressionPassed && livenessPassed,
		Score:           e.score(gestureRatio, expressionRatio, livenessPassed),
		GestureRatio:    gestureRatio,
		ExpressionRatio: expressionRatio,
		EyeVariance:     variance,
	}

	result.Reasons = append(result.Reasons,
		factorReason(gesturePassed, fmt.Sprintf("gesture %q", c.Gesture), gestureRatio),
		factorReason(expressionPassed, fmt.Sprintf("expression %q", c.Expression), expressionRatio),
	)
	if livenessPassed {
		result.Reasons = append(result.Reasons, "liveness confirmed: eye signal varies over time")
	} else {
		result.Reasons = append(result.Reasons, "liveness not detected: eye signal is static")
	}

	if !result.Success {
		slog.Debug("Verification failed", "challenge_id", c.ID, "gesture_ratio", gestureRatio, "expression_ratio", expressionRatio, "eye_variance", variance)
		return result
	}

	result.Reasons = append(result.Reasons, ReasonAllValidated)
	token, err := e.tokens.Issue(c.ID, now)
	if err != nil {
		// claims are plain registered fields, so this only fires on a broken encoder
		slog.Error("failed to issue access token", "challenge_id", c.ID, "error", err)
		return Result{
			Score:           result.Score,
			Reasons:         append(result.Reasons[:3:3], "access token could not be issued"),
			GestureRatio:    gestureRatio,
			ExpressionRatio: expressionRatio,
			EyeVariance:     variance,
		}
	}
	result.Token = token
	return result
}

func (e *Engine) lookupGesture(g challenge.Gesture) predicate {
	if p, ok := e.gestures[g]; ok {
		return p
	}
	slog.Warn("Unknown gesture in challenge", "gesture", g)
	return rejectAll
}

func (e *Engine) lookupExpression(x challenge.Expression) predicate {
	if p, ok := e.expressions[x]; ok {
		return p
	}
	slog.Warn("Unknown expression in challenge", "expression", x)
	return rejectAll
}

func (e *Engine) score(gestureRatio, expressionRatio float64, live bool) int {
	total := scaledPoints(gestureRatio, e.cfg.ScoreSaturationRatio, gesturePoints) +
		scaledPoints(expressionRatio, e.cfg.ScoreSaturationRatio, expressionPoints)
	if live {
		total += livenessPoints
	}
	return int(math.Round(total))
}

// scaledPoints grows linearly with ratio and caps at limit once ratio reaches
// saturation.
func scaledPoints(ratio, saturation, limit float64) float64 {
	if !(ratio > 0) {
		return 0
	}
	return math.Min(1, ratio/saturation) * limit
}

// eyeRatioVariance is the population variance of the top-level eye ratios.
// NaN samples make the whole variance NaN, which fails the liveness check.
func eyeRatioVariance(frames []FrameRecord) float64 {
	if len(frames) == 0 {
		return 0
	}
	var sum float64
	for _, f := range frames {
		sum += f.EyeRatio
	}
	mean := sum / float64(len(frames))

	var sq float64
	for _, f := range frames {
		d := f.EyeRatio - mean
		sq += d * d
	}
	return sq / float64(len(frames))
}

func factorReason(passed bool, factor string, ratio float64) string {
	if passed {
		return fmt.Sprintf("%s matched in %.0f%% of frames", factor, ratio*100)
	}
	return fmt.Sprintf("%s not detected", factor)
}
