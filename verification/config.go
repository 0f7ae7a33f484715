package verification

import (
	"fmt"
	"time"
)

// Config holds every tunable threshold of the engine. Thresholds drift between
// deployments, so they are configuration rather than constants; pick one
// consistent set per deployment.
type Config struct {
	MinFrames            int     `json:"min_frames"`
	MinPassRatio         float64 `json:"min_pass_ratio"`
	ScoreSaturationRatio float64 `json:"score_saturation_ratio"`
	HandNoseThreshold    float64 `json:"hand_nose_threshold"`
	SmileMouthWidth      float64 `json:"smile_mouth_width"`
	FrownBrowDistance    float64 `json:"frown_brow_distance"`
	BlinkEyeRatio        float64 `json:"blink_eye_ratio"`
	LivenessVariance     float64 `json:"liveness_variance"`
	TokenValiditySeconds int     `json:"token_validity_seconds"`
}

func DefaultConfig() Config {
	return Config{
		MinFrames:            15,
		MinPassRatio:         0.15,
		ScoreSaturationRatio: 0.4,
		HandNoseThreshold:    0.10,
		SmileMouthWidth:      0.45,
		FrownBrowDistance:    0.12,
		BlinkEyeRatio:        0.012,
		LivenessVariance:     0.000002,
		TokenValiditySeconds: 300,
	}
}

func (c Config) Validate() error {
	if c.MinFrames < 1 {
		return fmt.Errorf("min_frames must be positive, got %d", c.MinFrames)
	}
	if c.MinPassRatio <= 0 || c.MinPassRatio > 1 {
		return fmt.Errorf("min_pass_ratio must be in (0, 1], got %v", c.MinPassRatio)
	}
	if c.ScoreSaturationRatio <= 0 || c.ScoreSaturationRatio > 1 {
		return fmt.Errorf("score_saturation_ratio must be in (0, 1], got %v", c.ScoreSaturationRatio)
	}
	if c.HandNoseThreshold <= 0 || c.SmileMouthWidth <= 0 || c.FrownBrowDistance <= 0 || c.BlinkEyeRatio <= 0 {
		return fmt.Errorf("classification thresholds must be positive")
	}
	if c.LivenessVariance <= 0 {
		return fmt.Errorf("liveness_variance must be positive, got %v", c.LivenessVariance)
	}
	if c.TokenValiditySeconds <= 0 {
		return fmt.Errorf("token_validity_seconds must be positive, got %d", c.TokenValiditySeconds)
	}
	return nil
}

// TokenValidity is how long an issued access token stays usable.
func (c Config) TokenValidity() time.Duration {
	return time.Duration(c.TokenValiditySeconds) * time.Second
}
