package verification

import "go-liveness-verifier/challenge"

type predicate func(LandmarkSnapshot) bool

func handRaised(handY, shoulderY float64) bool {
	return handY > 0 && handY < shoulderY
}

func gesturePredicates(cfg Config) map[challenge.Gesture]predicate {
	return map[challenge.Gesture]predicate{
		challenge.GestureLeftHandRaised: func(l LandmarkSnapshot) bool {
			return handRaised(l.LeftHandY, l.ShoulderY)
		},
		challenge.GestureRightHandRaised: func(l LandmarkSnapshot) bool {
			return handRaised(l.RightHandY, l.ShoulderY)
		},
		challenge.GestureTouchNose: func(l LandmarkSnapshot) bool {
			return l.HandNoseDist < cfg.HandNoseThreshold
		},
	}
}

func expressionPredicates(cfg Config) map[challenge.Expression]predicate {
	return map[challenge.Expression]predicate{
		challenge.ExpressionSmile: func(l LandmarkSnapshot) bool {
			return l.MouthWidth > cfg.SmileMouthWidth
		},
		challenge.ExpressionFrown: func(l LandmarkSnapshot) bool {
			return l.BrowDistance < cfg.FrownBrowDistance
		},
		challenge.ExpressionBlink: func(l LandmarkSnapshot) bool {
			return l.EyeRatio < cfg.BlinkEyeRatio
		},
	}
}

// never matches; used for kinds missing from the tables
func rejectAll(LandmarkSnapshot) bool { return false }
