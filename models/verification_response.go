package models

import (
	"time"

	"go-liveness-verifier/verification"
)

type VerificationResponse struct {
	ChallengeId     string   `json:"challenge_id"`
	Success         bool     `json:"success"`
	Score           int      `json:"score"`
	Token           string   `json:"token,omitempty"`
	Reasons         []string `json:"reasons"`
	GestureRatio    float64  `json:"gesture_ratio"`
	ExpressionRatio float64  `json:"expression_ratio"`
	EyeVariance     float64  `json:"eye_variance"`
}

func NewVerificationResponse(challengeId string, result verification.Result) VerificationResponse {
	return VerificationResponse{
		ChallengeId:     challengeId,
		Success:         result.Success,
		Score:           result.Score,
		Token:           result.Token,
		Reasons:         result.Reasons,
		GestureRatio:    result.GestureRatio,
		ExpressionRatio: result.ExpressionRatio,
		EyeVariance:     result.EyeVariance,
	}
}

// AuditRecord is what gets forwarded to the external audit service. The
// token itself is never forwarded, only whether one was issued.
type AuditRecord struct {
	ChallengeId string    `json:"challenge_id"`
	Gesture     string    `json:"gesture"`
	Expression  string    `json:"expression"`
	FrameCount  int       `json:"frame_count"`
	Success     bool      `json:"success"`
	Score       int       `json:"score"`
	TokenIssued bool      `json:"token_issued"`
	Reasons     []string  `json:"reasons"`
	VerifiedAt  time.Time `json:"verified_at"`
}
