package models

import "time"

type StartChallengeResponse struct {
	ChallengeId string    `json:"challenge_id"`
	Gesture     string    `json:"gesture"`
	Expression  string    `json:"expression"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type VerifyRequest struct {
	ChallengeId string `json:"challenge_id" validate:"required,alphanum"`
}

type InspectTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type InspectTokenResponse struct {
	ChallengeId string    `json:"challenge_id"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Expired     bool      `json:"expired"`
	// Tokens carry a random suffix instead of a signature, so this is always false.
	Signed bool `json:"signed"`
}
