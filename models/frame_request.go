package models

import (
	"math"
	"time"

	"go-liveness-verifier/verification"
)

// Landmarks is the wire form of one landmark snapshot. Every field is
// required; an explicit 0 is a valid measurement. Hand positions use -1 for
// "not detected" and timestamp is Unix milliseconds.
type Landmarks struct {
	LeftHandY    *float64 `json:"left_hand_y" validate:"required,gte=-1,lte=2"`
	RightHandY   *float64 `json:"right_hand_y" validate:"required,gte=-1,lte=2"`
	ShoulderY    *float64 `json:"shoulder_y" validate:"required,gte=0,lte=2"`
	MouthWidth   *float64 `json:"mouth_width" validate:"required,gte=0"`
	BrowDistance *float64 `json:"brow_distance" validate:"required,gte=0"`
	HandNoseDist *float64 `json:"hand_nose_dist" validate:"required,gte=0"`
	EyeRatio     *float64 `json:"eye_ratio" validate:"required,gte=0"`
	Timestamp    *int64   `json:"timestamp" validate:"required,gte=0"`
}

type SubmitFramesRequest struct {
	ChallengeId string      `json:"challenge_id" validate:"required,alphanum"`
	Frames      []Landmarks `json:"frames" validate:"required,min=1,max=300,dive"`
}

type SubmitFramesResponse struct {
	ChallengeId string `json:"challenge_id"`
	FrameCount  int    `json:"frame_count"`
}

// measurement turns an absent value into NaN, which no predicate accepts.
func measurement(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// ToSnapshot expects a validated frame. Absent fields still never count
// towards a factor.
func (l Landmarks) ToSnapshot() verification.LandmarkSnapshot {
	var ts time.Time
	if l.Timestamp != nil {
		ts = time.UnixMilli(*l.Timestamp).UTC()
	}
	return verification.LandmarkSnapshot{
		LeftHandY:    measurement(l.LeftHandY),
		RightHandY:   measurement(l.RightHandY),
		ShoulderY:    measurement(l.ShoulderY),
		MouthWidth:   measurement(l.MouthWidth),
		BrowDistance: measurement(l.BrowDistance),
		HandNoseDist: measurement(l.HandNoseDist),
		EyeRatio:     measurement(l.EyeRatio),
		Timestamp:    ts,
	}
}

func LandmarksFromSnapshot(s verification.LandmarkSnapshot) Landmarks {
	ts := s.Timestamp.UnixMilli()
	return Landmarks{
		LeftHandY:    &s.LeftHandY,
		RightHandY:   &s.RightHandY,
		ShoulderY:    &s.ShoulderY,
		MouthWidth:   &s.MouthWidth,
		BrowDistance: &s.BrowDistance,
		HandNoseDist: &s.HandNoseDist,
		EyeRatio:     &s.EyeRatio,
		Timestamp:    &ts,
	}
}

// ToFrameRecords converts wire frames in order.
func ToFrameRecords(frames []Landmarks) []verification.FrameRecord {
	records := make([]verification.FrameRecord, 0, len(frames))
	for _, f := range frames {
		records = append(records, verification.NewFrameRecord(f.ToSnapshot()))
	}
	return records
}
