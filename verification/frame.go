package verification

import "time"

// HandNotDetected is the sentinel the tracker reports for a wrist it could
// not locate.
const HandNotDetected = -1.0

// LandmarkSnapshot is one instant's measurements from the tracking subsystem.
// All values are normalized to the subject's own frame of reference by the
// producer; vertical positions grow downwards, so smaller is higher.
type LandmarkSnapshot struct {
	LeftHandY    float64
	RightHandY   float64
	ShoulderY    float64
	MouthWidth   float64
	BrowDistance float64
	HandNoseDist float64
	EyeRatio     float64
	Timestamp    time.Time
}

// FrameRecord is a snapshot plus the eye ratio and timestamp lifted to the top
// level for the liveness pass.
type FrameRecord struct {
	Landmarks LandmarkSnapshot
	EyeRatio  float64
	Timestamp time.Time
}

func NewFrameRecord(landmarks LandmarkSnapshot) FrameRecord {
	return FrameRecord{
		Landmarks: landmarks,
		EyeRatio:  landmarks.EyeRatio,
		Timestamp: landmarks.Timestamp,
	}
}
