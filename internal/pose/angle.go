package pose

import "math"

const (
	DefaultMinConfidence = 0.3

	// magnitudeEpsilon keeps coincident landmarks from dividing by zero.
	magnitudeEpsilon = 1e-4
)

type side struct {
	shoulder, elbow, wrist JointName
}

// Left is tried before right. The order is fixed and is not a quality
// comparison between the two arms.
var sides = [...]side{
	{LeftShoulder, LeftElbow, LeftWrist},
	{RightShoulder, RightElbow, RightWrist},
}

// Estimate computes the elbow flexion angle for the first usable arm.
func Estimate(obs Observation, minConfidence float64) Signal {
	if obs.Empty() {
		return Indeterminate(ReasonNoBody)
	}

	for _, sd := range sides {
		shoulder, elbow, wrist, ok := armTriple(obs, sd, minConfidence)
		if !ok {
			continue
		}
		angle := ElbowAngle(shoulder.Location, elbow.Location, wrist.Location)
		if math.IsNaN(angle) {
			return Indeterminate(ReasonEstimationError)
		}
		return Measured(angle)
	}
	return Indeterminate(ReasonLowConfidence)
}

func armTriple(obs Observation, sd side, minConfidence float64) (JointSample, JointSample, JointSample, bool) {
	shoulder, ok1 := obs.Joint(sd.shoulder)
	elbow, ok2 := obs.Joint(sd.elbow)
	wrist, ok3 := obs.Joint(sd.wrist)
	if !ok1 || !ok2 || !ok3 {
		return JointSample{}, JointSample{}, JointSample{}, false
	}
	if shoulder.Confidence < minConfidence || elbow.Confidence < minConfidence || wrist.Confidence < minConfidence {
		return JointSample{}, JointSample{}, JointSample{}, false
	}
	return shoulder, elbow, wrist, true
}

// ElbowAngle returns the angle in degrees at elbow between the segments
// towards shoulder and wrist. The result lies in [0,180].
func ElbowAngle(shoulder, elbow, wrist Point) float64 {
	v1 := shoulder.Sub(elbow)
	v2 := wrist.Sub(elbow)

	dot := v1.X*v2.X + v1.Y*v2.Y
	denom := math.Max(math.Hypot(v1.X, v1.Y)*math.Hypot(v2.X, v2.Y), magnitudeEpsilon)

	cos := math.Max(-1, math.Min(1, dot/denom))
	return math.Acos(cos) * 180 / math.Pi
}
