package pose

import "time"

type JointName string

const (
	Nose          JointName = "nose"
	Neck          JointName = "neck"
	LeftShoulder  JointName = "left_shoulder"
	LeftElbow     JointName = "left_elbow"
	LeftWrist     JointName = "left_wrist"
	RightShoulder JointName = "right_shoulder"
	RightElbow    JointName = "right_elbow"
	RightWrist    JointName = "right_wrist"
	LeftHip       JointName = "left_hip"
	RightHip      JointName = "right_hip"
)

// Point is a location in normalized image coordinates, each axis in [0,1].
type Point struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

func (p Point) Sub(o Point) Point {
	return Point{X: p.X - o.X, Y: p.Y - o.Y}
}

// JointSample is one landmark reported by the pose model.
type JointSample struct {
	Name       JointName `json:"name" msgpack:"name"`
	Location   Point     `json:"location" msgpack:"location"`
	Confidence float64   `json:"confidence" msgpack:"confidence"`
}

// Observation is the set of joints detected in one frame. An observation
// with no joints means the model found no body.
type Observation struct {
	Joints []JointSample `json:"joints" msgpack:"joints"`
}

// Joint returns the first sample with the given name.
func (o Observation) Joint(name JointName) (JointSample, bool) {
	for _, j := range o.Joints {
		if j.Name == name {
			return j, true
		}
	}
	return JointSample{}, false
}

func (o Observation) Empty() bool {
	return len(o.Joints) == 0
}

// Frame is an admitted unit of input for the pose model.
type Frame struct {
	Data        []byte
	ContentType string
	Timestamp   time.Time
}
