package pose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrEmptyPayload = errors.New("empty keypoint payload")
	ErrOutOfRange   = errors.New("keypoint out of range")
)

const (
	ContentTypeMsgpack = "application/msgpack"
	ContentTypeJSON    = "application/json"
)

// PayloadDecoder turns keypoint payloads produced by an on-device pose model
// into observations. It stands in for the pose model on the server side.
type PayloadDecoder struct{}

func NewPayloadDecoder() *PayloadDecoder {
	return &PayloadDecoder{}
}

func (d *PayloadDecoder) Detect(ctx context.Context, frame Frame) (Observation, error) {
	if err := ctx.Err(); err != nil {
		return Observation{}, err
	}
	if len(frame.Data) == 0 {
		return Observation{}, ErrEmptyPayload
	}

	var obs Observation
	var err error
	if isMsgpack(frame.ContentType) {
		err = msgpack.Unmarshal(frame.Data, &obs)
	} else {
		err = json.Unmarshal(frame.Data, &obs)
	}
	if err != nil {
		return Observation{}, fmt.Errorf("decode keypoints: %w", err)
	}
	if err := obs.Validate(); err != nil {
		return Observation{}, err
	}
	return obs, nil
}

// Validate checks that every joint lies in normalized coordinates and
// carries a confidence in [0,1].
func (o Observation) Validate() error {
	for _, j := range o.Joints {
		if !unit(j.Location.X) || !unit(j.Location.Y) || !unit(j.Confidence) {
			return fmt.Errorf("%w: %s", ErrOutOfRange, j.Name)
		}
	}
	return nil
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

func isMsgpack(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "msgpack")
}

// EncodeMsgpack is the inverse of the msgpack branch of Detect.
func EncodeMsgpack(obs Observation) ([]byte, error) {
	return msgpack.Marshal(obs)
}
