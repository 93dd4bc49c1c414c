package recognizer

import (
	"context"
	"errors"
)

// ErrNoFace means the recognizer could not compute an embedding because
// the frame contains no usable face.
var ErrNoFace = errors.New("no face detected")

// Face is a single detected face with its bounding box and detection score.
type Face struct {
	BBox     []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore float64   `json:"det_score"`
}

// Recognizer turns camera frames into face embeddings. Detect returns
// the faces in a frame, empty when there are none; Embed computes the
// embedding of the most prominent face, ErrNoFace when there is none.
type Recognizer interface {
	Detect(ctx context.Context, imageData []byte) ([]Face, error)
	Embed(ctx context.Context, imageData []byte) ([]float32, error)
}
