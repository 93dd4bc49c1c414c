// Package mock provides an in-memory recognizer for tests.
package mock

import (
	"context"
	"sync/atomic"

	"github.com/meetsign/meetsign/internal/recognizer"
)

// MockRecognizer returns canned detect/embed results and supports error
// injection for failure path testing.
type MockRecognizer struct {
	Faces     []recognizer.Face
	Embedding []float32

	DetectError error
	EmbedError  error

	detectCalls atomic.Int32
	embedCalls  atomic.Int32
}

// New creates a mock recognizer that detects a single face and returns
// the given embedding.
func New(embedding []float32) *MockRecognizer {
	return &MockRecognizer{
		Faces:     []recognizer.Face{{BBox: []float64{10, 10, 90, 90}, DetScore: 0.99}},
		Embedding: embedding,
	}
}

func (m *MockRecognizer) Detect(ctx context.Context, imageData []byte) ([]recognizer.Face, error) {
	m.detectCalls.Add(1)
	if m.DetectError != nil {
		return nil, m.DetectError
	}
	return m.Faces, nil
}

func (m *MockRecognizer) Embed(ctx context.Context, imageData []byte) ([]float32, error) {
	m.embedCalls.Add(1)
	if m.EmbedError != nil {
		return nil, m.EmbedError
	}
	return m.Embedding, nil
}

// DetectCalls returns how many times Detect ran.
func (m *MockRecognizer) DetectCalls() int {
	return int(m.detectCalls.Load())
}

// EmbedCalls returns how many times Embed ran.
func (m *MockRecognizer) EmbedCalls() int {
	return int(m.embedCalls.Load())
}
