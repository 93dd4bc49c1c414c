// Package evidence stores the camera frame that produced a successful
// check-in, downscaled to keep the archive small.
package evidence

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// Store writes evidence frames to a directory on disk.
type Store struct {
	dir      string
	maxWidth int
}

// NewStore creates the evidence directory if missing.
func NewStore(dir string, maxWidth int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create evidence dir: %w", err)
	}
	return &Store{dir: dir, maxWidth: maxWidth}, nil
}

// Save downscales and stores a frame, returning a reference usable to
// locate it later. The reference is the file name, not the full path.
func (s *Store) Save(meetingID, userID string, frame []byte) (string, error) {
	resized, err := downscale(frame, s.maxWidth)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s_%s_%s_%s.jpg",
		meetingID, userID,
		time.Now().Format("20060102T150405"),
		uuid.NewString()[:8])

	if err := os.WriteFile(filepath.Join(s.dir, name), resized, 0o644); err != nil {
		return "", fmt.Errorf("failed to write evidence file: %w", err)
	}
	return name, nil
}

// Open returns the stored frame for a reference produced by Save.
func (s *Store) Open(ref string) ([]byte, error) {
	// refs never contain path separators, reject anything that does
	if filepath.Base(ref) != ref {
		return nil, fmt.Errorf("invalid evidence ref %q", ref)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, ref))
	if err != nil {
		return nil, fmt.Errorf("failed to read evidence file: %w", err)
	}
	return data, nil
}

// downscale resizes an image to fit within maxWidth while keeping aspect
// ratio, re-encoding as JPEG either way so the archive stays uniform.
func downscale(data []byte, maxWidth int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxWidth {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
			return nil, fmt.Errorf("failed to encode image: %w", err)
		}
		return buf.Bytes(), nil
	}

	newWidth := maxWidth
	newHeight := int(float64(height) * float64(maxWidth) / float64(width))

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return buf.Bytes(), nil
}
