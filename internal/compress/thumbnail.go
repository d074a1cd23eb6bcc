package compress

import (
	"bytes"
	"fmt"
	"image"
	"math"
)

// Thumbnail scales image data down to the given width (aspect ratio
// preserved, never upscaled) and encodes it as png for display.
func Thumbnail(data []byte, width int) ([]byte, error) {
	if width <= 0 {
		return nil, fmt.Errorf("thumbnail width must be positive, got %d", width)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= width {
		return encodePNG(scale(img, bounds.Dx(), bounds.Dy()))
	}

	height := int(math.Round(float64(bounds.Dy()) * float64(width) / float64(bounds.Dx())))
	if height < 1 {
		height = 1
	}
	return encodePNG(scale(img, width, height))
}
