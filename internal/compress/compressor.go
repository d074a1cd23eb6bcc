// Package compress re-encodes raster images at a caller-chosen quality
// using the standard codecs, downscaling oversized inputs first.
package compress

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"log/slog"
	"math"

	xdraw "golang.org/x/image/draw"

	_ "image/gif"
)

const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeGIF  = "image/gif"

	// MinQuality and MaxQuality bound the encoder quality parameter.
	MinQuality = 10
	MaxQuality = 100

	// A png re-encode that still weighs in at this share of the original
	// or more failed to meaningfully shrink; fall back to jpeg instead.
	losslessFallbackRatio = 0.95
)

// Result holds the output of one compression run.
type Result struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// Compress decodes original, downscales it to the quality-dependent
// dimension ceiling and re-encodes it. Output defaults to jpeg; a png
// source with transparency in the probed corner is encoded as png unless
// that fails to shrink the data, in which case the jpeg path applies after
// all. The run always starts from the original bytes, so re-compressing a
// record accumulates no generational loss.
func Compress(original []byte, sourceType string, quality int) (*Result, error) {
	quality = ClampQuality(quality)

	img, format, err := image.Decode(bytes.NewReader(original))
	if err != nil {
		slog.Error("compress: failed to decode image", "error", err, "declared_type", sourceType)
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	targetWidth, targetHeight := targetSize(bounds.Dx(), bounds.Dy(), quality)

	slog.Debug("compress: decoded image",
		"format", format,
		"quality", quality,
		"orig_width", bounds.Dx(),
		"orig_height", bounds.Dy(),
		"target_width", targetWidth,
		"target_height", targetHeight,
		"input_size_bytes", len(original))

	scaled := scale(img, targetWidth, targetHeight)

	// Transparency decides the codec only for png sources; jpeg and gif
	// inputs always take the lossy path.
	if sourceType == MimePNG && hasTransparentCorner(img) {
		data, err := encodePNG(scaled)
		if err != nil {
			return nil, fmt.Errorf("failed to encode png: %w", err)
		}
		if !shouldFallBackToJPEG(len(data), len(original)) {
			slog.Debug("compress: kept lossless output",
				"output_size_bytes", len(data))
			return &Result{Data: data, ContentType: MimePNG, Width: targetWidth, Height: targetHeight}, nil
		}
		slog.Debug("compress: png did not shrink enough, re-encoding as jpeg",
			"png_size_bytes", len(data),
			"input_size_bytes", len(original))
	}

	// The jpeg encoder has no alpha channel; matte transparent source
	// pixels onto white so they do not come out black.
	data, err := encodeJPEG(matteWhite(scaled), quality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}

	slog.Debug("compress: encoded output",
		"content_type", MimeJPEG,
		"output_size_bytes", len(data))

	return &Result{Data: data, ContentType: MimeJPEG, Width: targetWidth, Height: targetHeight}, nil
}

// ClampQuality bounds a quality value to the encoder range.
func ClampQuality(quality int) int {
	if quality < MinQuality {
		return MinQuality
	}
	if quality > MaxQuality {
		return MaxQuality
	}
	return quality
}

// dimensionCeiling returns the longest-edge limit for a quality level.
// Higher quality keeps more pixels.
func dimensionCeiling(quality int) int {
	switch {
	case quality >= 80:
		return 2048
	case quality >= 60:
		return 1920
	default:
		return 1600
	}
}

// targetSize computes output dimensions: unchanged when the longest edge is
// within the ceiling, otherwise downscaled preserving aspect ratio with
// round-to-nearest. Never upscales.
func targetSize(width, height, quality int) (int, int) {
	ceiling := dimensionCeiling(quality)

	longest := width
	if height > longest {
		longest = height
	}
	if longest <= ceiling {
		return width, height
	}

	ratio := float64(ceiling) / float64(longest)
	scaledWidth := int(math.Round(float64(width) * ratio))
	scaledHeight := int(math.Round(float64(height) * ratio))
	if scaledWidth < 1 {
		scaledWidth = 1
	}
	if scaledHeight < 1 {
		scaledHeight = 1
	}
	return scaledWidth, scaledHeight
}

// scale renders img into an RGBA buffer of the given size using Catmull-Rom
// resampling, preserving alpha.
func scale(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if bounds := img.Bounds(); bounds.Dx() == width && bounds.Dy() == height {
		xdraw.Copy(dst, image.Point{}, img, bounds, xdraw.Src, nil)
		return dst
	}
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// matteWhite composites img over a white background.
func matteWhite(img *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(img.Bounds())
	white := color.RGBA{255, 255, 255, 255}
	draw.Draw(dst, dst.Bounds(), &image.Uniform{white}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Over)
	return dst
}

// hasTransparentCorner samples up to a 10x10 block in the top-left corner
// and reports whether any sampled pixel is non-opaque. Cheap stand-in for a
// full alpha scan.
func hasTransparentCorner(img image.Image) bool {
	bounds := img.Bounds()
	maxX := bounds.Min.X + 10
	if maxX > bounds.Max.X {
		maxX = bounds.Max.X
	}
	maxY := bounds.Min.Y + 10
	if maxY > bounds.Max.Y {
		maxY = bounds.Max.Y
	}

	for y := bounds.Min.Y; y < maxY; y++ {
		for x := bounds.Min.X; x < maxX; x++ {
			if _, _, _, alpha := img.At(x, y).RGBA(); alpha < 0xffff {
				return true
			}
		}
	}
	return false
}

// shouldFallBackToJPEG reports whether a lossless re-encode failed to
// meaningfully shrink the original.
func shouldFallBackToJPEG(pngSize, originalSize int) bool {
	return float64(pngSize) >= float64(originalSize)*losslessFallbackRatio
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(256 * 1024)
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(512 * 1024)
	encoder := &png.Encoder{CompressionLevel: png.BestCompression}
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
