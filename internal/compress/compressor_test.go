package compress

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"
)

// newGradient builds an opaque test image with enough detail that jpeg
// actually has something to compress.
func newGradient(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), uint8((x + y) % 256), 255})
		}
	}
	return img
}

func encodeTestJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

func encodeTestPNG(t *testing.T, img image.Image, level png.CompressionLevel) []byte {
	t.Helper()
	var buf bytes.Buffer
	encoder := &png.Encoder{CompressionLevel: level}
	if err := encoder.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test png: %v", err)
	}
	return buf.Bytes()
}

func encodeTestGIF(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := gif.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to encode test gif: %v", err)
	}
	return buf.Bytes()
}

func decodeResult(t *testing.T, result *Result) image.Image {
	t.Helper()
	img, format, err := image.Decode(bytes.NewReader(result.Data))
	if err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if "image/"+format != result.ContentType {
		t.Fatalf("result bytes decode as %q, content type says %q", format, result.ContentType)
	}
	return img
}

func TestClampQuality(t *testing.T) {
	tests := []struct {
		name    string
		quality int
		want    int
	}{
		{name: "below minimum", quality: 3, want: 10},
		{name: "at minimum", quality: 10, want: 10},
		{name: "in range", quality: 55, want: 55},
		{name: "at maximum", quality: 100, want: 100},
		{name: "above maximum", quality: 140, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampQuality(tt.quality); got != tt.want {
				t.Errorf("ClampQuality(%d) = %d, want %d", tt.quality, got, tt.want)
			}
		})
	}
}

func TestTargetSize(t *testing.T) {
	tests := []struct {
		name       string
		width      int
		height     int
		quality    int
		wantWidth  int
		wantHeight int
	}{
		{name: "small image untouched", width: 800, height: 600, quality: 80, wantWidth: 800, wantHeight: 600},
		{name: "exactly at ceiling", width: 2048, height: 1024, quality: 80, wantWidth: 2048, wantHeight: 1024},
		{name: "landscape over high ceiling", width: 4096, height: 2048, quality: 80, wantWidth: 2048, wantHeight: 1024},
		{name: "portrait over high ceiling", width: 2048, height: 4096, quality: 95, wantWidth: 1024, wantHeight: 2048},
		{name: "mid quality ceiling", width: 3840, height: 2160, quality: 60, wantWidth: 1920, wantHeight: 1080},
		{name: "low quality ceiling", width: 3200, height: 2400, quality: 30, wantWidth: 1600, wantHeight: 1200},
		{name: "rounding to nearest", width: 3000, height: 2001, quality: 80, wantWidth: 2048, wantHeight: 1366},
		{name: "extreme aspect floor", width: 100000, height: 10, quality: 80, wantWidth: 2048, wantHeight: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotWidth, gotHeight := targetSize(tt.width, tt.height, tt.quality)
			if gotWidth != tt.wantWidth || gotHeight != tt.wantHeight {
				t.Errorf("targetSize(%d, %d, q=%d) = (%d, %d), want (%d, %d)",
					tt.width, tt.height, tt.quality, gotWidth, gotHeight, tt.wantWidth, tt.wantHeight)
			}
			if gotWidth > tt.width || gotHeight > tt.height {
				t.Errorf("targetSize must never upscale: got (%d, %d) from (%d, %d)",
					gotWidth, gotHeight, tt.width, tt.height)
			}
		})
	}
}

func TestHasTransparentCorner(t *testing.T) {
	opaque := newGradient(64, 64)
	if hasTransparentCorner(opaque) {
		t.Error("expected no transparency in fully opaque image")
	}

	transparent := newGradient(64, 64)
	transparent.Set(3, 3, color.RGBA{0, 0, 0, 0})
	if !hasTransparentCorner(transparent) {
		t.Error("expected transparency for non-opaque pixel inside the probe window")
	}

	// A transparent pixel outside the 10x10 probe window goes unnoticed
	outside := newGradient(64, 64)
	outside.Set(40, 40, color.RGBA{0, 0, 0, 0})
	if hasTransparentCorner(outside) {
		t.Error("probe must only sample the corner block")
	}

	// Images smaller than the probe window must not panic
	tiny := image.NewRGBA(image.Rect(0, 0, 4, 4))
	tiny.Set(1, 1, color.RGBA{255, 0, 0, 128})
	if !hasTransparentCorner(tiny) {
		t.Error("expected transparency in tiny image")
	}

	// Sub-images have non-zero bounds; the probe must honor them
	sub := transparent.SubImage(image.Rect(2, 2, 20, 20))
	if !hasTransparentCorner(sub) {
		t.Error("expected transparency in sub-image with offset bounds")
	}
}

func TestShouldFallBackToJPEG(t *testing.T) {
	tests := []struct {
		name         string
		pngSize      int
		originalSize int
		want         bool
	}{
		{name: "shrunk well", pngSize: 500, originalSize: 1000, want: false},
		{name: "just under threshold", pngSize: 949, originalSize: 1000, want: false},
		{name: "at threshold", pngSize: 950, originalSize: 1000, want: true},
		{name: "grew", pngSize: 1100, originalSize: 1000, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldFallBackToJPEG(tt.pngSize, tt.originalSize); got != tt.want {
				t.Errorf("shouldFallBackToJPEG(%d, %d) = %v, want %v",
					tt.pngSize, tt.originalSize, got, tt.want)
			}
		})
	}
}

func TestCompress_JPEGSource(t *testing.T) {
	original := encodeTestJPEG(t, newGradient(800, 600))

	result, err := Compress(original, MimeJPEG, 80)
	if err != nil {
		t.Fatalf("Compress error: %v", err)
	}
	if result.ContentType != MimeJPEG {
		t.Errorf("ContentType = %q, want %q", result.ContentType, MimeJPEG)
	}
	if result.Width != 800 || result.Height != 600 {
		t.Errorf("dimensions = %dx%d, want 800x600", result.Width, result.Height)
	}
	decodeResult(t, result)
}

func TestCompress_DownscalesOversizedInput(t *testing.T) {
	original := encodeTestJPEG(t, newGradient(4096, 2048))

	result, err := Compress(original, MimeJPEG, 80)
	if err != nil {
		t.Fatalf("Compress error: %v", err)
	}
	if result.Width != 2048 || result.Height != 1024 {
		t.Errorf("dimensions = %dx%d, want 2048x1024", result.Width, result.Height)
	}

	img := decodeResult(t, result)
	if img.Bounds().Dx() != 2048 || img.Bounds().Dy() != 1024 {
		t.Errorf("decoded dimensions = %dx%d, want 2048x1024",
			img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestCompress_OpaquePNGTakesLossyPath(t *testing.T) {
	original := encodeTestPNG(t, newGradient(300, 300), png.DefaultCompression)

	result, err := Compress(original, MimePNG, 80)
	if err != nil {
		t.Fatalf("Compress error: %v", err)
	}
	if result.ContentType != MimeJPEG {
		t.Errorf("ContentType = %q, want %q for opaque png source", result.ContentType, MimeJPEG)
	}
}

func TestCompress_TransparentPNGStaysLossless(t *testing.T) {
	img := newGradient(300, 300)
	img.Set(0, 0, color.RGBA{0, 0, 0, 0})
	// NoCompression makes the original large enough that the lossless
	// re-encode shrinks it well past the fallback threshold.
	original := encodeTestPNG(t, img, png.NoCompression)

	result, err := Compress(original, MimePNG, 80)
	if err != nil {
		t.Fatalf("Compress error: %v", err)
	}
	if result.ContentType != MimePNG {
		t.Errorf("ContentType = %q, want %q for transparent png source", result.ContentType, MimePNG)
	}
	if len(result.Data) >= len(original) {
		t.Errorf("lossless output did not shrink: %d >= %d", len(result.Data), len(original))
	}
}

func TestCompress_TransparentPNGFallsBackWhenNotShrinking(t *testing.T) {
	// A fully transparent flat image re-encodes to roughly the same size,
	// which trips the fallback and lands on the jpeg path.
	img := image.NewRGBA(image.Rect(0, 0, 120, 120))
	original := encodeTestPNG(t, img, png.BestCompression)

	result, err := Compress(original, MimePNG, 80)
	if err != nil {
		t.Fatalf("Compress error: %v", err)
	}
	if result.ContentType != MimeJPEG {
		t.Errorf("ContentType = %q, want %q after fallback", result.ContentType, MimeJPEG)
	}

	// Transparent source pixels must come out white, not black
	decoded := decodeResult(t, result)
	r, g, b, _ := decoded.At(60, 60).RGBA()
	if r>>8 < 240 || g>>8 < 240 || b>>8 < 240 {
		t.Errorf("transparent pixel matte = rgb(%d, %d, %d), want near white",
			r>>8, g>>8, b>>8)
	}
}

func TestCompress_GIFSource(t *testing.T) {
	original := encodeTestGIF(t, newGradient(120, 90))

	result, err := Compress(original, MimeGIF, 80)
	if err != nil {
		t.Fatalf("Compress error: %v", err)
	}
	if result.ContentType != MimeJPEG {
		t.Errorf("ContentType = %q, want %q for gif source", result.ContentType, MimeJPEG)
	}
	if result.Width != 120 || result.Height != 90 {
		t.Errorf("dimensions = %dx%d, want 120x90", result.Width, result.Height)
	}
}

func TestCompress_QualityAffectsOutputSize(t *testing.T) {
	original := encodeTestJPEG(t, newGradient(640, 480))

	low, err := Compress(original, MimeJPEG, 10)
	if err != nil {
		t.Fatalf("Compress(q=10) error: %v", err)
	}
	high, err := Compress(original, MimeJPEG, 100)
	if err != nil {
		t.Fatalf("Compress(q=100) error: %v", err)
	}
	if len(low.Data) >= len(high.Data) {
		t.Errorf("low quality output (%d bytes) should be smaller than high quality (%d bytes)",
			len(low.Data), len(high.Data))
	}
}

func TestCompress_InvalidData(t *testing.T) {
	_, err := Compress([]byte("not a valid image"), MimeJPEG, 80)
	if err == nil {
		t.Error("expected error for invalid image data, got nil")
	}
}

func TestThumbnail(t *testing.T) {
	data := encodeTestPNG(t, newGradient(640, 480), png.DefaultCompression)

	thumb, err := Thumbnail(data, 320)
	if err != nil {
		t.Fatalf("Thumbnail error: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(thumb))
	if err != nil {
		t.Fatalf("failed to decode thumbnail: %v", err)
	}
	if img.Bounds().Dx() != 320 || img.Bounds().Dy() != 240 {
		t.Errorf("thumbnail = %dx%d, want 320x240", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestThumbnail_NeverUpscales(t *testing.T) {
	data := encodeTestPNG(t, newGradient(100, 80), png.DefaultCompression)

	thumb, err := Thumbnail(data, 320)
	if err != nil {
		t.Fatalf("Thumbnail error: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(thumb))
	if err != nil {
		t.Fatalf("failed to decode thumbnail: %v", err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 80 {
		t.Errorf("thumbnail = %dx%d, want original 100x80", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestThumbnail_InvalidWidth(t *testing.T) {
	if _, err := Thumbnail([]byte{0x01}, 0); err == nil {
		t.Error("expected error for zero width, got nil")
	}
}
