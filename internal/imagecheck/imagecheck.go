// Package imagecheck validates class photos before they reach the recognizer.
package imagecheck

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/config"
)

// Formats accepted by the recognizer, as named by image.DecodeConfig.
var supportedFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
	"bmp":  true,
	"webp": true,
}

// Image is a validated photo with its decoded dimensions.
type Image struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// Checker validates photos against the configured limits.
type Checker struct {
	maxBytes       int64
	minDimension   int
	maxDimension   int
	uploadMaxPixel int
}

// New creates a Checker from the image configuration.
func New(cfg config.ImageConfig) *Checker {
	return &Checker{
		maxBytes:       cfg.MaxBytes,
		minDimension:   cfg.MinDimension,
		maxDimension:   cfg.MaxDimension,
		uploadMaxPixel: cfg.UploadMaxDimension,
	}
}

// Check validates size, format and dimensions. Failures are
// *attendance.ValidationError.
func (c *Checker) Check(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, &attendance.ValidationError{Field: "image", Reason: "empty upload"}
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return nil, &attendance.ValidationError{
			Field:  "image",
			Reason: fmt.Sprintf("%d bytes exceeds the %d byte limit", len(data), c.maxBytes),
		}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &attendance.ValidationError{Field: "image", Reason: "not a readable JPEG, PNG, BMP or WebP file"}
	}
	if !supportedFormats[format] {
		return nil, &attendance.ValidationError{Field: "image", Reason: fmt.Sprintf("unsupported format %q", format)}
	}

	if c.minDimension > 0 && (cfg.Width < c.minDimension || cfg.Height < c.minDimension) {
		return nil, &attendance.ValidationError{
			Field:  "image",
			Reason: fmt.Sprintf("%dx%d is smaller than %dpx", cfg.Width, cfg.Height, c.minDimension),
		}
	}
	if c.maxDimension > 0 && (cfg.Width > c.maxDimension || cfg.Height > c.maxDimension) {
		return nil, &attendance.ValidationError{
			Field:  "image",
			Reason: fmt.Sprintf("%dx%d is larger than %dpx", cfg.Width, cfg.Height, c.maxDimension),
		}
	}

	return &Image{Data: data, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// PrepareUpload downscales img when either side exceeds the upload limit.
// Smaller images are returned unchanged.
func (c *Checker) PrepareUpload(img *Image) (*Image, error) {
	if c.uploadMaxPixel <= 0 || (img.Width <= c.uploadMaxPixel && img.Height <= c.uploadMaxPixel) {
		return img, nil
	}
	return Downscale(img, c.uploadMaxPixel)
}

// Downscale resizes an image to fit within maxSize (width or height) while
// keeping aspect ratio, and re-encodes it as JPEG.
func Downscale(img *Image, maxSize int) (*Image, error) {
	src, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = int(float64(height) * float64(maxSize) / float64(width))
	} else {
		newHeight = maxSize
		newWidth = int(float64(width) * float64(maxSize) / float64(height))
	}
	newWidth = max(newWidth, 1)
	newHeight = max(newHeight, 1)

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}

	return &Image{Data: buf.Bytes(), Format: "jpeg", Width: newWidth, Height: newHeight}, nil
}
