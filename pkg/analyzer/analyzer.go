package analyzer

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/webp"

	"github.com/menta2k/object-counter/pkg/types"
)

// ImageAnalyzer decodes and validates uploaded images before they reach the model
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the image analyzer
type Config struct {
	SupportedFormats []string
	MinImageSize     int
	MaxImageSize     int // 0 disables the upper bound
}

// DefaultConfig returns the formats and sizes accepted by default
func DefaultConfig() Config {
	return Config{
		SupportedFormats: []string{"jpeg", "png", "webp", "gif"},
		MinImageSize:     16,
		MaxImageSize:     0,
	}
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{config: DefaultConfig()}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
	Format      string  `json:"format"`
}

// Decode decodes and validates image bytes, returning the image and its format name
func (a *ImageAnalyzer) Decode(data []byte) (image.Image, string, error) {
	const op = "analyzer.Decode"

	if len(data) == 0 {
		return nil, "", types.NewError(types.KindInvalidInput, op, fmt.Errorf("image is empty"))
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", types.NewError(types.KindInvalidInput, op, fmt.Errorf("failed to decode image: %w", err))
	}

	if !a.isFormatSupported(format) {
		return nil, "", types.NewError(types.KindInvalidInput, op, fmt.Errorf("unsupported image format: %s", format))
	}

	if err := a.ValidateImage(img); err != nil {
		return nil, "", types.NewError(types.KindInvalidInput, op, err)
	}

	return img, format, nil
}

// GetImageInfo returns basic information about an image
func (a *ImageAnalyzer) GetImageInfo(img image.Image, format string) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{
		Width:  width,
		Height: height,
		Area:   width * height,
		Format: format,
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) || (strings.EqualFold(supported, "jpg") && strings.EqualFold(format, "jpeg")) {
			return true
		}
	}
	return false
}

// ValidateImage checks if an image meets size requirements
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), a.config.MinImageSize)
	}
	if a.config.MaxImageSize > 0 && (bounds.Dx() > a.config.MaxImageSize || bounds.Dy() > a.config.MaxImageSize) {
		return fmt.Errorf("image too large: %dx%d (maximum: %d)",
			bounds.Dx(), bounds.Dy(), a.config.MaxImageSize)
	}
	return nil
}
