package processing

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/menta2k/object-counter/pkg/types"
)

const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
)

// Processor handles image processing operations
type Processor struct {
	render     RenderOptions
	httpClient *http.Client
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return NewProcessorWithOptions(DefaultRenderOptions())
}

// NewProcessorWithOptions creates a processor with custom render options
func NewProcessorWithOptions(opts RenderOptions) *Processor {
	return &Processor{
		render: opts,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// LoadBytesFromURL downloads raw image bytes from a URL
func (p *Processor) LoadBytesFromURL(imageURL string) ([]byte, error) {
	// Validate URL
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequest("GET", imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", "Object-Counter/1.0 (+https://github.com/menta2k/object-counter)")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %v", err)
	}
	return data, nil
}

// LoadBytesSmart reads raw image bytes from either a file path or URL
func (p *Processor) LoadBytesSmart(source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadBytesFromURL(source)
	}
	return os.ReadFile(source)
}

// PrepareImageForModel returns the payload sent to the vision model.
// PNG and JPEG uploads are passed through unless they exceed maxDim; anything else is re-encoded as JPEG.
func (p *Processor) PrepareImageForModel(data []byte, img image.Image, format string, maxDim int, quality int) (types.ImagePart, error) {
	format = strings.ToLower(format)

	resize := false
	if maxDim > 0 {
		b := img.Bounds()
		resize = b.Dx() > maxDim || b.Dy() > maxDim
	}

	if !resize {
		switch format {
		case "png":
			return types.ImagePart{Data: data, MIMEType: MIMEPNG}, nil
		case "jpeg", "jpg":
			return types.ImagePart{Data: data, MIMEType: MIMEJPEG}, nil
		}
	}

	if resize {
		b := img.Bounds()
		if b.Dx() >= b.Dy() {
			img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if format == "png" {
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return types.ImagePart{}, err
		}
		return types.ImagePart{Data: buf.Bytes(), MIMEType: MIMEPNG}, nil
	}

	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return types.ImagePart{}, err
	}
	return types.ImagePart{Data: buf.Bytes(), MIMEType: MIMEJPEG}, nil
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// EncodeImage writes an image in the specified format
func (p *Processor) EncodeImage(w io.Writer, img image.Image, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		return webp.Encode(w, img, &webp.Options{Lossless: lossless, Quality: float32(quality)})
	case "png":
		return imaging.Encode(w, img, imaging.PNG)
	default:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	}
}
