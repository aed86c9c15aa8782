package detection

import (
	"context"
	"fmt"

	"github.com/menta2k/object-counter/pkg/client"
	"github.com/menta2k/object-counter/pkg/types"
)

// Detector handles object detection using vision models
type Detector struct {
	client client.VisionClient
}

// NewDetector creates a new detector with a vision client
func NewDetector(client client.VisionClient) *Detector {
	return &Detector{client: client}
}

// Response holds what the model returned for one detection request
type Response struct {
	Raw        string
	Detections []types.Detection
}

// Detect asks the model for boxes of the given objects and returns normalized detections
func (d *Detector) Detect(ctx context.Context, model string, img types.ImagePart, objects []string) (*Response, error) {
	prompt, err := BuildPrompt(objects)
	if err != nil {
		return nil, err
	}
	return d.DetectWithPrompt(ctx, model, img, prompt)
}

// DetectWithPrompt analyzes an image with a custom prompt that must request the same JSON shape
func (d *Detector) DetectWithPrompt(ctx context.Context, model string, img types.ImagePart, prompt string) (*Response, error) {
	text, err := d.client.SimpleQuery(ctx, model, prompt, img)
	if err != nil {
		return nil, fmt.Errorf("%s query failed: %w", d.client.Name(), err)
	}

	raw, err := ParseResponse(text)
	if err != nil {
		return &Response{Raw: text}, err
	}

	return &Response{Raw: text, Detections: Normalize(raw)}, nil
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *Detector) TestVision(ctx context.Context, model string, img types.ImagePart) (string, error) {
	return d.client.SimpleQuery(ctx, model, SimpleTestPrompt, img)
}
