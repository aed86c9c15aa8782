package client

import (
	"context"

	"github.com/menta2k/object-counter/pkg/types"
)

// VisionClient sends one image and one prompt to a vision model and returns its raw text reply
type VisionClient interface {
	Name() string
	SimpleQuery(ctx context.Context, model, prompt string, img types.ImagePart) (string, error)
}
