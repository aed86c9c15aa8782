// Package objectcounter counts objects in an image with a remote vision model.
//
// The model is asked for a bounding box per object instance. Its JSON reply is
// repaired and parsed, the boxes are normalized and drawn onto a copy of the
// image, and the instances are tallied per object name.
//
// Basic usage:
//
//	c, err := gemini.NewClient(ctx, os.Getenv(gemini.APIKeyEnv))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	counter := objectcounter.New(c, objectcounter.Options{})
//	result, err := counter.AnalyzeSource(ctx, "street.jpg", []string{"car", "person"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, oc := range result.Counts {
//		fmt.Printf("%s: %d\n", oc.Name, oc.Count)
//	}
//
// The package consists of these components:
//
//  1. Analyzer (pkg/analyzer): decodes and validates uploaded images
//  2. Detection (pkg/detection): builds prompts, parses replies, normalizes and counts boxes
//  3. Processing (pkg/processing): loads sources, prepares model input, draws and saves results
//  4. Clients (pkg/gemini, pkg/ollama, pkg/llamacpp): vision model backends
package objectcounter

import (
	"context"
	"fmt"
	"image"

	"github.com/rs/zerolog"

	"github.com/menta2k/object-counter/pkg/analyzer"
	"github.com/menta2k/object-counter/pkg/client"
	"github.com/menta2k/object-counter/pkg/detection"
	"github.com/menta2k/object-counter/pkg/processing"
	"github.com/menta2k/object-counter/pkg/types"
)

// Version of the object counter library
const Version = "1.0.0"

// Options configures a Counter. Zero values select the defaults.
type Options struct {
	Model       string
	MaxSendSize int // longest side sent to the model, 0 sends the original size
	SendQuality int
	Analyzer    *analyzer.Config
	Render      *processing.RenderOptions
	Logger      *zerolog.Logger
}

// Counter runs the detect, count and render pipeline. It holds no per-request
// state and is safe for concurrent use when its client is.
type Counter struct {
	analyzer    *analyzer.ImageAnalyzer
	detector    *detection.Detector
	processor   *processing.Processor
	model       string
	sendMaxSize int
	sendQuality int
	log         zerolog.Logger
}

// Result is the outcome of one successful analysis
type Result struct {
	Image       *image.NRGBA        `json:"-"`
	Detections  []types.Detection   `json:"detections"`
	Boxes       []types.RenderedBox `json:"boxes"`
	Counts      []types.ObjectCount `json:"counts"`
	RawResponse string              `json:"raw_response"`
	Info        analyzer.ImageInfo  `json:"info"`
}

// CountMap returns the counts keyed by object name
func (r *Result) CountMap() map[string]int {
	return types.CountMap(r.Counts)
}

// New creates a Counter that queries c
func New(c client.VisionClient, opts Options) *Counter {
	an := analyzer.New()
	if opts.Analyzer != nil {
		an = analyzer.NewWithConfig(*opts.Analyzer)
	}
	renderOptions := processing.DefaultRenderOptions()
	if opts.Render != nil {
		renderOptions = *opts.Render
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	quality := opts.SendQuality
	if quality <= 0 {
		quality = 90
	}

	return &Counter{
		analyzer:    an,
		detector:    detection.NewDetector(c),
		processor:   processing.NewProcessorWithOptions(renderOptions),
		model:       opts.Model,
		sendMaxSize: opts.MaxSendSize,
		sendQuality: quality,
		log:         logger.With().Str("backend", c.Name()).Logger(),
	}
}

// Model returns the model name sent with each query
func (c *Counter) Model() string {
	return c.model
}

// Processor returns the image processor used for loading and saving
func (c *Counter) Processor() *processing.Processor {
	return c.processor
}

// Analyze detects and counts objects in the encoded image data
func (c *Counter) Analyze(ctx context.Context, data []byte, objects []string) (*Result, error) {
	objects = detection.CleanObjects(objects)
	prompt, err := detection.BuildPrompt(objects)
	if err != nil {
		return nil, err
	}

	img, format, err := c.analyzer.Decode(data)
	if err != nil {
		c.log.Warn().Err(err).Msg("image rejected")
		return nil, err
	}
	info := c.analyzer.GetImageInfo(img, format)
	c.log.Debug().
		Int("width", info.Width).
		Int("height", info.Height).
		Str("format", format).
		Strs("objects", objects).
		Msg("image decoded")

	part, err := c.processor.PrepareImageForModel(data, img, format, c.sendMaxSize, c.sendQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}

	resp, err := c.detector.DetectWithPrompt(ctx, c.model, part, prompt)
	if err != nil {
		event := c.log.Warn().Err(err).Bool("retryable", types.IsRetryable(err))
		if resp != nil {
			event = event.Str("raw_response", resp.Raw)
		}
		event.Msg("detection failed")
		return nil, err
	}
	c.log.Debug().Int("detections", len(resp.Detections)).Msg("model replied")

	annotated, boxes := c.processor.DrawDetections(img, resp.Detections)
	counts := detection.CountObjects(resp.Detections)

	return &Result{
		Image:       annotated,
		Detections:  resp.Detections,
		Boxes:       boxes,
		Counts:      counts,
		RawResponse: resp.Raw,
		Info:        info,
	}, nil
}

// TestVision asks the model to describe the image, to check that it receives
// the picture at all before counting with it
func (c *Counter) TestVision(ctx context.Context, data []byte) (string, error) {
	img, format, err := c.analyzer.Decode(data)
	if err != nil {
		return "", err
	}
	part, err := c.processor.PrepareImageForModel(data, img, format, c.sendMaxSize, c.sendQuality)
	if err != nil {
		return "", fmt.Errorf("failed to prepare image: %w", err)
	}
	return c.detector.TestVision(ctx, c.model, part)
}

// AnalyzeSource loads an image from a file path or URL and analyzes it
func (c *Counter) AnalyzeSource(ctx context.Context, source string, objects []string) (*Result, error) {
	// reject an empty query before loading anything
	if len(detection.CleanObjects(objects)) == 0 {
		return nil, types.NewError(types.KindInvalidInput, "objectcounter.AnalyzeSource", fmt.Errorf("no objects to detect"))
	}

	data, err := c.processor.LoadBytesSmart(source)
	if err != nil {
		return nil, types.NewError(types.KindInvalidInput, "objectcounter.AnalyzeSource", err)
	}
	return c.Analyze(ctx, data, objects)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
