package backend

import (
	"context"
	"fmt"
	"image"

	"github.com/rs/zerolog"

	objectcounter "github.com/menta2k/object-counter"
	"github.com/menta2k/object-counter/internal/config"
	"github.com/menta2k/object-counter/pkg/analyzer"
	"github.com/menta2k/object-counter/pkg/client"
	"github.com/menta2k/object-counter/pkg/gemini"
	"github.com/menta2k/object-counter/pkg/llamacpp"
	"github.com/menta2k/object-counter/pkg/ollama"
	"github.com/menta2k/object-counter/pkg/processing"
)

// LocalModel is the default model for the self-hosted backends
const LocalModel = "openbmb/minicpm-v4.5"

// DefaultModel returns the model used when none is configured for the backend
func DefaultModel(backend string) string {
	if backend == "gemini" {
		return gemini.DefaultModel
	}
	return LocalModel
}

// New creates the vision client selected by cfg.Model.Backend
func New(ctx context.Context, cfg *config.Config) (client.VisionClient, error) {
	switch cfg.Model.Backend {
	case "gemini":
		c, err := gemini.NewClient(ctx, cfg.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		c.SetTimeout(cfg.Timeout())
		return c, nil
	case "ollama":
		c, err := ollama.NewClient(cfg.Model.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		c.SetTimeout(cfg.Timeout())
		return c, nil
	case "llamacpp":
		c, err := llamacpp.NewClient(cfg.Model.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		c.SetTimeout(cfg.Timeout())
		return c, nil
	default:
		return nil, fmt.Errorf("unknown backend: %s (use 'gemini', 'ollama' or 'llamacpp')", cfg.Model.Backend)
	}
}

// NewCounter wires a Counter to the configured backend. An empty model name is
// resolved to the backend's default.
func NewCounter(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*objectcounter.Counter, error) {
	if cfg.Model.Name == "" {
		cfg.Model.Name = DefaultModel(cfg.Model.Backend)
	}

	c, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	render := processing.DefaultRenderOptions()
	render.StrokeWidth = cfg.Render.StrokeWidth
	render.LabelOffset = image.Pt(cfg.Render.LabelOffsetX, cfg.Render.LabelOffsetY)

	return objectcounter.New(c, objectcounter.Options{
		Model:       cfg.Model.Name,
		MaxSendSize: cfg.Input.SendMaxSize,
		SendQuality: cfg.Input.SendQuality,
		Analyzer: &analyzer.Config{
			SupportedFormats: cfg.Input.SupportedFormats,
			MinImageSize:     cfg.Input.MinImageSize,
			MaxImageSize:     cfg.Input.MaxImageSize,
		},
		Render: &render,
		Logger: &log,
	}), nil
}
